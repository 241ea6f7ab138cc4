package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dotagpt/dotagpt/internal/auth"
	"github.com/dotagpt/dotagpt/internal/chat"
	"github.com/dotagpt/dotagpt/internal/draft"
	"github.com/dotagpt/dotagpt/internal/llm"
	"github.com/dotagpt/dotagpt/internal/logger"
	"github.com/dotagpt/dotagpt/internal/news"
	"github.com/dotagpt/dotagpt/internal/store"
)

type ctxKey string

const userCtxKey ctxKey = "user"

// CompletionService is what the chat endpoint needs from the LLM boundary:
// completions plus title generation. *llm.Client satisfies it.
type CompletionService interface {
	chat.CompletionClient
	chat.TitleGenerator
}

type APIHandler struct {
	db          *store.SQLiteStore
	drafts      *draft.Store
	completions CompletionService
	news        *news.Client
	log         *logger.Logger
}

func NewAPIHandler(db *store.SQLiteStore, drafts *draft.Store, completions CompletionService, newsClient *news.Client, log *logger.Logger) *APIHandler {
	return &APIHandler{db: db, drafts: drafts, completions: completions, news: newsClient, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

// bearerUser resolves the Authorization header to a user record, or nil when
// the header is absent or invalid.
func (h *APIHandler) bearerUser(r *http.Request) (*store.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	claim, err := auth.ValidateJWT(tokenString)
	if err != nil {
		return nil, err
	}
	userID, err := strconv.ParseInt(claim, 10, 64)
	if err != nil {
		return nil, errors.New("malformed user id in token")
	}
	return h.db.GetUserByID(userID)
}

// JWTAuthMiddleware rejects requests without a valid bearer token.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.bearerUser(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userCtxKey, user)))
	})
}

// OptionalAuthMiddleware attaches the user when a valid token is present but
// lets anonymous requests through; the chat endpoint routes persistence by
// this distinction.
func (h *APIHandler) OptionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.bearerUser(r)
		if err == nil && user != nil {
			r = r.WithContext(context.WithValue(r.Context(), userCtxKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

func requestUser(r *http.Request) *store.User {
	user, _ := r.Context().Value(userCtxKey).(*store.User)
	return user
}

// Auth handlers

type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := auth.ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.log.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user, err := h.db.CreateUser(req.Username, req.Email, hashed)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			writeError(w, http.StatusConflict, "Username or email already registered")
			return
		}
		h.log.Error("failed to create user", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	token, err := auth.GenerateJWT(strconv.FormatInt(user.ID, 10))
	if err != nil {
		h.log.Error("failed to generate token", "user", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "user": user, "token": token})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.db.GetUserByEmail(req.Email)
	if err != nil {
		h.log.Error("failed to look up user", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateJWT(strconv.FormatInt(user.ID, 10))
	if err != nil {
		h.log.Error("failed to generate token", "user", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user, "token": token})
}

func (h *APIHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
}

// Chatroom handlers (authenticated, remote thread store)

func (h *APIHandler) ListChatroomsHandler(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	chatrooms, err := h.db.ListChatrooms(user.ID, limit)
	if err != nil {
		h.log.Error("failed to list chatrooms", "user", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list chatrooms")
		return
	}
	if chatrooms == nil {
		chatrooms = []store.Chatroom{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"chatrooms":      chatrooms,
			"totalChatrooms": len(chatrooms),
		},
	})
}

type CreateChatroomRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) CreateChatroomHandler(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req CreateChatroomRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	room, err := h.db.CreateChatroom(user.ID, req.Title)
	if err != nil {
		h.log.Error("failed to create chatroom", "user", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create chatroom")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"chatroom": room},
	})
}

func (h *APIHandler) GetChatroomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	chatroomID := chi.URLParam(r, "chatroomID")

	room, err := h.db.GetChatroom(chatroomID, user.ID)
	if err != nil {
		h.log.Error("failed to get chatroom", "chatroom", chatroomID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get chatroom")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "Chatroom not found")
		return
	}

	messages, err := h.db.ListMessages(chatroomID)
	if err != nil {
		h.log.Error("failed to list messages", "chatroom", chatroomID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"messages":      messages,
			"chatroom":      room,
			"totalMessages": len(messages),
		},
	})
}

// Draft handlers (anonymous, local draft store)

func (h *APIHandler) ListDraftsHandler(w http.ResponseWriter, r *http.Request) {
	threads, err := h.drafts.List()
	if err != nil {
		h.log.Error("failed to list drafts", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list drafts")
		return
	}

	metas := make([]chat.Thread, 0, len(threads))
	for i := range threads {
		metas = append(metas, threads[i].Meta())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"threads":      metas,
			"totalThreads": len(metas),
		},
	})
}

func (h *APIHandler) GetDraftHandler(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	thread, err := h.drafts.Get(threadID)
	if err != nil {
		h.log.Error("failed to get draft", "thread", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get draft")
		return
	}
	if thread == nil {
		writeError(w, http.StatusNotFound, "Draft thread not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"thread":        thread,
			"totalMessages": len(thread.Messages),
		},
	})
}

func (h *APIHandler) DeleteDraftHandler(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if err := h.drafts.Delete(threadID); err != nil {
		h.log.Error("failed to delete draft", "thread", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Chat handler: the submission endpoint behind the reconciliation engine.

type ChatRequest struct {
	Message    string `json:"message"`
	ChatroomID string `json:"chatroomId,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid request format",
			"code":    llm.CodeInvalidJSON,
			"details": "Request body must be valid JSON.",
		})
		return
	}

	if failure := llm.ValidateMessage(req.Message); failure != nil {
		h.writeFailure(w, failure)
		return
	}

	session := chat.NewSession(chat.Config{
		Completions: h.completions,
		Titler:      h.completions,
		Remote:      h.remoteStoreFor(r),
		Local:       h.drafts,
		Log:         h.log,
	})

	if req.ChatroomID != "" {
		if err := session.LoadThread(req.ChatroomID); err != nil {
			if errors.Is(err, chat.ErrThreadNotFound) {
				writeError(w, http.StatusNotFound, "Chatroom not found")
				return
			}
			h.log.Error("failed to load thread", "thread", req.ChatroomID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to load chatroom")
			return
		}
	}

	reply, err := session.Submit(r.Context(), req.Message)
	if err != nil {
		var failure *llm.Failure
		if errors.As(err, &failure) {
			h.writeFailure(w, failure)
			return
		}
		h.log.Error("chat submission failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Internal server error",
			"code":    llm.CodeInternal,
			"details": "An unexpected error occurred. Please try again later.",
		})
		return
	}

	if reply == nil {
		writeError(w, http.StatusInternalServerError, "Failed to produce a reply")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"response":   reply.Content,
		"chatroomId": session.ActiveThreadID(),
	})
}

func (h *APIHandler) remoteStoreFor(r *http.Request) chat.ThreadStore {
	user := requestUser(r)
	if user == nil {
		return nil
	}
	return store.UserThreads{Store: h.db, UserID: user.ID}
}

func (h *APIHandler) writeFailure(w http.ResponseWriter, failure *llm.Failure) {
	writeJSON(w, failure.HTTPStatus(), map[string]interface{}{
		"error":   failure.Message,
		"code":    failure.Code,
		"details": failure.Details,
	})
}

// News handler

func (h *APIHandler) NewsHandler(w http.ResponseWriter, r *http.Request) {
	count := 10
	if raw := r.URL.Query().Get("count"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			count = parsed
		}
	}

	resp, err := h.news.Fetch(r.Context(), count)
	if err != nil {
		h.log.Error("failed to fetch news", "error", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch Dota 2 news")
		return
	}

	w.Header().Set("Cache-Control", "public, s-maxage=300, stale-while-revalidate=600")
	writeJSON(w, http.StatusOK, resp)
}

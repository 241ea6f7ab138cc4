package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dotagpt/dotagpt/internal/config"
	"github.com/dotagpt/dotagpt/internal/draft"
	"github.com/dotagpt/dotagpt/internal/llm"
	"github.com/dotagpt/dotagpt/internal/logger"
	"github.com/dotagpt/dotagpt/internal/news"
	"github.com/dotagpt/dotagpt/internal/store"
)

type fakeCompletions struct {
	reply string
	err   error
}

func (f fakeCompletions) Complete(ctx context.Context, message string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f fakeCompletions) GenerateTitle(ctx context.Context, basis string) (string, error) {
	return "Dota 2 Question", nil
}

const steamStubPayload = `{"appnews":{"appid":570,"newsitems":[{"gid":"1","title":"Patch 7.37","contents":"notes","date":1721000000}],"count":1}}`

type testAPI struct {
	server *httptest.Server
}

func newTestAPI(t *testing.T, completions CompletionService) *testAPI {
	t.Helper()

	config.AppConfig = config.Config{
		JWTSecret:  "test-secret",
		BcryptCost: bcrypt.MinCost,
	}

	dir := t.TempDir()
	db, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	drafts, err := draft.Open(filepath.Join(dir, "drafts"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = drafts.Close() })

	steam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(steamStubPayload))
	}))
	t.Cleanup(steam.Close)
	newsClient := news.NewClient(steam.URL, 570, 5*time.Minute, logger.NewNop())

	handler := NewAPIHandler(db, drafts, completions, newsClient, logger.NewNop())
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)

	return &testAPI{server: server}
}

func (a *testAPI) request(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = strings.NewReader(raw)
		} else {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func (a *testAPI) register(t *testing.T, username string) string {
	t.Helper()
	status, body := a.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":        username,
		"email":           username + "@example.com",
		"password":        "secret123",
		"confirmPassword": "secret123",
	})
	require.Equal(t, http.StatusCreated, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterLoginVerify(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "hi"})
	token := api.register(t, "gamer")

	// Duplicate registration conflicts.
	status, _ := api.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":        "gamer",
		"email":           "gamer@example.com",
		"password":        "secret123",
		"confirmPassword": "secret123",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, body := api.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "gamer@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])

	status, _ = api.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "gamer@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = api.request(t, http.MethodGet, "/api/auth/verify", token, nil)
	assert.Equal(t, http.StatusOK, status)
	user, _ := body["user"].(map[string]interface{})
	require.NotNil(t, user)
	assert.Equal(t, "gamer", user["username"])
	assert.NotContains(t, user, "password_hash")

	status, _ = api.request(t, http.MethodGet, "/api/auth/verify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "hi"})

	cases := []map[string]string{
		{"username": "ab", "email": "a@example.com", "password": "secret123", "confirmPassword": "secret123"},
		{"username": "gamer", "email": "not-an-email", "password": "secret123", "confirmPassword": "secret123"},
		{"username": "gamer", "email": "a@example.com", "password": "short", "confirmPassword": "short"},
		{"username": "gamer", "email": "a@example.com", "password": "secret123", "confirmPassword": "different1"},
	}
	for i, payload := range cases {
		status, _ := api.request(t, http.MethodPost, "/api/auth/register", "", payload)
		assert.Equal(t, http.StatusBadRequest, status, "case %d", i)
	}
}

func TestChatAnonymousUsesDrafts(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "Buy a BKB."})

	status, body := api.request(t, http.MethodPost, "/api/chat", "", map[string]string{
		"message": "How do I deal with Lion?",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Buy a BKB.", body["response"])

	threadID, _ := body["chatroomId"].(string)
	require.True(t, strings.HasPrefix(threadID, "draft_"), threadID)

	status, body = api.request(t, http.MethodGet, "/api/drafts", "", nil)
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].(map[string]interface{})
	require.NotNil(t, data)
	assert.Equal(t, float64(1), data["totalThreads"])

	// A second exchange on the same thread appends to it.
	status, body = api.request(t, http.MethodPost, "/api/chat", "", map[string]string{
		"message":    "What about his finger?",
		"chatroomId": threadID,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, threadID, body["chatroomId"])

	status, body = api.request(t, http.MethodGet, "/api/drafts/"+threadID, "", nil)
	require.Equal(t, http.StatusOK, status)
	data, _ = body["data"].(map[string]interface{})
	require.NotNil(t, data)
	assert.Equal(t, float64(4), data["totalMessages"])

	status, _ = api.request(t, http.MethodDelete, "/api/drafts/"+threadID, "", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = api.request(t, http.MethodGet, "/api/drafts/"+threadID, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestChatAuthenticatedUsesChatrooms(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "Pick Axe."})
	token := api.register(t, "gamer")

	status, body := api.request(t, http.MethodPost, "/api/chat", token, map[string]string{
		"message": "Best offlaner this patch?",
	})
	require.Equal(t, http.StatusOK, status)

	chatroomID, _ := body["chatroomId"].(string)
	require.True(t, strings.HasPrefix(chatroomID, "chatroom_"), chatroomID)

	status, body = api.request(t, http.MethodGet, "/api/chatrooms", token, nil)
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].(map[string]interface{})
	require.NotNil(t, data)
	assert.Equal(t, float64(1), data["totalChatrooms"])

	status, body = api.request(t, http.MethodGet, "/api/chatrooms/"+chatroomID, token, nil)
	require.Equal(t, http.StatusOK, status)
	data, _ = body["data"].(map[string]interface{})
	require.NotNil(t, data)
	assert.Equal(t, float64(2), data["totalMessages"])
	messages, _ := data["messages"].([]interface{})
	require.Len(t, messages, 2)
	first, _ := messages[0].(map[string]interface{})
	assert.Equal(t, "Best offlaner this patch?", first["content"])
	assert.Equal(t, true, first["isUser"])
}

func TestChatUnknownChatroom(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "hi"})
	token := api.register(t, "gamer")

	status, _ := api.request(t, http.MethodPost, "/api/chat", token, map[string]string{
		"message":    "hello",
		"chatroomId": "chatroom_does-not-exist",
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestChatInvalidJSON(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "hi"})

	status, body := api.request(t, http.MethodPost, "/api/chat", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(llm.CodeInvalidJSON), body["code"])
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "hi"})

	status, body := api.request(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(llm.CodeEmptyMessage), body["code"])
}

func TestChatCompletionFailure(t *testing.T) {
	failure := &llm.Failure{
		Code:    llm.CodeContentBlocked,
		Message: "Content blocked",
		Details: "safety filters",
	}
	api := newTestAPI(t, fakeCompletions{err: failure})

	status, body := api.request(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(llm.CodeContentBlocked), body["code"])
	assert.Equal(t, "Content blocked", body["error"])
}

func TestChatroomsRequireAuth(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "hi"})

	for _, path := range []string{"/api/chatrooms", "/api/auth/verify"} {
		status, _ := api.request(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
	}

	status, _ := api.request(t, http.MethodGet, "/api/chatrooms", "not-a-valid-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestNewsEndpoint(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "hi"})

	req, err := http.NewRequest(http.MethodGet, api.server.URL+"/api/news?count=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "s-maxage=300")

	var parsed news.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Len(t, parsed.AppNews.NewsItems, 1)
	assert.Equal(t, "Patch 7.37", parsed.AppNews.NewsItems[0].Title)
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t, fakeCompletions{reply: "hi"})

	resp, err := http.Get(fmt.Sprintf("%s/api/health", api.server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

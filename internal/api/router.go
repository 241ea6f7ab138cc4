package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", apiHandler.RegisterHandler)
		r.Post("/auth/login", apiHandler.LoginHandler)
		r.Get("/news", apiHandler.NewsHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Chat submission works for both anonymous and authenticated
		// sessions; persistence routing follows the token.
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.OptionalAuthMiddleware)
			r.Post("/chat", apiHandler.ChatHandler)
		})

		// Anonymous draft threads
		r.Get("/drafts", apiHandler.ListDraftsHandler)
		r.Get("/drafts/{threadID}", apiHandler.GetDraftHandler)
		r.Delete("/drafts/{threadID}", apiHandler.DeleteDraftHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/auth/verify", apiHandler.VerifyHandler)

			r.Get("/chatrooms", apiHandler.ListChatroomsHandler)
			r.Post("/chatrooms", apiHandler.CreateChatroomHandler)
			r.Get("/chatrooms/{chatroomID}", apiHandler.GetChatroomMessagesHandler)
		})
	})

	return r
}

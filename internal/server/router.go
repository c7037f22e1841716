package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fathom-labs/corpus/internal/api"
	"github.com/fathom-labs/corpus/internal/api/handlers"
	"github.com/fathom-labs/corpus/internal/api/middleware"
)

type RouterConfig struct {
	TokenValidator middleware.TokenValidator
	SourceHandler  *handlers.SourceHandler
	SearchHandler  *handlers.SearchHandler
	AuthHandler    *handlers.AuthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.TokenValidator))

		r.Route("/sources", func(r chi.Router) {
			r.Post("/", cfg.SourceHandler.Create)
			r.Get("/", cfg.SourceHandler.List)
			r.Get("/{id}", cfg.SourceHandler.Get)
			r.Post("/{id}/refresh", cfg.SourceHandler.Refresh)
			r.Post("/{id}/share", cfg.SourceHandler.Share)
			r.Delete("/by-name/{name}", cfg.SourceHandler.Delete)
		})

		r.Post("/search", cfg.SearchHandler.Search)

		r.Get("/auth/microsoft", cfg.AuthHandler.MicrosoftAuthURL)
	})

	r.Post("/auth/register", cfg.AuthHandler.Register)
	r.Post("/auth/token", cfg.AuthHandler.IssueToken)
	r.Get("/auth/microsoft/callback", cfg.AuthHandler.MicrosoftCallback)

	return r
}

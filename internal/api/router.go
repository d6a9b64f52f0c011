package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dms/internal/docservice"
)

// RouterConfig controls the API router.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events behind auth.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted. It is meant to
// be mounted under /api.
func NewRouter(svc *docservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/*", h.GetDocument)
	r.Get("/categories", h.Categories)
	r.Get("/search", h.Search)
	r.Get("/status", h.Status)
	r.Get("/runs", h.Runs)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}
	return r
}

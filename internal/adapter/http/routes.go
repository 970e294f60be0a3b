package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouteOptions configures route-level middleware.
type RouteOptions struct {
	// RateLimit wraps the explanation and eviction routes. Nil disables limiting.
	RateLimit func(http.Handler) http.Handler
	// RequestTimeout bounds the non-streaming explanation routes.
	RequestTimeout time.Duration
}

// MountRoutes registers all routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	limited := func(r chi.Router) {
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}
		r.Use(GitHubToken)
	}

	r.Group(func(r chi.Router) {
		limited(r)
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}
		r.Get("/{owner}/{repo}", h.ExplainPath)
		r.Post("/api/v1/explain", h.ExplainJSON)
		r.Delete("/api/v1/explanations", h.Evict)
	})

	r.Group(func(r chi.Router) {
		limited(r)
		r.Get("/api/v1/explain/stream", h.StreamSSE)
		r.Get("/api/v1/explain/ws", h.StreamWS)
	})
}

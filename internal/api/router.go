package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bones/internal/vibeservice"
)

// NewRouter creates a chi router with all API routes mounted.
// Reads are public. Writes require the Bearer token when authEnabled and are
// rate limited per client. sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *vibeservice.Service, authEnabled bool, token string, limits RateLimitConfig, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Get("/vibe", h.GetVibe)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))
		r.Use(RateLimitMiddleware(limits))
		r.Put("/vibe", h.SetVibe)
		r.Post("/classify", h.Classify)
	})

	return r
}

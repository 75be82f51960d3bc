// Package api exposes the conversation engine over HTTP. The surface
// is small: one chat endpoint, an administrative purge, and liveness
// checks. Every error response uses the same envelope with a stable
// error_code, so clients can branch without parsing messages.
package api

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/blockvoltcr7/mem0-ai-api/engine"
)

// NewRouter assembles the chi router with all middleware and routes.
// When apiKey is empty, the /api/v1 routes are unauthenticated; the
// health endpoints never require auth.
func NewRouter(eng *engine.Engine, health *HealthHandler, apiKey string, logger *log.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errCodeNotFound,
			"no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errCodeNotFound,
			r.Method+" is not supported on "+r.URL.Path)
	})

	chatH := NewChatHandler(eng)
	memoryH := NewMemoryHandler(eng)

	// Unauthenticated routes
	r.Get("/health", health.Health)
	r.Get("/health/detailed", health.Detailed)

	// Authenticated routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Post("/chat", chatH.Chat)
		r.Delete("/memories/{ownerID}", memoryH.Purge)
	})

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-home/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermStateRead))
				r.Get("/state", s.handleGetState)
				r.Get("/capabilities", s.handleCapabilities)
				r.Get("/metrics", s.handleMetrics)
				r.Post("/auth/ws-ticket", s.handleWSTicket)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermCommandExecute))
				r.Post("/commands/{name}", s.handleExecuteCommand)
				r.Post("/keys/{key}", s.handleKeyEntry)
				r.Post("/doorbell", s.handleDoorbell)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermStateControl))
				r.Put("/state", s.handleSetState)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

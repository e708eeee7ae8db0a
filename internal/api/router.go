package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/fans", func(r chi.Router) {
			r.Get("/", s.handleListFans)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetFan)
				r.Get("/history", s.handleFanHistory)

				// Control routes
				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)

					r.Put("/percentage", s.handleSetPercentage)
					r.Post("/turn_on", s.handleTurnOn)
					r.Post("/turn_off", s.handleTurnOff)
					r.Put("/oscillation", s.handleOscillate)
					r.Put("/direction", s.handleSetDirection)
				})
			})
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// handleHealth reports the bridge status. Degraded bridges still answer 200
// so the API stays usable while a fan is misconfigured.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	healthy, reason := s.fans.Healthy()
	if !healthy {
		status = "degraded"
	}

	resp := map[string]any{
		"status":  status,
		"version": s.version,
		"fans":    len(s.fans.Fans()),
	}
	if reason != "" {
		resp["reason"] = reason
	}
	writeJSON(w, http.StatusOK, resp)
}

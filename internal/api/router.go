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

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/units", s.handleListUnits)

		r.Get("/values", s.handleGetValues)
		r.Put("/values", s.handleSetValues)

		r.Get("/status", s.handleStatus)

		r.Get("/modes", s.handleListModes)
		r.Put("/modes", s.handleSetModes)

		r.Get("/events", s.handleListEvents)
		r.Put("/events", s.handleSetEvents)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/hru", s.handleGetHRUSettings)
			r.Put("/hru", s.handleSetHRUSettings)
		})

		r.Route("/boost", func(r chi.Router) {
			r.Post("/{modeID}", s.handleStartBoost)
			r.Delete("/", s.handleCancelBoost)
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

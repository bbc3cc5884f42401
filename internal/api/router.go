package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/things", func(r chi.Router) {
			r.Get("/", s.handleListThings)
			r.Post("/", s.handleCreateThing)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetThing)
				r.Patch("/", s.handleUpdateThing)
				r.Delete("/", s.handleDeleteThing)
				r.Get("/state", s.handleGetState)
				r.Put("/state", s.handleSetState)
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": s.fleet.Len(),
	})
}

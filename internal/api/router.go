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
		r.Get("/stats", s.handleStats)
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/debug", s.handleDebugText)

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/enable", s.handleEnableAll)
			r.Post("/disable", s.handleDisableAll)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetGroup)
				r.Post("/enable", s.handleEnableGroup)
				r.Post("/disable", s.handleDisableGroup)
			})
		})

		r.Get("/hotkeys", s.handleListHotkeys)
		r.Post("/keys/{key}/press", s.handleKeyPress)
		r.Post("/keys/{key}/release", s.handleKeyRelease)

		r.Get("/state", s.handleListFlags)
		r.Put("/state/{name}", s.handleSetFlag)

		r.Route("/journal", func(r chi.Router) {
			r.Get("/events", s.handleJournalEvents)
			r.Get("/failures", s.handleJournalFailures)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

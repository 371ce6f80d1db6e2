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
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/discovery", func(r chi.Router) {
			r.Get("/kinds", s.handleListKinds)
			r.Get("/scanners", s.handleListScanners)
			r.Post("/scan", s.handleStartScan)
			r.Delete("/scan", s.handleStopScan)
			r.Get("/sessions", s.handleListSessions)

			r.Route("/results", func(r chi.Router) {
				r.Get("/", s.handleListResults)
				r.Get("/{uid}", s.handleGetResult)
				r.Delete("/{uid}", s.handleDeleteResult)
			})
		})

		r.Get("/tahoma/devices", s.handleTahomaDevices)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

package ingest

import (
	"github.com/go-chi/chi/v5"
)

func setupRoutes(r *chi.Mux, h *handlers) {
	h.auth = newAuthCache(h.deps)

	r.Get("/api/health", h.handleHealth)
	r.Get("/api/health/readiness", h.handleReadiness)
	r.Get("/api/health/detailed", h.handleDetailedHealth)

	r.Route("/api/monitor", func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/report", h.handleReport)
		r.Post("/sourcemap", h.handleSourceUpload)
		r.Post("/sourcecode", h.handleSourceUpload)
	})
}

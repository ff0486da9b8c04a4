package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facewatch/internal/web/handlers"
	"github.com/kozaktomas/facewatch/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	submissionsHandler := handlers.NewSubmissionsHandler(s.deps.Engine, s.deps.Extractor, s.deps.Blobs, s.logger)
	watchHandler := handlers.NewWatchHandler(s.deps.Registry, s.logger)
	subjectsHandler := handlers.NewSubjectsHandler(s.deps.Subjects, s.logger)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.APIToken))

			r.Post("/submissions", submissionsHandler.Create)
			r.Post("/submissions/image", submissionsHandler.CreateFromImage)

			r.Post("/watch", watchHandler.Create)

			r.Get("/subjects", subjectsHandler.List)
			r.Get("/subjects/{id}", subjectsHandler.Get)
		})
	})
}

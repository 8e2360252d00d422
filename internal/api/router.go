package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(httpMetrics(s.metrics))

	r.Get("/metrics", promhttp.Handler().(http.HandlerFunc))
	r.Get("/api/health", s.handleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/discover", s.handleEnqueueDiscover)
		r.Post("/convert", s.handleEnqueueConvert)
		r.Post("/rollback", s.handleEnqueueRollback)

		r.Get("/report/dryrun", s.handleDryRunReport)
		r.Get("/report/summary", s.handleRunSummary)

		r.Get("/inventory", s.handleListInventory)
		r.Get("/audit", s.handleListAudit)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	return r
}

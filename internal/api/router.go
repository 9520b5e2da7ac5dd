package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(handler *Handler, health *HealthHandler, maxConcurrent int, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Probes and scrapes are registered before the rate limiter so they are
	// never rejected under load.
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		rl := NewRateLimiter(maxConcurrent, logger)
		r.Use(rl.Middleware)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/intent", handler.Intent)
			r.Get("/suggestions", handler.Suggestions)
			r.Get("/session", handler.Session)
			r.Post("/events", handler.IngestEvents)

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/sessions", handler.SessionFlow)
				r.Post("/sessions/analyze", handler.AnalyzeSessions)
				r.Get("/funnel", handler.Funnel)
				r.Get("/revenue", handler.Revenue)
				r.Get("/trend", handler.Trend)
				r.Get("/refinements", handler.Refinements)
			})
		})
	})

	return r
}

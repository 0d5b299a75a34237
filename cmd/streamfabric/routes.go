package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantedge/access-layer/infrastructure/metrics"
	"github.com/quantedge/access-layer/infrastructure/middleware"
)

// routes wires the streaming fabric's HTTP surface onto go-chi/chi, the
// router the teacher's go.mod carries unused (§10 Ambient stack).
func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiRequestID(s.logger))
	r.Use(middleware.NewTracingMiddleware(s.logger).Handler)
	r.Use(middleware.NewRecoveryMiddleware(s.logger).Handler)
	r.Use(middleware.NewValidationMiddleware(middleware.DefaultValidationConfig()).Handler)
	r.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	r.Use(middleware.NewBodyLimitMiddleware(s.cfg.MaxRequestBodyBytes).Handler)
	r.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: s.cfg.corsOrigins()}).Handler)
	r.Use(middleware.MetricsMiddleware("streamfabric", s.metrics))

	// /ws/stream and /sse/stream hold their connection open for the
	// lifetime of a subscription, so the general request timeout (§5) only
	// applies to the rest of the surface.
	r.With(middleware.NewTimeoutMiddleware(0).Handler).Get("/health", s.health.Handler())
	r.With(middleware.NewTimeoutMiddleware(0).Handler).Get("/healthz", s.health.Handler())
	r.With(middleware.NewTimeoutMiddleware(0).Handler).Get("/metrics", s.metricsHandler())
	r.With(middleware.NewTimeoutMiddleware(0).Handler).Post("/sse/subscribe", s.handleSSESubscribe)

	r.Get("/ws/stream", s.handleWS)
	r.Get("/sse/stream", s.handleSSE)

	return r
}

func (s *server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !metrics.Enabled() {
			http.NotFound(w, r)
			return
		}
		promhttp.Handler().ServeHTTP(w, r)
	}
}

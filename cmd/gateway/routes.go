package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantedge/access-layer/infrastructure/metrics"
	"github.com/quantedge/access-layer/infrastructure/middleware"
)

// routes wires the full §6 HTTP surface onto a gorilla/mux router with the
// fixed middleware stack applied in this order: request-id, tracing, rate
// limit, recovery, timeout, validation, security headers, body limit, CORS,
// metrics.
func (s *server) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(requestIDMiddleware(s.logger))
	r.Use(middleware.NewTracingMiddleware(s.logger).Handler)
	r.Use(rateLimitMiddleware(s.limiter))
	r.Use(middleware.NewRecoveryMiddleware(s.logger).Handler)
	r.Use(middleware.NewTimeoutMiddleware(0).Handler)
	r.Use(middleware.NewValidationMiddleware(middleware.DefaultValidationConfig()).Handler)
	r.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	r.Use(middleware.NewBodyLimitMiddleware(s.cfg.MaxRequestBodyBytes).Handler)
	r.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: s.cfg.corsOrigins()}).Handler)
	r.Use(middleware.MetricsMiddleware("gateway", s.metrics))

	r.HandleFunc("/health", s.health.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health.Handler()).Methods(http.MethodGet)
	r.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/auth/verify", s.handleAuthVerify).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleAuthRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.requireAuth(s.handleAuthLogout)).Methods(http.MethodPost)

	r.HandleFunc("/api/v1/instruments", s.requireAuth(s.requireEntitlement("instruments", "read", s.handleInstruments))).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/curves", s.requireAuth(s.requireEntitlement("curves", "read", s.handleCurves))).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/products", s.requireAuth(s.requireEntitlement("products", "read", s.handleProducts))).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/pricing", s.requireAuth(s.requireEntitlement("pricing", "read", s.handlePricing))).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/historical", s.requireAuth(s.requireEntitlement("historical", "read", s.handleHistorical))).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/served/latest-price/{id}", s.requireAuth(s.requireEntitlement("served-latest-price", "read", s.handleServedLatestPrice))).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/served/curve-snapshots/{id}", s.requireAuth(s.requireEntitlement("served-curve-snapshot", "read", s.handleServedCurveSnapshots))).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/cache/warm", s.requireAdmin(s.handleCacheWarm)).Methods(http.MethodPost)

	r.HandleFunc("/api/v1/circuit-breakers", s.requireAuth(s.handleCircuitBreakers)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/rate-limits", s.requireAuth(s.handleRateLimitStatus)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/cache/stats", s.requireAuth(s.handleCacheStats)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/cache/catalog", s.requireAuth(s.handleCacheCatalog)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/metadata/routes", s.requireAuth(s.handleMetadataRoutes(r))).Methods(http.MethodGet)

	return r
}

func (s *server) metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !metrics.Enabled() {
			http.NotFound(w, r)
			return
		}
		promhttp.Handler().ServeHTTP(w, r)
	})
}

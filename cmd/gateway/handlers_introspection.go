package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantedge/access-layer/infrastructure/httputil"
	"github.com/quantedge/access-layer/infrastructure/resilience"
)

type circuitBreakerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// handleCircuitBreakers implements GET /api/v1/circuit-breakers.
func (s *server) handleCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	statuses := []circuitBreakerStatus{
		{Name: "marketdata", State: s.proxy.breaker.State().String()},
		{Name: "jwks", State: s.jwksBreaker.State().String()},
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"circuit_breakers": statuses})
}

// handleRateLimitStatus implements GET /api/v1/rate-limits: the caller's
// client identifier plus the limiter's aggregate count of active windows.
// The caller's own per-window usage is not reported.
func (s *server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	clientID := clientIdentifier(r)
	total, _ := s.limiter.GlobalStats(r.Context())
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"client_id":     clientID,
		"active_windows": total,
	})
}

// handleCacheStats implements GET /api/v1/cache/stats.
func (s *server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"stats": s.cache.Stats()})
}

// handleCacheCatalog implements GET /api/v1/cache/catalog.
func (s *server) handleCacheCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"catalog": s.cache.Catalog()})
}

// handleMetadataRoutes implements GET /api/v1/metadata/routes: a
// self-describing route list for operator tooling.
func (s *server) handleMetadataRoutes(router *mux.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var routes []map[string]interface{}
		_ = router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
			path, err := route.GetPathTemplate()
			if err != nil {
				return nil
			}
			methods, _ := route.GetMethods()
			routes = append(routes, map[string]interface{}{
				"path":    path,
				"methods": methods,
			})
			return nil
		})
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"routes": routes})
	}
}

// handleStatus implements GET /api/v1/status: a roll-up of downstream
// circuit state, per-class cache stats (including hit ratios) and uptime
// (§12). It does not report rate limiter health or streaming connections.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if s.proxy.breaker.State() == resilience.StateOpen {
		status = "degraded"
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"circuit_breakers": []circuitBreakerStatus{
			{Name: "marketdata", State: s.proxy.breaker.State().String()},
			{Name: "jwks", State: s.jwksBreaker.State().String()},
		},
		"cache_stats": s.cache.Stats(),
		"uptime":      time.Since(s.startedAt).String(),
	})
}

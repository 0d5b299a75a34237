package main

import (
	"net/http"

	"github.com/quantedge/access-layer/infrastructure/httputil"
)

type cacheWarmRequest struct {
	Tenant string `json:"tenant"`
}

// handleCacheWarm implements POST /api/v1/cache/warm, an admin-only
// on-demand trigger for the same warm pass the cron schedule runs.
func (s *server) handleCacheWarm(w http.ResponseWriter, r *http.Request) {
	var req cacheWarmRequest
	_ = httputil.DecodeJSONOptional(w, r, &req)

	auth, _ := authFromContext(r.Context())
	tenant := req.Tenant
	if tenant == "" {
		tenant = auth.Tenant
	}

	summary := s.warmer.Warm(r.Context(), "", tenant)
	httputil.WriteJSON(w, http.StatusOK, summary)
}

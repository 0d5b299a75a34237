package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/httputil"
	"github.com/quantedge/access-layer/internal/respcache"
)

// servedHandler implements §4.5 steps 5-7 for a single cacheable route:
// cache lookup, downstream fetch on miss, cache store on success.
func (s *server) servedHandler(class respcache.Class, logicalKeyFor func(r *http.Request) string, fetch func(ctx context.Context, r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, _ := authFromContext(r.Context())
		logicalKey := logicalKeyFor(r)
		subject := ""
		for _, cfg := range s.cache.Catalog() {
			if cfg.Class == class && cfg.SubjectScoped {
				subject = auth.Subject
			}
		}
		key := respcache.Key(class, auth.Tenant, logicalKey, subject)

		var cached interface{}
		if hit, err := s.cache.Get(r.Context(), class, key, &cached); err == nil && hit {
			httputil.WriteJSON(w, http.StatusOK, cached)
			return
		}

		value, err := fetch(r.Context(), r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		_ = s.cache.Set(r.Context(), class, key, value)
		httputil.WriteJSON(w, http.StatusOK, value)
	}
}

func (s *server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	s.servedHandler(respcache.ClassInstruments,
		func(r *http.Request) string { return "" },
		func(ctx context.Context, r *http.Request) (interface{}, error) {
			return s.proxy.fetchInstruments(ctx)
		})(w, r)
}

func (s *server) handleCurves(w http.ResponseWriter, r *http.Request) {
	s.servedHandler(respcache.ClassCurves,
		func(r *http.Request) string { return "" },
		func(ctx context.Context, r *http.Request) (interface{}, error) {
			return s.proxy.fetchJSON(ctx, "/curves")
		})(w, r)
}

func (s *server) handleProducts(w http.ResponseWriter, r *http.Request) {
	s.servedHandler(respcache.ClassProducts,
		func(r *http.Request) string { return "" },
		func(ctx context.Context, r *http.Request) (interface{}, error) {
			return s.proxy.fetchJSON(ctx, "/products")
		})(w, r)
}

func (s *server) handlePricing(w http.ResponseWriter, r *http.Request) {
	s.servedHandler(respcache.ClassPricing,
		func(r *http.Request) string { return "" },
		func(ctx context.Context, r *http.Request) (interface{}, error) {
			return s.proxy.fetchJSON(ctx, "/pricing")
		})(w, r)
}

func (s *server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	s.servedHandler(respcache.ClassHistorical,
		func(r *http.Request) string { return "" },
		func(ctx context.Context, r *http.Request) (interface{}, error) {
			return s.proxy.fetchJSON(ctx, "/historical")
		})(w, r)
}

// handleServedLatestPrice implements GET /api/v1/served/latest-price/{id},
// cached per tenant and instrument (not subject-scoped) per §4.4.
func (s *server) handleServedLatestPrice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		s.writeError(w, r, accesserrors.MissingParameter("id"))
		return
	}
	s.servedHandler(respcache.ClassServedLatestPrice,
		func(r *http.Request) string { return id },
		func(ctx context.Context, r *http.Request) (interface{}, error) {
			return s.proxy.fetchJSON(ctx, fmt.Sprintf("/served/latest-price/%s", id))
		})(w, r)
}

// handleServedCurveSnapshots implements GET
// /api/v1/served/curve-snapshots/{id}?horizon=.
func (s *server) handleServedCurveSnapshots(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		s.writeError(w, r, accesserrors.MissingParameter("id"))
		return
	}
	horizon := httputil.QueryString(r, "horizon", "")
	logicalKey := id
	if horizon != "" {
		logicalKey = fmt.Sprintf("%s:%s", id, horizon)
	}
	s.servedHandler(respcache.ClassServedCurveSnapshot,
		func(r *http.Request) string { return logicalKey },
		func(ctx context.Context, r *http.Request) (interface{}, error) {
			path := fmt.Sprintf("/served/curve-snapshots/%s", id)
			if horizon != "" {
				path += "?horizon=" + horizon
			}
			return s.proxy.fetchJSON(ctx, path)
		})(w, r)
}

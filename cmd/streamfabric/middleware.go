package main

import (
	"context"
	"net/http"

	"github.com/quantedge/access-layer/infrastructure/logging"
	"github.com/quantedge/access-layer/internal/tokenverify"
)

// chiRequestID mirrors the gateway's request-id middleware (§4.5 step 1),
// adapted for chi's identical func(http.Handler) http.Handler shape.
func chiRequestID(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), requestID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Request-Id", requestID)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticateQueryToken implements the streaming handshake's "require
// token on query string" step (§4.5): both /ws/stream and /sse/stream
// carry the bearer token as ?token=... rather than an Authorization
// header, since browser WebSocket/EventSource clients cannot set
// arbitrary headers.
func (s *server) authenticateQueryToken(ctx context.Context, r *http.Request) (*tokenverify.UserInfo, error) {
	token := r.URL.Query().Get("token")
	return s.verifier.UserInfoFromToken(ctx, token)
}

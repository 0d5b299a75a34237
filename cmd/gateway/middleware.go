package main

import (
	"net/http"

	"github.com/gorilla/mux"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/httputil"
	"github.com/quantedge/access-layer/infrastructure/logging"
	"github.com/quantedge/access-layer/internal/ratelimiter"
)

// requestIDMiddleware implements §4.5 step 1: adopt an inbound correlation
// header if present, else mint a new one, attach it to logs and the
// outbound X-Request-Id response header. The shared infrastructure/
// middleware.LoggingMiddleware does the equivalent under X-Trace-ID for the
// rest of the service layer; the gateway additionally surfaces the spec's
// exact X-Request-Id header name for external callers.
func requestIDMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), requestID)
			r = r.WithContext(ctx)
			r.Header.Set("X-Request-Id", requestID)
			w.Header().Set("X-Request-Id", requestID)
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware implements §4.5 step 2. Category is derived from the
// path; client id is resolved from the network identity since the subject
// is not yet known at this point in the fixed pipeline order.
func rateLimitMiddleware(limiter *ratelimiter.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			category := ratelimiter.CategoryFor(r.URL.Path)
			result := limiter.Check(r.Context(), clientIdentifier(r), r.URL.Path, category)

			w.Header().Set("X-RateLimit-Limit", itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", itoa(result.ResetSeconds))

			if !result.Allowed {
				svcErr := accesserrors.RateLimitExceeded(int(result.Limit), "60s").WithDetails("retry_after", result.ResetSeconds)
				httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func itoa(n int64) string {
	if n < 0 {
		n = 0
	}
	const digits = "0123456789"
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%10]
		n /= 10
	}
	return string(buf[i:])
}

// requireAuth implements §4.5 step 3: X-API-Key takes precedence over a
// bearer token; absence of both is a 401 on protected routes.
func (s *server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			rec, err := s.apiKeys.Lookup(apiKey)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			auth := authContext{
				Subject: "api-key-" + rec.Subject,
				Tenant:  rec.Tenant,
				Roles:   rec.Roles,
				Method:  authMethodAPIKey,
			}
			next(w, r.WithContext(withAuthContext(ctx, auth)))
			return
		}

		bearer := r.Header.Get("Authorization")
		if bearer == "" {
			s.writeError(w, r, accesserrors.Unauthorized("missing Authorization header or X-API-Key"))
			return
		}

		info, err := s.verifier.UserInfoFromToken(ctx, bearer)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		auth := authContext{
			Subject: info.Subject,
			Tenant:  info.Tenant,
			Roles:   info.Roles,
			Method:  authMethodBearer,
		}
		next(w, r.WithContext(withAuthContext(ctx, auth)))
	}
}

// requireEntitlement implements §4.5 step 4.
func (s *server) requireEntitlement(resource, action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, ok := authFromContext(r.Context())
		if !ok {
			s.writeError(w, r, accesserrors.Unauthorized("authentication required"))
			return
		}

		reqContext := map[string]interface{}{
			"roles": auth.Roles,
		}
		for k, v := range routeParamsAsContext(r) {
			reqContext[k] = v
		}

		decision, err := s.entitlement.Check(r.Context(), auth.Subject, auth.Tenant, resource, action, reqContext)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !decision.Allowed {
			s.writeError(w, r, accesserrors.EntitlementDenied(decision.Reason))
			return
		}
		next(w, r)
	}
}

// requireAdmin layers an operator-role check on top of requireAuth.
func (s *server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		auth, _ := authFromContext(r.Context())
		for _, role := range s.cfg.adminRoles() {
			if auth.hasRole(role) {
				next(w, r)
				return
			}
		}
		s.writeError(w, r, accesserrors.Forbidden("admin role required"))
	})
}

func routeParamsAsContext(r *http.Request) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range mux.Vars(r) {
		out[k] = v
	}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// writeError maps any error to the canonical envelope. ServiceErrors carry
// their own status/code; anything else becomes a 500 INTERNAL_ERROR so 5xx
// responses never leak internal detail (§4.5 failure semantics).
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr := accesserrors.GetServiceError(err); svcErr != nil {
		httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
		return
	}
	s.logger.WithContext(r.Context()).WithError(err).Error("unhandled gateway error")
	httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, string(accesserrors.InternalError), "internal server error", nil)
}

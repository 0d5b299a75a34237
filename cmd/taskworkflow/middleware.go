package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quantedge/access-layer/infrastructure/logging"
	"github.com/quantedge/access-layer/internal/tokenverify"
)

// adaptMiddleware lifts a func(http.Handler) http.Handler into a
// gin.HandlerFunc so infrastructure/middleware (built against gorilla/mux's
// identical signature) can be shared across gateway, streamfabric, and this
// gin-routed binary without rewriting it per router.
func adaptMiddleware(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		handled := false
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handled = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !handled {
			c.Abort()
		}
	}
}

// ginRequestID mirrors the gateway/streamfabric request-id middleware
// (§4.5 step 1) in gin's native handler shape.
func ginRequestID(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = logging.NewTraceID()
		}
		ctx := logging.WithTraceID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", requestID)
		c.Next()
	}
}

// requireBearer authenticates the Authorization header against C1 and
// stores the resulting UserInfo on the gin context for handlers to read.
func requireBearer(verifier *tokenverify.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			writeGinError(c, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "missing bearer token")
			c.Abort()
			return
		}
		info, err := verifier.UserInfoFromToken(c.Request.Context(), token)
		if err != nil {
			writeHTTPErrorGin(c, err)
			c.Abort()
			return
		}
		c.Set("user_info", info)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func userInfoFromContext(c *gin.Context) *tokenverify.UserInfo {
	v, ok := c.Get("user_info")
	if !ok {
		return nil
	}
	info, _ := v.(*tokenverify.UserInfo)
	return info
}

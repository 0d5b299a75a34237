package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantedge/access-layer/infrastructure/metrics"
	"github.com/quantedge/access-layer/infrastructure/middleware"
)

// routes wires C7's HTTP API onto gin, the router the teacher's go.mod
// carries unused (§10 Ambient stack).
func (s *server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(ginRequestID(s.logger))
	r.Use(adaptMiddleware(middleware.NewTracingMiddleware(s.logger).Handler))
	r.Use(adaptMiddleware(middleware.NewRecoveryMiddleware(s.logger).Handler))
	r.Use(adaptMiddleware(middleware.NewTimeoutMiddleware(0).Handler))
	r.Use(adaptMiddleware(middleware.NewValidationMiddleware(middleware.DefaultValidationConfig()).Handler))
	r.Use(adaptMiddleware(middleware.NewSecurityHeadersMiddleware(nil).Handler))
	r.Use(adaptMiddleware(middleware.NewBodyLimitMiddleware(s.cfg.MaxRequestBodyBytes).Handler))
	r.Use(adaptMiddleware(middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: s.cfg.corsOrigins()}).Handler))
	r.Use(adaptMiddleware(middleware.MetricsMiddleware("taskworkflow", s.metrics)))

	r.GET("/health", gin.WrapF(s.health.Handler()))
	r.GET("/healthz", gin.WrapF(s.health.Handler()))
	r.GET("/metrics", func(c *gin.Context) {
		if !metrics.Enabled() {
			c.Status(http.StatusNotFound)
			return
		}
		promhttp.Handler().ServeHTTP(c.Writer, c.Request)
	})

	auth := r.Group("/")
	auth.Use(requireBearer(s.verifier))

	auth.POST("/rftps", s.createRFTP)
	auth.GET("/rftps", s.listRFTPs)
	auth.GET("/rftps/:id", s.getRFTP)

	auth.POST("/proposals", s.createProposal)
	auth.GET("/proposals/:id", s.getProposal)

	auth.GET("/tasks", s.listTasks)
	auth.GET("/tasks/:id", s.getTask)
	auth.POST("/tasks/:id/approve", s.approveTask)
	auth.POST("/tasks/:id/start", s.startTask)
	auth.POST("/tasks/:id/progress", s.updateProgress)
	auth.POST("/tasks/:id/complete", s.completeTask)
	auth.POST("/tasks/:id/cancel", s.cancelTask)
	auth.POST("/tasks/:id/terminate", s.terminateTask)
	auth.POST("/tasks/:id/reject", s.rejectTask)

	auth.GET("/telemetry/dashboard", s.dashboard)

	return r
}

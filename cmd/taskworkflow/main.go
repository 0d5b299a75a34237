package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/quantedge/access-layer/infrastructure/logging"
	"github.com/quantedge/access-layer/infrastructure/metrics"
	"github.com/quantedge/access-layer/infrastructure/middleware"
	"github.com/quantedge/access-layer/infrastructure/resilience"
	"github.com/quantedge/access-layer/internal/taskworkflow"
	"github.com/quantedge/access-layer/internal/tokenverify"
)

// server holds every wired dependency the task workflow API needs.
type server struct {
	cfg       *Config
	logger    *logging.Logger
	metrics   *metrics.Metrics
	verifier  *tokenverify.Verifier
	engine    *taskworkflow.Engine
	health    *middleware.HealthChecker
	startedAt time.Time
}

const buildVersion = "dev"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Sprintf("taskworkflow: load config: %v", err))
	}

	logger := logging.New("taskworkflow", cfg.LogLevel, cfg.LogFormat)
	metricsInstance := metrics.Init("taskworkflow")

	srv := newServer(cfg, logger, metricsInstance)

	router := srv.routes()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(httpServer, cfg.shutdownTimeout())
	shutdown.ListenForSignals()

	logger.Info(context.Background(), "taskworkflow listening", map[string]interface{}{"port": cfg.Port})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(context.Background(), "taskworkflow: server error", err)
	}
	shutdown.Wait()
}

func newServer(cfg *Config, logger *logging.Logger, m *metrics.Metrics) *server {
	jwksBreaker := resilience.New(resilience.DefaultServiceCBConfig(logger))
	verifier := tokenverify.New(tokenverify.Config{
		JWKSURL:        cfg.JWKSURL,
		AllowedAlgs:    cfg.allowedAlgs(),
		HMACSecret:     []byte(cfg.JWTHMACSecret),
		HTTPClient:     &http.Client{Timeout: 10 * time.Second},
		CircuitBreaker: jwksBreaker,
	})

	engine := taskworkflow.New(logger)

	health := middleware.NewHealthChecker(buildVersion)
	health.RegisterCheck("jwks_circuit", func() error {
		if jwksBreaker.State() == resilience.StateOpen {
			return fmt.Errorf("jwks circuit breaker is open")
		}
		return nil
	})

	return &server{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		verifier:  verifier,
		engine:    engine,
		health:    health,
		startedAt: time.Now(),
	}
}

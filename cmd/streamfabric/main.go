package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/quantedge/access-layer/infrastructure/database"
	"github.com/quantedge/access-layer/infrastructure/logging"
	"github.com/quantedge/access-layer/infrastructure/metrics"
	"github.com/quantedge/access-layer/infrastructure/middleware"
	"github.com/quantedge/access-layer/internal/entitlement"
	"github.com/quantedge/access-layer/internal/streaming"
	"github.com/quantedge/access-layer/internal/tokenverify"
)

// server holds every wired dependency the streaming fabric needs.
type server struct {
	cfg         *Config
	logger      *logging.Logger
	metrics     *metrics.Metrics
	verifier    *tokenverify.Verifier
	entitlement *entitlement.Engine
	bus         *streaming.InProcBus
	registry    *streaming.Registry
	consumer    *streaming.Consumer
	health      *middleware.HealthChecker
	startedAt   time.Time
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Sprintf("streamfabric: load config: %v", err))
	}

	logger := logging.New("streamfabric", cfg.LogLevel, cfg.LogFormat)
	metricsInstance := metrics.Init("streamfabric")

	srv, err := newServer(cfg, logger, metricsInstance)
	if err != nil {
		logger.Fatal(context.Background(), "streamfabric: build server", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.consumer.Run(ctx)
	srv.registry.StartSweeper()

	router := srv.routes()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(httpServer, cfg.shutdownTimeout())
	shutdown.OnShutdown(func() {
		cancel()
		srv.registry.StopSweeper()
		srv.bus.Close()
	})
	shutdown.ListenForSignals()

	logger.Info(context.Background(), "streamfabric listening", map[string]interface{}{"port": cfg.Port})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(context.Background(), "streamfabric: server error", err)
	}
	shutdown.Wait()
}

func newServer(cfg *Config, logger *logging.Logger, m *metrics.Metrics) (*server, error) {
	store, err := buildEntitlementStore(cfg)
	if err != nil {
		return nil, err
	}
	engine := entitlement.New(store, logger)

	verifier := tokenverify.New(tokenverify.Config{
		JWKSURL:     cfg.JWKSURL,
		AllowedAlgs: splitCSV(cfg.JWTAllowedAlgs),
		HMACSecret:  []byte(cfg.JWTHMACSecret),
		HTTPClient:  &http.Client{Timeout: 5 * time.Second},
	})

	bus := streaming.NewInProcBus(4096)
	registry := streaming.NewRegistry(bus, cfg.topics(), cfg.MaxWSConnections, cfg.heartbeatTimeout(), logger)
	consumer := streaming.NewConsumer(bus, registry, logger)

	health := middleware.NewHealthChecker(buildVersion)
	health.RegisterCheck("registry", func() error { return nil })

	return &server{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		verifier:    verifier,
		entitlement: engine,
		bus:         bus,
		registry:    registry,
		consumer:    consumer,
		health:      health,
		startedAt:   time.Now(),
	}, nil
}

func buildEntitlementStore(cfg *Config) (entitlement.Store, error) {
	if cfg.DatabaseDSN == "" {
		return entitlement.NewMemStore(), nil
	}
	client, err := database.NewClient(database.Config{DSN: cfg.DatabaseDSN})
	if err != nil {
		return nil, fmt.Errorf("connect entitlement database: %w", err)
	}
	return database.NewEntitlementRepository(client), nil
}

const buildVersion = "dev"

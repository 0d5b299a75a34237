package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quantedge/access-layer/infrastructure/database"
	"github.com/quantedge/access-layer/infrastructure/logging"
	"github.com/quantedge/access-layer/infrastructure/metrics"
	"github.com/quantedge/access-layer/infrastructure/middleware"
	"github.com/quantedge/access-layer/infrastructure/resilience"
	"github.com/quantedge/access-layer/internal/entitlement"
	"github.com/quantedge/access-layer/internal/ratelimiter"
	"github.com/quantedge/access-layer/internal/respcache"
	"github.com/quantedge/access-layer/internal/tokenverify"
)

// server holds every wired dependency the edge request pipeline needs.
// Handlers are methods on server so they can reach auth, entitlement,
// cache, and downstream components without a global registry.
type server struct {
	cfg         *Config
	logger      *logging.Logger
	metrics     *metrics.Metrics
	verifier    *tokenverify.Verifier
	apiKeys     *tokenverify.APIKeyTable
	entitlement *entitlement.Engine
	limiter     *ratelimiter.Limiter
	cache       *respcache.Cache
	warmer      *respcache.Warmer
	proxy       *downstreamProxy
	jwksBreaker *resilience.CircuitBreaker
	health      *middleware.HealthChecker
	startedAt   time.Time
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Sprintf("gateway: load config: %v", err))
	}

	logger := logging.New("gateway", cfg.LogLevel, cfg.LogFormat)
	metricsInstance := metrics.Init("gateway")

	srv, err := newServer(cfg, logger, metricsInstance)
	if err != nil {
		logger.Fatal(context.Background(), "gateway: build server", err)
	}

	if err := srv.warmer.StartSchedule(cfg.CacheWarmCron, cfg.CacheWarmTenant); err != nil {
		logger.Warn(context.Background(), "gateway: cache warm schedule failed to start", map[string]interface{}{"error": err.Error()})
	}

	router := srv.routes()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(httpServer, cfg.shutdownTimeout())
	shutdown.OnShutdown(func() {
		srv.warmer.Stop()
	})
	shutdown.ListenForSignals()

	logger.Info(context.Background(), "gateway listening", map[string]interface{}{"port": cfg.Port})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(context.Background(), "gateway: server error", err)
	}
	shutdown.Wait()
}

func newServer(cfg *Config, logger *logging.Logger, m *metrics.Metrics) (*server, error) {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
	}

	store, err := buildEntitlementStore(cfg)
	if err != nil {
		return nil, err
	}
	engine := entitlement.New(store, logger)

	apiKeyRecords, err := tokenverify.ParseAPIKeyRecordsJSON(cfg.APIKeysJSON)
	if err != nil {
		return nil, err
	}
	apiKeys, err := tokenverify.NewAPIKeyTable(apiKeyRecords)
	if err != nil {
		return nil, err
	}

	jwksBreaker := resilience.New(resilience.DefaultServiceCBConfig(logger))
	verifier := tokenverify.New(tokenverify.Config{
		JWKSURL:         cfg.JWKSURL,
		AllowedAlgs:     cfg.allowedAlgs(),
		HMACSecret:      []byte(cfg.JWTHMACSecret),
		AccessTokenTTL:  cfg.accessTokenTTL(),
		RefreshTokenTTL: cfg.refreshTokenTTL(),
		HTTPClient:      &http.Client{Timeout: 10 * time.Second},
		CircuitBreaker:  jwksBreaker,
	})

	limiter := ratelimiter.New(redisClient, ratelimiter.DefaultLimits(), cfg.rateLimitWindow(), logger)

	cache := respcache.New(redisClient, respcache.DefaultClasses(), logger)

	proxy := newDownstreamProxy(cfg, logger, m)

	warmer, err := buildWarmer(cfg, cache, proxy, logger)
	if err != nil {
		return nil, err
	}

	health := middleware.NewHealthChecker(buildVersion)
	health.RegisterCheck("redis", func() error {
		if redisClient == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return redisClient.Ping(ctx).Err()
	})
	health.RegisterCheck("marketdata_circuit", func() error {
		if proxy.breaker.State() == resilience.StateOpen {
			return fmt.Errorf("marketdata circuit breaker is open")
		}
		return nil
	})
	health.RegisterCheck("system", systemHealthCheck)

	return &server{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		verifier:    verifier,
		apiKeys:     apiKeys,
		entitlement: engine,
		limiter:     limiter,
		cache:       cache,
		warmer:      warmer,
		proxy:       proxy,
		jwksBreaker: jwksBreaker,
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

func buildWarmer(cfg *Config, cache *respcache.Cache, proxy *downstreamProxy, logger *logging.Logger) (*respcache.Warmer, error) {
	var catalog []respcache.HotQuery
	if cfg.HotQueryCatalogPath != "" {
		loaded, err := respcache.LoadCatalog(cfg.HotQueryCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load hot query catalog: %w", err)
		}
		catalog = loaded
	}

	loaders := map[respcache.Class]respcache.Loader{
		respcache.ClassInstruments: func(ctx context.Context, tenant, logicalKey string) (interface{}, error) {
			return proxy.fetchInstruments(ctx)
		},
		respcache.ClassCurves: func(ctx context.Context, tenant, logicalKey string) (interface{}, error) {
			return proxy.fetchJSON(ctx, "/curves")
		},
		respcache.ClassProducts: func(ctx context.Context, tenant, logicalKey string) (interface{}, error) {
			return proxy.fetchJSON(ctx, "/products")
		},
	}

	return respcache.NewWarmer(cache, catalog, loaders, 5, logger), nil
}

const buildVersion = "dev"

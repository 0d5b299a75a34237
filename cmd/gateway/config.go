// Command gateway runs the edge request pipeline (C5): authentication,
// entitlement, rate limiting, response caching, and circuit-breaker-guarded
// downstream proxying.
package main

import (
	"time"

	"github.com/quantedge/access-layer/infrastructure/config"
	"github.com/quantedge/access-layer/infrastructure/utils"
)

// Config is the gateway's typed environment configuration, decoded via
// envdecode the way the teacher's services decode pkg/config.Config.
type Config struct {
	Port      int    `env:"PORT"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	JWKSURL         string `env:"JWKS_URL"`
	JWTHMACSecret   string `env:"JWT_HMAC_SECRET"`
	JWTAllowedAlgs  string `env:"JWT_ALLOWED_ALGS"`
	AccessTokenTTL  string `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL string `env:"REFRESH_TOKEN_TTL"`
	APIKeysJSON     string `env:"API_KEYS_JSON"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseDSN string `env:"DATABASE_DSN"`

	RateLimitWindow string `env:"RATE_LIMIT_WINDOW"`

	HotQueryCatalogPath string `env:"HOT_QUERY_CATALOG_PATH"`
	CacheWarmCron       string `env:"CACHE_WARM_CRON"`
	CacheWarmTenant     string `env:"CACHE_WARM_TENANT"`

	MarketDataURL     string `env:"MARKETDATA_URL"`
	DownstreamTimeout string `env:"DOWNSTREAM_TIMEOUT"`

	StreamFabricURL string `env:"STREAMFABRIC_URL"`

	ServiceID            string `env:"SERVICE_ID"`
	ServiceSigningKeyPEM string `env:"SERVICE_SIGNING_KEY_PEM"`

	CORSAllowedOrigins  string `env:"CORS_ALLOWED_ORIGINS"`
	AdminRoles          string `env:"ADMIN_ROLES"`
	MaxRequestBodyBytes int64  `env:"MAX_REQUEST_BODY_BYTES"`

	ShutdownTimeout string `env:"SHUTDOWN_TIMEOUT"`
}

// withDefaults fills in zero-valued fields, mirroring the defaulting
// pattern used by internal/tokenverify.Config and infrastructure/database.Config.
func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.JWTAllowedAlgs == "" {
		c.JWTAllowedAlgs = "RS256,HS256"
	}
	if c.AccessTokenTTL == "" {
		c.AccessTokenTTL = "15m"
	}
	if c.RefreshTokenTTL == "" {
		c.RefreshTokenTTL = "24h"
	}
	if c.RateLimitWindow == "" {
		c.RateLimitWindow = "60s"
	}
	if c.CacheWarmCron == "" {
		c.CacheWarmCron = "*/5 * * * *"
	}
	if c.MarketDataURL == "" {
		c.MarketDataURL = "http://localhost:9001"
	}
	if c.DownstreamTimeout == "" {
		c.DownstreamTimeout = "30s"
	}
	if c.AdminRoles == "" {
		c.AdminRoles = "admin,super_admin"
	}
	if c.MaxRequestBodyBytes <= 0 {
		c.MaxRequestBodyBytes = 8 << 20
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.ServiceID == "" {
		c.ServiceID = "gateway"
	}
	return c
}

func (c Config) accessTokenTTL() time.Duration   { return parseDurationOr(c.AccessTokenTTL, 15*time.Minute) }
func (c Config) refreshTokenTTL() time.Duration  { return parseDurationOr(c.RefreshTokenTTL, 24*time.Hour) }
func (c Config) rateLimitWindow() time.Duration  { return parseDurationOr(c.RateLimitWindow, 60*time.Second) }
func (c Config) downstreamTimeout() time.Duration { return parseDurationOr(c.DownstreamTimeout, 30*time.Second) }
func (c Config) shutdownTimeout() time.Duration  { return parseDurationOr(c.ShutdownTimeout, 30*time.Second) }

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func (c Config) allowedAlgs() []string {
	return splitCSV(c.JWTAllowedAlgs)
}

func (c Config) adminRoles() []string {
	return splitCSV(c.AdminRoles)
}

func (c Config) corsOrigins() []string {
	return splitCSV(c.CORSAllowedOrigins)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	return utils.TrimEmpty(utils.SplitTrim(raw, ","))
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.LoadEnv(cfg); err != nil {
		return nil, err
	}
	loaded := cfg.withDefaults()
	return &loaded, nil
}

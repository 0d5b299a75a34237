// Command taskworkflow runs C7: the RFTP -> proposal -> task state machine,
// its append-only event history, and the telemetry dashboard.
package main

import (
	"time"

	"github.com/quantedge/access-layer/infrastructure/config"
	"github.com/quantedge/access-layer/infrastructure/utils"
)

// Config is taskworkflow's typed environment configuration.
type Config struct {
	Port      int    `env:"PORT"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	JWKSURL        string `env:"JWKS_URL"`
	JWTHMACSecret  string `env:"JWT_HMAC_SECRET"`
	JWTAllowedAlgs string `env:"JWT_ALLOWED_ALGS"`

	CORSAllowedOrigins  string `env:"CORS_ALLOWED_ORIGINS"`
	MaxRequestBodyBytes int64  `env:"MAX_REQUEST_BODY_BYTES"`
	ShutdownTimeout     string `env:"SHUTDOWN_TIMEOUT"`

	DashboardRecentEvents int `env:"DASHBOARD_RECENT_EVENTS"`
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = 8083
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
	if c.MaxRequestBodyBytes <= 0 {
		c.MaxRequestBodyBytes = 1 << 20
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.DashboardRecentEvents <= 0 {
		c.DashboardRecentEvents = 50
	}
	return c
}

func (c Config) allowedAlgs() []string {
	return splitCSV(c.JWTAllowedAlgs)
}

func (c Config) corsOrigins() []string {
	return splitCSV(c.CORSAllowedOrigins)
}

func (c Config) shutdownTimeout() time.Duration {
	return parseDurationOr(c.ShutdownTimeout, 30*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
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

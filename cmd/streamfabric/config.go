// Command streamfabric runs C6: the bus consumer, connection registry, and
// WebSocket/SSE surface that fan out topic messages to streaming clients.
package main

import (
	"time"

	"github.com/quantedge/access-layer/infrastructure/config"
	"github.com/quantedge/access-layer/infrastructure/utils"
)

// Config is streamfabric's typed environment configuration.
type Config struct {
	Port      int    `env:"PORT"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	JWKSURL        string `env:"JWKS_URL"`
	JWTHMACSecret  string `env:"JWT_HMAC_SECRET"`
	JWTAllowedAlgs string `env:"JWT_ALLOWED_ALGS"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	Topics               string `env:"STREAM_TOPICS"`
	MaxWSConnections     int    `env:"MAX_WS_CONNECTIONS"`
	WSHeartbeatTimeout   string `env:"WS_HEARTBEAT_TIMEOUT"`
	OutboundQueueSize    int    `env:"OUTBOUND_QUEUE_SIZE"`

	CORSAllowedOrigins  string `env:"CORS_ALLOWED_ORIGINS"`
	MaxRequestBodyBytes int64  `env:"MAX_REQUEST_BODY_BYTES"`
	ShutdownTimeout     string `env:"SHUTDOWN_TIMEOUT"`
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = 8082
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
	if c.Topics == "" {
		c.Topics = "pricing.updates.v1,curves.updates.v1,instruments.updates.v1"
	}
	if c.MaxWSConnections <= 0 {
		c.MaxWSConnections = 5000
	}
	if c.WSHeartbeatTimeout == "" {
		c.WSHeartbeatTimeout = "30s"
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 1000
	}
	if c.MaxRequestBodyBytes <= 0 {
		c.MaxRequestBodyBytes = 1 << 20
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	return c
}

func (c Config) topics() []string {
	return utils.TrimEmpty(utils.SplitTrim(c.Topics, ","))
}

func (c Config) heartbeatTimeout() time.Duration {
	return parseDurationOr(c.WSHeartbeatTimeout, 30*time.Second)
}

func (c Config) shutdownTimeout() time.Duration {
	return parseDurationOr(c.ShutdownTimeout, 30*time.Second)
}

func (c Config) corsOrigins() []string {
	return splitCSV(c.CORSAllowedOrigins)
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

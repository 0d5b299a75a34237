package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadServicesConfig loads the services configuration from config/services.yaml
func LoadServicesConfig() (*ServicesConfig, error) {
	return LoadServicesConfigFromPath(filepath.Join("config", "services.yaml"))
}

// LoadServicesConfigFromPath loads the services configuration from a specific path
func LoadServicesConfigFromPath(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services config: %w", err)
	}

	var cfg ServicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse services config: %w", err)
	}

	// Validate that all services have required fields
	for id, settings := range cfg.Services {
		if settings.Port == 0 {
			return nil, fmt.Errorf("service %s: port is required", id)
		}
	}

	return &cfg, nil
}

// LoadServicesConfigOrDefault loads services config or returns default if file not found
func LoadServicesConfigOrDefault() *ServicesConfig {
	cfg, err := LoadServicesConfig()
	if err != nil {
		// Return default configuration with all services enabled
		return DefaultServicesConfig()
	}
	return cfg
}

// DefaultServicesConfig returns the default downstream-service topology: the three
// binaries this module ships plus the market-data and execution services the gateway
// proxies to.
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Services: map[string]*ServiceSettings{
			"gateway": {
				Enabled:     true,
				Port:        8080,
				Description: "Edge request pipeline: auth, entitlements, rate limiting, cache, proxy",
			},
			"streamfabric": {
				Enabled:     true,
				Port:        8081,
				Description: "WebSocket/SSE streaming fabric",
			},
			"taskworkflow": {
				Enabled:     true,
				Port:        8082,
				Description: "Task/RFTP/proposal workflow engine",
			},
			"marketdata": {
				Enabled:     true,
				Port:        9001,
				Description: "Downstream market-data service proxied by the gateway",
			},
			"execution": {
				Enabled:     true,
				Port:        9002,
				Description: "Downstream order-execution service proxied by the gateway",
			},
		},
	}
}

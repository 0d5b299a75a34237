package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/logging"
	"github.com/quantedge/access-layer/infrastructure/metrics"
	"github.com/quantedge/access-layer/infrastructure/ratelimit"
	"github.com/quantedge/access-layer/infrastructure/resilience"
	"github.com/quantedge/access-layer/infrastructure/serviceauth"
)

// downstreamProxy implements §4.5 step 6: a circuit-breaker-guarded,
// outbound-rate-limited call to the market data service, with a static
// fallback for instrument lookups when the circuit is open.
type downstreamProxy struct {
	baseURL string
	client  *ratelimit.RateLimitedClient
	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func newDownstreamProxy(cfg *Config, logger *logging.Logger, m *metrics.Metrics) *downstreamProxy {
	httpClient := &http.Client{Timeout: cfg.downstreamTimeout()}
	if transport := serviceSigningTransport(cfg, logger); transport != nil {
		httpClient.Transport = transport
	}
	rateLimitedClient := ratelimit.NewRateLimitedClient(httpClient, ratelimit.DefaultConfig())
	breaker := resilience.New(resilience.DefaultServiceCBConfig(logger))

	return &downstreamProxy{
		baseURL: cfg.MarketDataURL,
		client:  rateLimitedClient,
		breaker: breaker,
		logger:  logger,
		metrics: m,
	}
}

// serviceSigningTransport signs outbound market-data calls with a
// service-to-service JWT when SERVICE_SIGNING_KEY_PEM is configured, so the
// downstream can verify the call came from this gateway rather than an
// arbitrary caller. Returns nil (plain transport) when no key is set.
func serviceSigningTransport(cfg *Config, logger *logging.Logger) http.RoundTripper {
	if cfg.ServiceSigningKeyPEM == "" {
		return nil
	}
	key, err := serviceauth.ParseRSAPrivateKeyFromPEM([]byte(cfg.ServiceSigningKeyPEM))
	if err != nil {
		logger.Warn(context.Background(), "invalid service signing key, falling back to unsigned downstream calls", map[string]interface{}{"error": err.Error()})
		return nil
	}
	generator := serviceauth.NewServiceTokenGenerator(key, cfg.ServiceID, serviceauth.DefaultServiceTokenExpiry)
	return serviceauth.NewServiceTokenRoundTripper(http.DefaultTransport, generator)
}

// fetchJSON performs a GET against the market data service through the
// circuit breaker and outbound rate limiter, decoding the JSON body.
func (p *downstreamProxy) fetchJSON(ctx context.Context, path string) (interface{}, error) {
	var result interface{}

	err := p.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("downstream status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return accesserrors.ExternalAPIError("marketdata", fmt.Errorf("status %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})

	if err == resilience.ErrCircuitOpen || err == resilience.ErrTooManyRequests {
		p.metrics.RecordError("gateway", "circuit_open", path)
		return nil, accesserrors.ServiceUnavailable("marketdata", err)
	}
	if err != nil {
		p.metrics.RecordError("gateway", "downstream_call", path)
		if accesserrors.IsServiceError(err) {
			return nil, err
		}
		return nil, accesserrors.ExternalAPIError("marketdata", err)
	}
	return result, nil
}

// fetchInstruments carries a static fallback payload per §4.5 step 6: when
// the circuit is open, callers still get a minimal, explicitly-flagged
// instrument list instead of an error.
func (p *downstreamProxy) fetchInstruments(ctx context.Context) (interface{}, error) {
	result, err := p.fetchJSON(ctx, "/instruments")
	if err == nil {
		return result, nil
	}
	if accesserrors.GetHTTPStatus(err) == http.StatusServiceUnavailable {
		return instrumentsFallback(), nil
	}
	return nil, err
}

func instrumentsFallback() map[string]interface{} {
	return map[string]interface{}{
		"fallback": true,
		"instruments": []map[string]string{
			{"id": "WTI", "name": "WTI Crude"},
			{"id": "BRENT", "name": "Brent Crude"},
		},
	}
}

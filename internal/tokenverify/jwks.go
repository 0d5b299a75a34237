// Package tokenverify implements C1: JWKS-backed bearer token verification,
// an operator-configured API-key table, and best-effort logout revocation.
package tokenverify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"crypto/rsa"

	"github.com/quantedge/access-layer/infrastructure/resilience"
)

// jwk is a single entry of a JSON Web Key Set.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// jwksCache fetches and memoises a remote JWKS document, serving stale
// material when the remote is unavailable.
type jwksCache struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newJWKSCache(url string, ttl time.Duration, httpClient *http.Client, breaker *resilience.CircuitBreaker) *jwksCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if breaker == nil {
		breaker = resilience.New(resilience.DefaultConfig())
	}
	return &jwksCache{url: url, ttl: ttl, httpClient: httpClient, breaker: breaker, keys: map[string]*rsa.PublicKey{}}
}

// lookup returns the RSA public key for kid, fetching or refreshing the
// JWKS document as needed. A stale cache is served when refresh fails.
func (c *jwksCache) lookup(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	age := time.Since(c.fetchedAt)
	hasCache := c.fetchedAt.IsZero() == false
	c.mu.RUnlock()

	if ok && age < c.ttl {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		if hasCache {
			c.mu.RLock()
			key, ok := c.keys[kid]
			c.mu.RUnlock()
			if ok {
				return key, nil
			}
			return nil, fmt.Errorf("unknown-kid: %s", kid)
		}
		return nil, fmt.Errorf("jwks-unavailable: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown-kid: %s", kid)
	}
	return key, nil
}

func (c *jwksCache) refresh(ctx context.Context) error {
	return c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
		}

		var doc jwksDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return fmt.Errorf("decode jwks document: %w", err)
		}

		keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
		for _, k := range doc.Keys {
			if k.Kty != "RSA" || k.Kid == "" {
				continue
			}
			pub, err := rsaPublicKeyFromJWK(k)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		}

		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return nil
	})
}

// rsaPublicKeyFromJWK builds an *rsa.PublicKey from a JWK's base64url-encoded
// modulus and exponent, the same shape published by a Keycloak/Auth0-style
// identity provider's JWKS endpoint.
func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

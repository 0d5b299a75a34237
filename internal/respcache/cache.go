// Package respcache implements C4: a key-scoped response cache layered over
// Redis with class-default TTLs, plus a cron-scheduled hot-query warmer.
package respcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quantedge/access-layer/infrastructure/cache"
	"github.com/quantedge/access-layer/infrastructure/logging"
)

// Class enumerates the cache classes declared in §4.4.
type Class string

const (
	ClassInstruments           Class = "instruments"
	ClassCurves                Class = "curves"
	ClassProducts              Class = "products"
	ClassPricing               Class = "pricing"
	ClassHistorical            Class = "historical"
	ClassServedLatestPrice     Class = "served-latest-price"
	ClassServedCurveSnapshot   Class = "served-curve-snapshot"
	ClassServedCustomProjection Class = "served-custom-projection"
)

// ClassConfig declares a class's default TTL and hot-warm category.
type ClassConfig struct {
	Class          Class         `yaml:"class"`
	DefaultTTL     time.Duration `yaml:"default_ttl"`
	HotWarmCategory string       `yaml:"hot_warm_category"`
	SubjectScoped  bool          `yaml:"subject_scoped"`
}

// DefaultClasses matches the catalog named in §3/§4.4.
func DefaultClasses() []ClassConfig {
	return []ClassConfig{
		{Class: ClassInstruments, DefaultTTL: 5 * time.Minute, HotWarmCategory: "reference"},
		{Class: ClassCurves, DefaultTTL: 5 * time.Minute, HotWarmCategory: "reference"},
		{Class: ClassProducts, DefaultTTL: 5 * time.Minute, HotWarmCategory: "reference"},
		{Class: ClassPricing, DefaultTTL: 30 * time.Second, HotWarmCategory: "live"},
		{Class: ClassHistorical, DefaultTTL: time.Hour, HotWarmCategory: "reference"},
		{Class: ClassServedLatestPrice, DefaultTTL: 5 * time.Second, HotWarmCategory: "live"},
		{Class: ClassServedCurveSnapshot, DefaultTTL: 30 * time.Second, HotWarmCategory: "live"},
		{Class: ClassServedCustomProjection, DefaultTTL: 15 * time.Second, HotWarmCategory: "live", SubjectScoped: true},
	}
}

// Cache is the layered response cache: Redis-backed when a client is
// configured, falling back to an in-process map otherwise (e.g. local dev).
type Cache struct {
	redis   *redis.Client
	classes map[Class]ClassConfig
	logger  *logging.Logger
	statsMu sync.Mutex
	stats   map[Class]*classStats

	local *cache.Cache
}

type classStats struct {
	hits   int64
	misses int64
}

// New builds a Cache. redisClient may be nil, in which case the cache runs
// purely in-process (still useful for tests and single-instance dev runs).
func New(redisClient *redis.Client, classes []ClassConfig, logger *logging.Logger) *Cache {
	if classes == nil {
		classes = DefaultClasses()
	}
	byClass := make(map[Class]ClassConfig, len(classes))
	stats := make(map[Class]*classStats, len(classes))
	for _, c := range classes {
		byClass[c.Class] = c
		stats[c.Class] = &classStats{}
	}
	return &Cache{
		redis:   redisClient,
		classes: byClass,
		logger:  logger,
		stats:   stats,
		local:   cache.NewCache(cache.DefaultConfig()),
	}
}

// Key composes the `cache:{class}:{tenant}:{logical key}` cache key, appending
// `:{subject}` when subject is non-empty (used for subject-scoped classes, §4.4).
func Key(class Class, tenant, logicalKey, subject string) string {
	if logicalKey == "" {
		return fmt.Sprintf("cache:%s:%s", class, tenant)
	}
	if subject != "" {
		return fmt.Sprintf("cache:%s:%s:%s:%s", class, tenant, logicalKey, subject)
	}
	return fmt.Sprintf("cache:%s:%s:%s", class, tenant, logicalKey)
}

func (c *Cache) ttlFor(class Class) time.Duration {
	if cfg, ok := c.classes[class]; ok && cfg.DefaultTTL > 0 {
		return cfg.DefaultTTL
	}
	return time.Minute
}

func (c *Cache) recordHit(class Class) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if s, ok := c.stats[class]; ok {
		s.hits++
	}
}

func (c *Cache) recordMiss(class Class) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if s, ok := c.stats[class]; ok {
		s.misses++
	}
}

// Get looks up key under class. The second return value reports a cache hit.
func (c *Cache) Get(ctx context.Context, class Class, key string, out interface{}) (bool, error) {
	var raw []byte

	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			raw = val
		} else if err != redis.Nil {
			if c.logger != nil {
				c.logger.Warn(ctx, "response cache redis get failed", map[string]interface{}{"error": err.Error()})
			}
		}
	} else if val, ok := c.local.Get(key); ok {
		raw, _ = val.([]byte)
	}

	if raw == nil {
		c.recordMiss(class)
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	c.recordHit(class)
	return true, nil
}

// Set stores value under key with class's default TTL.
func (c *Cache) Set(ctx context.Context, class Class, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	ttl := c.ttlFor(class)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
			if c.logger != nil {
				c.logger.Warn(ctx, "response cache redis set failed", map[string]interface{}{"error": err.Error()})
			}
			return nil
		}
		return nil
	}

	c.local.Set(key, raw, ttl)
	return nil
}

// Catalog returns the declared classes with their default TTLs (§4.4).
func (c *Cache) Catalog() []ClassConfig {
	out := make([]ClassConfig, 0, len(c.classes))
	for _, cfg := range c.classes {
		out = append(out, cfg)
	}
	return out
}

// Stats reports aggregate counts and hit ratios per class (§12: the
// original metrics service's per-class gauge, carried in here).
type Stats struct {
	Class     Class   `json:"class"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRatio  float64 `json:"hit_ratio"`
}

func (c *Cache) Stats() []Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	out := make([]Stats, 0, len(c.stats))
	for class, s := range c.stats {
		total := s.hits + s.misses
		ratio := 0.0
		if total > 0 {
			ratio = float64(s.hits) / float64(total)
		}
		out = append(out, Stats{Class: class, Hits: s.hits, Misses: s.misses, HitRatio: ratio})
	}
	return out
}

// Package ratelimiter implements C3: a distributed sliding-window rate
// limiter keyed by (client, endpoint), backed by Redis sorted sets. The
// approach mirrors the Lua-scripted Redis sliding window used elsewhere in
// the pack for distributed limiting, adapted here to the client-facing
// category scheme in spec.md §4.3.
package ratelimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quantedge/access-layer/infrastructure/logging"
)

// Category is the static endpoint->limit mapping bucket.
type Category string

const (
	CategoryPublic        Category = "public"
	CategoryAuthenticated Category = "authenticated"
	CategoryHeavy         Category = "heavy"
	CategoryAdmin         Category = "admin"
)

// Result is the outcome of Check.
type Result struct {
	Allowed      bool
	Count        int64
	Limit        int64
	Remaining    int64
	ResetSeconds int64
}

// Limits maps a category to its requests-per-window ceiling.
type Limits map[Category]int64

// DefaultLimits matches spec.md E2E-3's public category and reasonable
// defaults for the others.
func DefaultLimits() Limits {
	return Limits{
		CategoryPublic:        100,
		CategoryAuthenticated: 600,
		CategoryHeavy:         30,
		CategoryAdmin:         20,
	}
}

// slidingWindowScript removes expired entries, reads the cardinality, and
// conditionally inserts `now` — all atomically against the Redis node, so
// concurrent checkers observe a linearisable sequence (§5).
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)

if count >= limit then
    local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
    local resetAt = now
    if #oldest == 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, count, resetAt}
end

redis.call("ZADD", key, now, member)
redis.call("EXPIRE", key, window)
return {1, count + 1, 0}
`)

// Limiter is the Redis-backed sliding-window limiter.
type Limiter struct {
	client *redis.Client
	limits Limits
	window time.Duration
	logger *logging.Logger
}

// New builds a Limiter. window defaults to 60s per §4.3.
func New(client *redis.Client, limits Limits, window time.Duration, logger *logging.Logger) *Limiter {
	if window <= 0 {
		window = 60 * time.Second
	}
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{client: client, limits: limits, window: window, logger: logger}
}

// CategoryFor maps an endpoint path to its rate-limit category, per the
// static mapping in §4.3.
func CategoryFor(path string) Category {
	switch {
	case len(path) >= 13 && path[:13] == "/api/v1/admin":
		return CategoryAdmin
	case path == "/api/v1/cache/warm":
		return CategoryAdmin
	case isHeavyEndpoint(path):
		return CategoryHeavy
	case len(path) >= 8 && path[:8] == "/api/v1/":
		return CategoryAuthenticated
	default:
		return CategoryPublic
	}
}

func isHeavyEndpoint(path string) bool {
	heavySuffixes := []string{"/bulk", "/recompute"}
	for _, suffix := range heavySuffixes {
		if len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

// Check performs the atomic sliding-window check described in §4.3.
// Redis failures fail open (allow), logging the error: the limiter is a
// best-effort guard, not a correctness control (§13, Open Question 1).
func (l *Limiter) Check(ctx context.Context, clientID, endpoint string, category Category) Result {
	limit, ok := l.limits[category]
	if !ok {
		limit = l.limits[CategoryPublic]
	}

	key := fmt.Sprintf("ratelimit:{%s}:%s", clientID, endpoint)
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10)

	raw, err := slidingWindowScript.Run(ctx, l.client, []string{key},
		now.Unix(), int64(l.window.Seconds()), limit, member).Result()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn(ctx, "rate limiter store unavailable, failing open", map[string]interface{}{"error": err.Error()})
		}
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}

	allowed := toInt64(values[0]) == 1
	count := toInt64(values[1])
	resetAt := toInt64(values[2])

	result := Result{Allowed: allowed, Count: count, Limit: limit}
	if allowed {
		result.Remaining = limit - count
	} else {
		result.Remaining = 0
		result.ResetSeconds = resetAt - now.Unix()
		if result.ResetSeconds < 0 {
			result.ResetSeconds = 0
		}
	}
	return result
}

// Reset clears the stored window for (clientID, endpoint).
func (l *Limiter) Reset(ctx context.Context, clientID, endpoint string) error {
	key := fmt.Sprintf("ratelimit:{%s}:%s", clientID, endpoint)
	return l.client.Del(ctx, key).Err()
}

// Status reports the current count without mutating the window.
func (l *Limiter) Status(ctx context.Context, clientID, endpoint string, category Category) Result {
	limit, ok := l.limits[category]
	if !ok {
		limit = l.limits[CategoryPublic]
	}
	key := fmt.Sprintf("ratelimit:{%s}:%s", clientID, endpoint)
	now := time.Now()
	l.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-l.window).Unix(), 10))
	count, err := l.client.ZCard(ctx, key).Result()
	if err != nil {
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: count < limit, Count: count, Limit: limit, Remaining: remaining}
}

// GlobalStats reports aggregate key count for operator introspection.
func (l *Limiter) GlobalStats(ctx context.Context) (int64, error) {
	keys, err := l.client.Keys(ctx, "ratelimit:*").Result()
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

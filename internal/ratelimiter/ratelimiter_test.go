package ratelimiter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		path string
		want Category
	}{
		{"/health", CategoryPublic},
		{"/api/v1/instruments", CategoryAuthenticated},
		{"/api/v1/admin/rules", CategoryAdmin},
		{"/api/v1/cache/warm", CategoryAdmin},
		{"/api/v1/data/bulk", CategoryHeavy},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryFor(tt.path), tt.path)
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()
	assert.Equal(t, int64(100), limits[CategoryPublic])
}

// requireRedis skips the test unless a Redis instance is reachable at
// REDIS_TEST_ADDR (or localhost:6379), matching the pack's convention of
// gating integration tests on an external dependency being present.
func requireRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	return client
}

func TestCheckAllowsWithinLimit(t *testing.T) {
	client := requireRedis(t)
	defer client.Close()

	limiter := New(client, Limits{CategoryPublic: 5}, time.Minute, nil)
	clientID := "test-client-allow"
	defer limiter.Reset(context.Background(), clientID, "/e")

	for i := 0; i < 5; i++ {
		result := limiter.Check(context.Background(), clientID, "/e", CategoryPublic)
		require.True(t, result.Allowed)
	}
}

func TestCheckDeniesOverLimit(t *testing.T) {
	client := requireRedis(t)
	defer client.Close()

	limiter := New(client, Limits{CategoryPublic: 2}, time.Minute, nil)
	clientID := "test-client-deny"
	defer limiter.Reset(context.Background(), clientID, "/e")

	limiter.Check(context.Background(), clientID, "/e", CategoryPublic)
	limiter.Check(context.Background(), clientID, "/e", CategoryPublic)
	result := limiter.Check(context.Background(), clientID, "/e", CategoryPublic)

	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
}

func TestResetClearsWindow(t *testing.T) {
	client := requireRedis(t)
	defer client.Close()

	limiter := New(client, Limits{CategoryPublic: 1}, time.Minute, nil)
	clientID := "test-client-reset"

	limiter.Check(context.Background(), clientID, "/e", CategoryPublic)
	require.NoError(t, limiter.Reset(context.Background(), clientID, "/e"))

	result := limiter.Check(context.Background(), clientID, "/e", CategoryPublic)
	assert.True(t, result.Allowed)
}

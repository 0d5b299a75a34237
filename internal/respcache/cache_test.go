package respcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type priceQuote struct {
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
}

func TestCacheSetGetLocal(t *testing.T) {
	cache := New(nil, nil, nil)
	ctx := context.Background()
	key := Key(ClassServedLatestPrice, "t1", "BRN", "")

	var out priceQuote
	hit, err := cache.Get(ctx, ClassServedLatestPrice, key, &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, ClassServedLatestPrice, key, priceQuote{Instrument: "BRN", Price: 52.5}))

	hit, err = cache.Get(ctx, ClassServedLatestPrice, key, &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 52.5, out.Price)
}

func TestCacheKeyComposition(t *testing.T) {
	assert.Equal(t, "cache:served-latest-price:t1:BRN", Key(ClassServedLatestPrice, "t1", "BRN", ""))
	assert.Equal(t, "cache:served-custom-projection:t1:proj1:u1", Key(ClassServedCustomProjection, "t1", "proj1", "u1"))
}

func TestCacheCatalogReturnsDeclaredClasses(t *testing.T) {
	cache := New(nil, nil, nil)
	catalog := cache.Catalog()
	assert.Len(t, catalog, len(DefaultClasses()))
}

func TestCacheStatsHitRatio(t *testing.T) {
	cache := New(nil, nil, nil)
	ctx := context.Background()
	key := Key(ClassInstruments, "t1", "all", "")

	var out []string
	cache.Get(ctx, ClassInstruments, key, &out) // miss
	cache.Set(ctx, ClassInstruments, key, []string{"BRN", "WTI"})
	cache.Get(ctx, ClassInstruments, key, &out) // hit

	for _, s := range cache.Stats() {
		if s.Class == ClassInstruments {
			assert.Equal(t, int64(1), s.Hits)
			assert.Equal(t, int64(1), s.Misses)
			assert.Equal(t, 0.5, s.HitRatio)
		}
	}
}

func TestWarmBoundedParallelism(t *testing.T) {
	cache := New(nil, nil, nil)
	catalog := []HotQuery{
		{Class: ClassInstruments, LogicalKey: "all"},
		{Class: ClassServedLatestPrice, LogicalKey: "BRN"},
	}
	loaders := map[Class]Loader{
		ClassInstruments:       func(ctx context.Context, tenant, key string) (interface{}, error) { return []string{"BRN"}, nil },
		ClassServedLatestPrice: func(ctx context.Context, tenant, key string) (interface{}, error) { return priceQuote{Instrument: key, Price: 1}, nil },
	}
	warmer := NewWarmer(cache, catalog, loaders, 2, nil)

	summary := warmer.Warm(context.Background(), "u1", "t1")
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
}

func TestWarmSkipsFailedLoader(t *testing.T) {
	cache := New(nil, nil, nil)
	catalog := []HotQuery{{Class: ClassPricing, LogicalKey: "x"}}
	loaders := map[Class]Loader{
		ClassPricing: func(ctx context.Context, tenant, key string) (interface{}, error) {
			return nil, assert.AnError
		},
	}
	warmer := NewWarmer(cache, catalog, loaders, 1, nil)

	summary := warmer.Warm(context.Background(), "", "t1")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Succeeded)
}

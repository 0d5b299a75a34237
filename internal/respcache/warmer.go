package respcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/quantedge/access-layer/infrastructure/logging"
)

// Loader populates a cache entry for (tenant, logical key) on a warm pass.
// Returning an error means the entry is left uncached for this pass (§4.4:
// loader failures are not cached).
type Loader func(ctx context.Context, tenant, logicalKey string) (interface{}, error)

// HotQuery is one entry of the hot-query catalog: a class/logical-key pair
// that should be pre-populated on warm passes.
type HotQuery struct {
	Class      Class  `yaml:"class"`
	LogicalKey string `yaml:"logical_key"`
}

// WarmSummary is returned by Warm.
type WarmSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Warmer drives scheduled and on-demand cache warming over a hot-query
// catalog, with bounded parallelism (default 5, per §4.4).
type Warmer struct {
	cache       *Cache
	catalog     []HotQuery
	loaders     map[Class]Loader
	parallelism int
	logger      *logging.Logger
	cron        *cron.Cron
}

// NewWarmer builds a Warmer. parallelism <= 0 defaults to 5.
func NewWarmer(cache *Cache, catalog []HotQuery, loaders map[Class]Loader, parallelism int, logger *logging.Logger) *Warmer {
	if parallelism <= 0 {
		parallelism = 5
	}
	return &Warmer{
		cache:       cache,
		catalog:     catalog,
		loaders:     loaders,
		parallelism: parallelism,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Warm iterates the hot-query catalog and pre-populates entries by calling
// the registered loader per class, with bounded parallelism.
func (w *Warmer) Warm(ctx context.Context, subject, tenant string) WarmSummary {
	sem := make(chan struct{}, w.parallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex
	summary := WarmSummary{}

	for _, hq := range w.catalog {
		hq := hq
		loader, ok := w.loaders[hq.Class]
		if !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			summary.Attempted++
			mu.Unlock()

			value, err := loader(ctx, tenant, hq.LogicalKey)
			if err != nil {
				if w.logger != nil {
					w.logger.Warn(ctx, "cache warm loader failed", map[string]interface{}{"class": hq.Class, "key": hq.LogicalKey, "error": err.Error()})
				}
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return
			}

			key := Key(hq.Class, tenant, hq.LogicalKey, subjectIfScoped(w.cache, hq.Class, subject))
			if err := w.cache.Set(ctx, hq.Class, key, value); err != nil {
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			summary.Succeeded++
			mu.Unlock()
		}()
	}

	wg.Wait()
	return summary
}

func subjectIfScoped(cache *Cache, class Class, subject string) string {
	if cfg, ok := cache.classes[class]; ok && cfg.SubjectScoped {
		return subject
	}
	return ""
}

// StartSchedule registers a cron-scheduled warm pass (e.g. "*/5 * * * *")
// run for the given tenant with no specific subject (system warming).
func (w *Warmer) StartSchedule(spec string, tenant string) error {
	_, err := w.cron.AddFunc(spec, func() {
		w.Warm(context.Background(), "", tenant)
	})
	if err != nil {
		return fmt.Errorf("schedule cache warmer: %w", err)
	}
	w.cron.Start()
	return nil
}

// Stop halts the scheduler.
func (w *Warmer) Stop() {
	if w.cron != nil {
		w.cron.Stop()
	}
}

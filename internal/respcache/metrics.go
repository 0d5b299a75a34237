package respcache

import "github.com/prometheus/client_golang/prometheus"

// hitRatioGauge exposes the per-class cache hit ratio as a gauge rather
// than leaving callers to derive it from hit/miss counters, matching the
// original metrics service's cache dashboard (§12).
var hitRatioGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "access_layer_cache_hit_ratio",
		Help: "Response cache hit ratio per cache class.",
	},
	[]string{"class"},
)

func init() {
	prometheus.MustRegister(hitRatioGauge)
}

// PublishStats pushes the current per-class hit ratios to the registered
// Prometheus gauge. No code in this module calls it; the gauge holds the
// values from the most recent call.
func (c *Cache) PublishStats() {
	for _, s := range c.Stats() {
		hitRatioGauge.WithLabelValues(string(s.Class)).Set(s.HitRatio)
	}
}

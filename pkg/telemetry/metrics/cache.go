package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/filegate/pkg/config"
)

// CacheMetrics tracks decision cache behaviour.
//
// Metrics:
//   - cache_hits_total, cache_misses_total
//   - cache_coalesced_total: callers that waited on another caller's computation
//   - cache_corrupt_total: entries that could not be decoded
//   - cache_evictions_total: entries evicted or invalidated
//   - cache_entries: current size (memory backend only)
type CacheMetrics struct {
	hitsTotal      prometheus.Counter
	missesTotal    prometheus.Counter
	coalescedTotal prometheus.Counter
	corruptTotal   prometheus.Counter
	evictionsTotal prometheus.Counter
	entries        prometheus.Gauge
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	cm := &CacheMetrics{
		hitsTotal:      counter("cache_hits_total", "Total number of decision cache hits"),
		missesTotal:    counter("cache_misses_total", "Total number of decision cache misses"),
		coalescedTotal: counter("cache_coalesced_total", "Total callers that joined an in-flight computation"),
		corruptTotal:   counter("cache_corrupt_total", "Total cache entries that failed to decode"),
		evictionsTotal: counter("cache_evictions_total", "Total cache entries evicted or invalidated"),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_entries",
			Help:      "Current number of entries in the decision cache",
		}),
	}

	registry.MustRegister(
		cm.hitsTotal,
		cm.missesTotal,
		cm.coalescedTotal,
		cm.corruptTotal,
		cm.evictionsTotal,
		cm.entries,
	)
	return cm
}

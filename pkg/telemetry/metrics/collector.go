package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/filegate/pkg/config"
)

// Collector owns every filegate metric and the registry they live in.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	lookup   *LookupMetrics
	decision *DecisionMetrics
	cache    *CacheMetrics
	audit    *AuditMetrics
}

// NewCollector creates a metrics collector registered on registry.
// A nil registry gets a fresh one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.LookupDurationBuckets) == 0 {
		cfg.LookupDurationBuckets = append([]float64(nil), config.DefaultLookupDurationBuckets...)
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		lookup:   NewLookupMetrics(cfg, registry),
		decision: NewDecisionMetrics(cfg, registry),
		cache:    NewCacheMetrics(cfg, registry),
		audit:    NewAuditMetrics(cfg, registry),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordLookup records one similarity lookup.
// method is EXACT, FUZZY or SEMANTIC; status is the signal status.
func (c *Collector) RecordLookup(method, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.lookup.Record(method, status, duration)
}

// RecordDecision records a decision returned to a caller. source is
// "computed" or "cache".
func (c *Collector) RecordDecision(outcome, reason, source string, confidence float64) {
	if !c.enabled() {
		return
	}
	c.decision.Record(outcome, reason, source, confidence)
}

// RecordCacheHit records a decision cache hit.
func (c *Collector) RecordCacheHit() {
	if !c.enabled() {
		return
	}
	c.cache.hitsTotal.Inc()
}

// RecordCacheMiss records a decision cache miss.
func (c *Collector) RecordCacheMiss() {
	if !c.enabled() {
		return
	}
	c.cache.missesTotal.Inc()
}

// RecordCacheCoalesced records a caller that joined an in-flight computation.
func (c *Collector) RecordCacheCoalesced() {
	if !c.enabled() {
		return
	}
	c.cache.coalescedTotal.Inc()
}

// RecordCacheCorrupt records an unreadable cache entry.
func (c *Collector) RecordCacheCorrupt() {
	if !c.enabled() {
		return
	}
	c.cache.corruptTotal.Inc()
}

// RecordCacheEviction records count evicted or invalidated entries.
func (c *Collector) RecordCacheEviction(count int) {
	if !c.enabled() || count <= 0 {
		return
	}
	c.cache.evictionsTotal.Add(float64(count))
}

// UpdateCacheSize sets the current number of cached decisions.
func (c *Collector) UpdateCacheSize(size int) {
	if !c.enabled() {
		return
	}
	c.cache.entries.Set(float64(size))
}

// RecordAuditWritten records a persisted audit record.
func (c *Collector) RecordAuditWritten() {
	if !c.enabled() {
		return
	}
	c.audit.writtenTotal.Inc()
}

// RecordAuditDropped records an audit record dropped on a full buffer
// or a failed write.
func (c *Collector) RecordAuditDropped(reason string) {
	if !c.enabled() {
		return
	}
	c.audit.droppedTotal.WithLabelValues(reason).Inc()
}

// RecordFeedback records an applied or rejected classification override.
func (c *Collector) RecordFeedback(result string) {
	if !c.enabled() {
		return
	}
	c.audit.feedbackTotal.WithLabelValues(result).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

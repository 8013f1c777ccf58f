package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/filegate/pkg/config"
)

// LookupMetrics tracks the per-method similarity lookups issued by the
// orchestrator.
type LookupMetrics struct {
	lookupsTotal   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
}

// NewLookupMetrics creates and registers lookup metrics.
func NewLookupMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LookupMetrics {
	lm := &LookupMetrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "lookups_total",
				Help:      "Total similarity lookups by method and resulting signal status",
			},
			[]string{"method", "status"},
		),
		lookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "lookup_duration_seconds",
				Help:      "Duration of similarity lookups in seconds",
				Buckets:   cfg.LookupDurationBuckets,
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(lm.lookupsTotal, lm.lookupDuration)
	return lm
}

// Record records one lookup.
func (lm *LookupMetrics) Record(method, status string, duration time.Duration) {
	lm.lookupsTotal.WithLabelValues(method, status).Inc()
	lm.lookupDuration.WithLabelValues(method).Observe(duration.Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/filegate/pkg/config"
)

// DecisionMetrics tracks decisions returned to callers.
type DecisionMetrics struct {
	decisionsTotal *prometheus.CounterVec
	confidence     prometheus.Histogram
}

// NewDecisionMetrics creates and registers decision metrics.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total decisions by outcome, reason code and source",
			},
			[]string{"outcome", "reason", "source"},
		),
		confidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_confidence",
				Help:      "Fused confidence of computed decisions",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
	}

	registry.MustRegister(dm.decisionsTotal, dm.confidence)
	return dm
}

// Record records one decision. Confidence is only observed for computed
// decisions so cache hits do not skew the distribution.
func (dm *DecisionMetrics) Record(outcome, reason, source string, confidence float64) {
	dm.decisionsTotal.WithLabelValues(outcome, reason, source).Inc()
	if source != "cache" {
		dm.confidence.Observe(confidence)
	}
}

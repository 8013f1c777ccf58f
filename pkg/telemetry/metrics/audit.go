package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/filegate/pkg/config"
)

// AuditMetrics tracks the audit trail and feedback loop.
type AuditMetrics struct {
	writtenTotal  prometheus.Counter
	droppedTotal  *prometheus.CounterVec
	feedbackTotal *prometheus.CounterVec
}

// NewAuditMetrics creates and registers audit metrics.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		writtenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "audit_records_written_total",
			Help:      "Total audit records persisted",
		}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "audit_records_dropped_total",
			Help:      "Total audit records dropped by reason",
		}, []string{"reason"}),
		feedbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feedback_overrides_total",
			Help:      "Total classification overrides by result",
		}, []string{"result"}),
	}

	registry.MustRegister(am.writtenTotal, am.droppedTotal, am.feedbackTotal)
	return am
}

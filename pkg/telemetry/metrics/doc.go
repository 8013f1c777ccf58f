// Package metrics provides Prometheus metrics for filegate.
//
// # Metrics
//
//   - lookups_total{method,status} and lookup_duration_seconds{method}
//   - decisions_total{outcome,reason,source} and decision_confidence
//   - cache_{hits,misses,coalesced,corrupt,evictions}_total and cache_entries
//   - audit_records_{written,dropped}_total
//   - feedback_overrides_total{result}
//
// All names carry the configured namespace and subsystem. A nil
// *Collector and a disabled one are both no-ops, so components can be
// constructed without metrics in tests.
//
// # Prometheus Endpoint
//
//	http.Handle(cfg.Path, collector.Handler())
package metrics

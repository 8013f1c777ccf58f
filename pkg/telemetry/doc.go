// Package telemetry groups filegate's observability packages.
//
//   - logging: slog construction with context-derived fields
//   - metrics: Prometheus lookup, decision, cache and audit metrics
//   - tracing: OpenTelemetry spans exported over OTLP/gRPC
//   - health: liveness and readiness probes
package telemetry

// Package tracing wires OpenTelemetry tracing for filegate.
//
// When enabled, spans are exported over OTLP/gRPC. The gate opens one
// span per evaluation and the orchestrator one child span per lookup:
//
//	filegate.evaluate
//	├── filegate.lookup.exact
//	├── filegate.lookup.fuzzy
//	└── filegate.lookup.semantic
//
// A disabled tracer hands out no-op spans.
package tracing

package tracing

import (
	"fmt"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Values for telemetry.tracing.sampler.
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// createSampler maps the configured strategy onto an SDK sampler. The
// result is parent-based, so an evaluation started under a sampled caller
// span keeps every lookup span. An empty strategy means ratio.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	var root sdktrace.Sampler
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case SamplerAlways:
		root = sdktrace.AlwaysSample()
	case SamplerNever:
		root = sdktrace.NeverSample()
	case SamplerRatio, "":
		if ratio < 0 || ratio > 1 {
			return nil, fmt.Errorf("sample ratio must be within [0, 1], got %g", ratio)
		}
		root = sdktrace.TraceIDRatioBased(ratio)
	default:
		return nil, fmt.Errorf("unknown sampler %q (want always, never or ratio)", strategy)
	}
	return sdktrace.ParentBased(root), nil
}

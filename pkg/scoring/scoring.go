// Package scoring fuses per-method similarity signals into one risk
// confidence.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"mercator-hq/filegate/pkg/verdict"
)

// ErrInvalidWeights is returned when a weight is negative, NaN or infinite.
var ErrInvalidWeights = errors.New("invalid scoring weights")

// Weights holds the contribution of each non-exact method.
type Weights struct {
	Fuzzy    float64 `yaml:"fuzzy" json:"fuzzy"`
	Semantic float64 `yaml:"semantic" json:"semantic"`
	Size     float64 `yaml:"size" json:"size"`
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{Fuzzy: 0.5, Semantic: 0.3, Size: 0.2}
}

// Validate checks that every weight is finite and non-negative.
func (w Weights) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"fuzzy", w.Fuzzy},
		{"semantic", w.Semantic},
		{"size", w.Size},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s weight is not finite", ErrInvalidWeights, f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("%w: %s weight %v is negative", ErrInvalidWeights, f.name, f.value)
		}
	}
	return nil
}

func (w Weights) of(m verdict.Method) float64 {
	switch m {
	case verdict.MethodFuzzy:
		return w.Fuzzy
	case verdict.MethodSemantic:
		return w.Semantic
	case verdict.MethodSize:
		return w.Size
	default:
		return 0
	}
}

// Score is the fused result of a signal set.
type Score struct {
	// Confidence is in [0, 1]; higher means riskier.
	Confidence float64

	// Exact is set when an exact match decided the score. Its
	// classification alone determines the outcome.
	Exact *verdict.MatchRef

	// Matched is true when any present signal named a fingerprint.
	Matched bool

	// MatchedFingerprintIDs lists distinct matched fingerprints, best first.
	MatchedFingerprintIDs []string
}

// Engine computes confidence from signals. It is safe for concurrent use.
type Engine struct {
	weights Weights
}

// New validates weights and returns an Engine.
func New(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: w}, nil
}

// Weights returns the configured weights.
func (e *Engine) Weights() Weights { return e.weights }

// Score fuses signals. Absent signals contribute nothing; they are never
// treated as a zero score of a present method.
func (e *Engine) Score(signals []verdict.Signal) Score {
	var out Score

	for _, s := range signals {
		if s.Method == verdict.MethodExact && s.Matched() {
			ref := s.Match
			out.Exact = &ref
			out.Confidence = 1.0
			out.Matched = true
			out.MatchedFingerprintIDs = []string{ref.FingerprintID}
			return out
		}
	}

	type ranked struct {
		score float64
		ref   verdict.MatchRef
	}
	var matches []ranked
	var sum float64

	for _, s := range signals {
		if !s.Present() || s.Method == verdict.MethodExact {
			continue
		}
		sum += e.weights.of(s.Method) * clamp01(s.Score)
		if s.Match.IsZero() || s.Method == verdict.MethodSize {
			continue
		}
		matches = append(matches, ranked{score: s.Score, ref: s.Match})
	}

	out.Confidence = clamp01(sum)

	sort.SliceStable(matches, func(i, j int) bool {
		return verdict.Better(matches[i].score, matches[i].ref, matches[j].score, matches[j].ref)
	})
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.ref.FingerprintID]; ok {
			continue
		}
		seen[m.ref.FingerprintID] = struct{}{}
		out.MatchedFingerprintIDs = append(out.MatchedFingerprintIDs, m.ref.FingerprintID)
	}
	out.Matched = len(out.MatchedFingerprintIDs) > 0

	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

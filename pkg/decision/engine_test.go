package decision

import (
	"errors"
	"testing"

	"mercator-hq/filegate/pkg/scoring"
	"mercator-hq/filegate/pkg/verdict"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestThresholdBoundaries(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name       string
		confidence float64
		matched    bool
		want       verdict.Outcome
		reason     verdict.ReasonCode
	}{
		{"exactly block", 0.90, true, verdict.OutcomeBlock, verdict.ReasonSimilarityBlock},
		{"above block", 0.95, true, verdict.OutcomeBlock, verdict.ReasonSimilarityBlock},
		{"exactly warn", 0.70, true, verdict.OutcomeWarn, verdict.ReasonSimilarityWarn},
		{"between", 0.76, true, verdict.OutcomeWarn, verdict.ReasonSimilarityWarn},
		{"below warn", 0.6999, true, verdict.OutcomeAllow, verdict.ReasonSimilarityBelowThreshold},
		{"no match", 0, false, verdict.OutcomeAllow, verdict.ReasonNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(scoring.Score{Confidence: tt.confidence, Matched: tt.matched}, nil)
			if d.Outcome != tt.want {
				t.Errorf("outcome = %v, want %v", d.Outcome, tt.want)
			}
			if d.Reason != tt.reason {
				t.Errorf("reason = %v, want %v", d.Reason, tt.reason)
			}
			if d.ID == "" || d.DecidedAt.IsZero() {
				t.Error("decision id and timestamp must be set")
			}
		})
	}
}

func TestExactClassification(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		class  verdict.Classification
		want   verdict.Outcome
		reason verdict.ReasonCode
	}{
		{verdict.ClassMalicious, verdict.OutcomeBlock, verdict.ReasonExactMatchMalicious},
		{verdict.ClassBenign, verdict.OutcomeAllow, verdict.ReasonExactMatchBenign},
		{verdict.ClassUnknown, verdict.OutcomeWarn, verdict.ReasonExactMatchUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			ref := verdict.MatchRef{FingerprintID: "fp-1", Classification: tt.class}
			d := e.Decide(scoring.Score{Confidence: 1, Exact: &ref, Matched: true, MatchedFingerprintIDs: []string{"fp-1"}}, nil)
			if d.Outcome != tt.want || d.Reason != tt.reason {
				t.Errorf("got %v/%v, want %v/%v", d.Outcome, d.Reason, tt.want, tt.reason)
			}
			if d.Confidence != 1 {
				t.Errorf("confidence = %v, want 1", d.Confidence)
			}
		})
	}
}

func TestUnreachableFailsClosed(t *testing.T) {
	e := newEngine(t)
	partial := []verdict.Signal{
		{Method: verdict.MethodExact, Status: verdict.StatusFailed, Error: "refused"},
		{Method: verdict.MethodFuzzy, Status: verdict.StatusTimeout},
	}

	d := e.Unreachable(partial)
	if d.Outcome != verdict.OutcomeBlock {
		t.Errorf("outcome = %v, want BLOCK", d.Outcome)
	}
	if d.Reason != verdict.ReasonBackendUnreachable {
		t.Errorf("reason = %v, want BACKEND_UNREACHABLE", d.Reason)
	}
	if len(d.Signals) != 2 {
		t.Errorf("signals should be kept as evidence, got %d", len(d.Signals))
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"warn above block", Config{Thresholds: Thresholds{Warn: 0.9, Block: 0.7}}},
		{"block above one", Config{Thresholds: Thresholds{Warn: 0.5, Block: 1.5}}},
		{"negative warn", Config{Thresholds: Thresholds{Warn: -0.1, Block: 0.5}}},
		{"bad outcome", Config{Thresholds: DefaultThresholds(), UnclassifiedExact: verdict.Outcome(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestEqualThresholdsSkipWarn(t *testing.T) {
	e, err := New(Config{Thresholds: Thresholds{Warn: 0.8, Block: 0.8}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := e.Classify(0.8); got != verdict.OutcomeBlock {
		t.Errorf("Classify(0.8) = %v, want BLOCK", got)
	}
	if got := e.Classify(0.79); got != verdict.OutcomeAllow {
		t.Errorf("Classify(0.79) = %v, want ALLOW", got)
	}
}

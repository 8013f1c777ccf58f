package scoring

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"mercator-hq/filegate/pkg/verdict"
)

func present(m verdict.Method, score float64, id string) verdict.Signal {
	s := verdict.Signal{Method: m, Status: verdict.StatusOK, Score: score}
	if id != "" {
		s.Match = verdict.MatchRef{FingerprintID: id, Classification: verdict.ClassMalicious}
	}
	return s
}

func TestWeightedSum(t *testing.T) {
	e, err := New(DefaultWeights())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := e.Score([]verdict.Signal{
		present(verdict.MethodFuzzy, 0.9, "fp-1"),
		present(verdict.MethodSemantic, 0.5, "fp-2"),
		present(verdict.MethodSize, 0.8, "fp-1"),
	})

	if math.Abs(got.Confidence-0.76) > 1e-9 {
		t.Errorf("confidence = %v, want 0.76", got.Confidence)
	}
	if got.Exact != nil {
		t.Error("no exact match expected")
	}
	if len(got.MatchedFingerprintIDs) != 2 || got.MatchedFingerprintIDs[0] != "fp-1" {
		t.Errorf("matched ids = %v, want [fp-1 fp-2]", got.MatchedFingerprintIDs)
	}
}

func TestAbsentSignalContributesNothing(t *testing.T) {
	e, err := New(Weights{Fuzzy: 1.0, Semantic: 1.0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := e.Score([]verdict.Signal{
		present(verdict.MethodFuzzy, 0.95, "fp-1"),
		{Method: verdict.MethodSemantic, Status: verdict.StatusTimeout, Score: 0.99},
	})
	if math.Abs(got.Confidence-0.95) > 1e-9 {
		t.Errorf("confidence = %v, want 0.95", got.Confidence)
	}
}

func TestExactMatchIsDecisive(t *testing.T) {
	e, _ := New(DefaultWeights())
	ref := verdict.MatchRef{FingerprintID: "fp-x", Classification: verdict.ClassBenign}

	got := e.Score([]verdict.Signal{
		{Method: verdict.MethodExact, Status: verdict.StatusOK, Score: 1, Match: ref},
		present(verdict.MethodFuzzy, 0.1, "fp-y"),
	})
	if got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", got.Confidence)
	}
	if got.Exact == nil || got.Exact.Classification != verdict.ClassBenign {
		t.Fatalf("exact = %+v", got.Exact)
	}
	if len(got.MatchedFingerprintIDs) != 1 || got.MatchedFingerprintIDs[0] != "fp-x" {
		t.Errorf("matched ids = %v", got.MatchedFingerprintIDs)
	}
}

func TestNoSignals(t *testing.T) {
	e, _ := New(DefaultWeights())
	got := e.Score([]verdict.Signal{
		{Method: verdict.MethodExact, Status: verdict.StatusOK},
		{Method: verdict.MethodFuzzy, Status: verdict.StatusOK},
	})
	if got.Confidence != 0 || got.Matched {
		t.Errorf("got %+v, want zero confidence and no match", got)
	}
}

func TestClampAboveOne(t *testing.T) {
	e, _ := New(Weights{Fuzzy: 1, Semantic: 1, Size: 1})
	got := e.Score([]verdict.Signal{
		present(verdict.MethodFuzzy, 0.9, "a"),
		present(verdict.MethodSemantic, 0.9, "b"),
		present(verdict.MethodSize, 0.9, ""),
	})
	if got.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped 1", got.Confidence)
	}
}

func TestInvalidWeights(t *testing.T) {
	tests := []struct {
		name string
		w    Weights
	}{
		{"negative", Weights{Fuzzy: -0.1}},
		{"nan", Weights{Semantic: math.NaN()}},
		{"inf", Weights{Size: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.w); !errors.Is(err, ErrInvalidWeights) {
				t.Errorf("expected ErrInvalidWeights, got %v", err)
			}
		})
	}
}

func TestMonotone(t *testing.T) {
	e, _ := New(DefaultWeights())
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	methods := []verdict.Method{verdict.MethodFuzzy, verdict.MethodSemantic, verdict.MethodSize}

	for i := 0; i < 500; i++ {
		base := []verdict.Signal{
			present(verdict.MethodFuzzy, rng.Float64(), "a"),
			present(verdict.MethodSemantic, rng.Float64(), "b"),
			present(verdict.MethodSize, rng.Float64(), ""),
		}
		before := e.Score(base).Confidence

		raised := append([]verdict.Signal(nil), base...)
		idx := rng.Intn(len(methods))
		raised[idx].Score = raised[idx].Score + rng.Float64()*(1-raised[idx].Score)
		after := e.Score(raised).Confidence

		if after < before {
			t.Fatalf("raising %v from %v to %v lowered confidence %v -> %v",
				methods[idx], base[idx].Score, raised[idx].Score, before, after)
		}
	}
}

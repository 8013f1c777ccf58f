// Package decision maps a fused confidence onto ALLOW, WARN or BLOCK.
//
// Thresholds are lower-bound inclusive: a confidence exactly equal to the
// block threshold blocks. When every backend lookup failed the engine fails
// closed with BLOCK and reason BACKEND_UNREACHABLE.
package decision

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/filegate/pkg/scoring"
	"mercator-hq/filegate/pkg/verdict"
)

// Engine produces Decisions. It is immutable and safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.UnclassifiedExact == 0 {
		cfg.UnclassifiedExact = verdict.OutcomeWarn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, now: time.Now}, nil
}

// Thresholds returns the configured thresholds.
func (e *Engine) Thresholds() Thresholds { return e.cfg.Thresholds }

// Classify maps a confidence onto an outcome using the thresholds only.
func (e *Engine) Classify(confidence float64) verdict.Outcome {
	switch {
	case confidence >= e.cfg.Thresholds.Block:
		return verdict.OutcomeBlock
	case confidence >= e.cfg.Thresholds.Warn:
		return verdict.OutcomeWarn
	default:
		return verdict.OutcomeAllow
	}
}

// Decide turns a score into a Decision carrying signals as evidence.
func (e *Engine) Decide(score scoring.Score, signals []verdict.Signal) verdict.Decision {
	d := e.newDecision(signals)
	d.Confidence = score.Confidence
	d.MatchedFingerprintIDs = append([]string(nil), score.MatchedFingerprintIDs...)

	if score.Exact != nil {
		switch score.Exact.Classification {
		case verdict.ClassMalicious:
			d.Outcome, d.Reason = verdict.OutcomeBlock, verdict.ReasonExactMatchMalicious
		case verdict.ClassBenign:
			d.Outcome, d.Reason = verdict.OutcomeAllow, verdict.ReasonExactMatchBenign
		default:
			d.Outcome, d.Reason = e.cfg.UnclassifiedExact, verdict.ReasonExactMatchUnclassified
		}
		return d
	}

	d.Outcome = e.Classify(score.Confidence)
	switch d.Outcome {
	case verdict.OutcomeBlock:
		d.Reason = verdict.ReasonSimilarityBlock
	case verdict.OutcomeWarn:
		d.Reason = verdict.ReasonSimilarityWarn
	default:
		if score.Matched {
			d.Reason = verdict.ReasonSimilarityBelowThreshold
		} else {
			d.Reason = verdict.ReasonNoMatch
		}
	}
	return d
}

// Unreachable returns the fail-closed Decision used when no lookup
// succeeded and no cached decision exists. Partial signals are kept as
// evidence but ignored.
func (e *Engine) Unreachable(signals []verdict.Signal) verdict.Decision {
	d := e.newDecision(signals)
	d.Outcome = verdict.OutcomeBlock
	d.Reason = verdict.ReasonBackendUnreachable
	d.Confidence = 0
	return d
}

func (e *Engine) newDecision(signals []verdict.Signal) verdict.Decision {
	return verdict.Decision{
		ID:            uuid.New().String(),
		Signals:       append([]verdict.Signal(nil), signals...),
		DecidedAt:     e.now().UTC(),
		PolicyVersion: e.cfg.PolicyVersion,
	}
}

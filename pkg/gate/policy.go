package gate

import (
	"fmt"
	"strings"

	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/decision"
	"mercator-hq/filegate/pkg/scoring"
	"mercator-hq/filegate/pkg/verdict"
)

// Policy is the hot-reloadable part of the configuration.
type Policy struct {
	Weights  scoring.Weights
	Decision decision.Config
}

// DefaultPolicy returns the stock weights and thresholds.
func DefaultPolicy() Policy {
	return Policy{Weights: scoring.DefaultWeights(), Decision: decision.DefaultConfig()}
}

// PolicyFromConfig extracts the policy from a loaded configuration.
func PolicyFromConfig(cfg *config.Config) (Policy, error) {
	p := Policy{
		Weights: scoring.Weights{
			Fuzzy:    cfg.Scoring.FuzzyWeight,
			Semantic: cfg.Scoring.SemanticWeight,
			Size:     cfg.Scoring.SizeWeight,
		},
		Decision: decision.Config{
			Thresholds: decision.Thresholds{
				Warn:  cfg.Decision.WarnThreshold,
				Block: cfg.Decision.BlockThreshold,
			},
			UnclassifiedExact: verdict.OutcomeWarn,
			PolicyVersion:     cfg.PolicyVersion(),
		},
	}
	if s := strings.TrimSpace(cfg.Decision.UnclassifiedExact); s != "" {
		o, err := verdict.ParseOutcome(s)
		if err != nil {
			return Policy{}, fmt.Errorf("decision.unclassified_exact: %w", err)
		}
		p.Decision.UnclassifiedExact = o
	}
	return p, nil
}

// engines is an immutable scorer/decider pair built from one Policy.
type engines struct {
	policy  Policy
	scorer  *scoring.Engine
	decider *decision.Engine
}

func build(p Policy) (*engines, error) {
	scorer, err := scoring.New(p.Weights)
	if err != nil {
		return nil, err
	}
	decider, err := decision.New(p.Decision)
	if err != nil {
		return nil, err
	}
	return &engines{policy: p, scorer: scorer, decider: decider}, nil
}

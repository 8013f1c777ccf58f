package decision

import (
	"errors"
	"fmt"
	"math"

	"mercator-hq/filegate/pkg/verdict"
)

// ErrInvalidConfig is returned for thresholds that cannot be ordered.
var ErrInvalidConfig = errors.New("invalid decision config")

// Thresholds are lower-bound inclusive cut points on confidence.
type Thresholds struct {
	// Warn is the minimum confidence for WARN.
	// Default: 0.70.
	Warn float64 `yaml:"warn" json:"warn"`

	// Block is the minimum confidence for BLOCK.
	// Default: 0.90.
	Block float64 `yaml:"block" json:"block"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Warn: 0.70, Block: 0.90}
}

// Validate checks 0 <= Warn <= Block <= 1.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"warn": t.Warn, "block": t.Block} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s threshold %v must be within [0, 1]", ErrInvalidConfig, name, v)
		}
	}
	if t.Warn > t.Block {
		return fmt.Errorf("%w: warn threshold %v exceeds block threshold %v", ErrInvalidConfig, t.Warn, t.Block)
	}
	return nil
}

// Config configures an Engine.
type Config struct {
	Thresholds Thresholds

	// UnclassifiedExact is the outcome for an exact match on a fingerprint
	// that has not been classified yet.
	// Default: WARN.
	UnclassifiedExact verdict.Outcome

	// PolicyVersion is stamped on every Decision.
	PolicyVersion string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:        DefaultThresholds(),
		UnclassifiedExact: verdict.OutcomeWarn,
	}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	switch c.UnclassifiedExact {
	case verdict.OutcomeAllow, verdict.OutcomeWarn, verdict.OutcomeBlock:
	default:
		return fmt.Errorf("%w: unclassified exact outcome %v", ErrInvalidConfig, c.UnclassifiedExact)
	}
	return nil
}

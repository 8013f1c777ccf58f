package cli

import (
	"errors"
	"fmt"
	"testing"

	"mercator-hq/filegate/pkg/verdict"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{NewConfigError("cache.ttl", "must be positive"), "config error in cache.ttl: must be positive"},
		{NewConfigError("", "file not found"), "config error: file not found"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCommandError("serve", cause)

	if err.Error() != "command serve failed: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() does not reach the cause")
	}
}

func TestOutcomeExitCode(t *testing.T) {
	tests := []struct {
		outcome verdict.Outcome
		want    int
	}{
		{verdict.OutcomeAllow, ExitOK},
		{verdict.OutcomeWarn, ExitWarn},
		{verdict.OutcomeBlock, ExitBlock},
		{0, ExitFailure},
	}
	for _, tt := range tests {
		if got := OutcomeExitCode(tt.outcome); got != tt.want {
			t.Errorf("OutcomeExitCode(%s) = %d, want %d", tt.outcome, got, tt.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", &ExitError{Code: ExitBlock}, ExitBlock},
		{"wrapped exit error", fmt.Errorf("decide: %w", &ExitError{Code: ExitWarn}), ExitWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

package cli

import (
	"errors"
	"fmt"

	"mercator-hq/filegate/pkg/verdict"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitWarn    = 2
	ExitBlock   = 3
)

// ConfigError reports a problem with flags or the configuration file.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// CommandError wraps the failure of a subcommand.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewCommandError creates a CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// ExitError carries a non-zero exit code that is not a failure, such as a
// BLOCK outcome from `filegate decide`.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// OutcomeExitCode maps a decision outcome onto an exit code.
func OutcomeExitCode(o verdict.Outcome) int {
	switch o {
	case verdict.OutcomeAllow:
		return ExitOK
	case verdict.OutcomeWarn:
		return ExitWarn
	case verdict.OutcomeBlock:
		return ExitBlock
	default:
		return ExitFailure
	}
}

// ExitCode returns the code the process should exit with for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

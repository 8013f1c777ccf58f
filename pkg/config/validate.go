package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "cache.ttl").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Has reports whether field failed validation.
func (e ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration. All errors are collected
// and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateMatching(&cfg.Matching)...)
	errs = append(errs, validateScoring(&cfg.Scoring)...)
	errs = append(errs, validateDecision(&cfg.Decision)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateFeedback(&cfg.Feedback)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateMatching(cfg *MatchingConfig) []FieldError {
	var errs []FieldError

	if cfg.Deadline <= 0 {
		errs = append(errs, FieldError{"matching.deadline", "must be positive"})
	}
	for field, d := range map[string]int64{
		"matching.exact_timeout":    int64(cfg.ExactTimeout),
		"matching.fuzzy_timeout":    int64(cfg.FuzzyTimeout),
		"matching.semantic_timeout": int64(cfg.SemanticTimeout),
	} {
		if d <= 0 {
			errs = append(errs, FieldError{field, "must be positive"})
		}
	}
	if cfg.SemanticK < 1 {
		errs = append(errs, FieldError{"matching.semantic_k", "must be at least 1"})
	}
	if cfg.FuzzyMinScore < 0 || cfg.FuzzyMinScore > 1 {
		errs = append(errs, FieldError{"matching.fuzzy_min_score", "must be within [0, 1]"})
	}
	if cfg.FuzzyMaxCandidates < 1 {
		errs = append(errs, FieldError{"matching.fuzzy_max_candidates", "must be at least 1"})
	}
	if cfg.FuzzyBandRows < 1 {
		errs = append(errs, FieldError{"matching.fuzzy_band_rows", "must be at least 1"})
	}
	if cfg.Retry.BaseDelay < 0 {
		errs = append(errs, FieldError{"matching.retry.base_delay", "must be non-negative"})
	}
	return errs
}

func validateScoring(cfg *ScoringConfig) []FieldError {
	var errs []FieldError
	for field, w := range map[string]float64{
		"scoring.fuzzy_weight":    cfg.FuzzyWeight,
		"scoring.semantic_weight": cfg.SemanticWeight,
		"scoring.size_weight":     cfg.SizeWeight,
	} {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			errs = append(errs, FieldError{field, "must be a finite, non-negative number"})
		}
	}
	return errs
}

func validateDecision(cfg *DecisionConfig) []FieldError {
	var errs []FieldError

	if cfg.WarnThreshold < 0 || cfg.WarnThreshold > 1 || math.IsNaN(cfg.WarnThreshold) {
		errs = append(errs, FieldError{"decision.warn_threshold", "must be within [0, 1]"})
	}
	if cfg.BlockThreshold < 0 || cfg.BlockThreshold > 1 || math.IsNaN(cfg.BlockThreshold) {
		errs = append(errs, FieldError{"decision.block_threshold", "must be within [0, 1]"})
	}
	if cfg.WarnThreshold > cfg.BlockThreshold {
		errs = append(errs, FieldError{"decision.warn_threshold", "must not exceed block_threshold"})
	}
	switch strings.ToLower(cfg.UnclassifiedExact) {
	case "allow", "warn", "block":
	default:
		errs = append(errs, FieldError{"decision.unclassified_exact", `must be one of "allow", "warn", "block"`})
	}
	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
		if cfg.MaxEntries < 1 {
			errs = append(errs, FieldError{"cache.max_entries", "must be at least 1"})
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{"cache.redis.addr", "is required for the redis backend"})
		}
	default:
		errs = append(errs, FieldError{"cache.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend)})
	}
	if cfg.TTL <= 0 {
		errs = append(errs, FieldError{"cache.ttl", "must be positive"})
	}
	if cfg.FailClosedTTL < 0 {
		errs = append(errs, FieldError{"cache.fail_closed_ttl", "must be non-negative"})
	}
	if cfg.FailClosedTTL > cfg.TTL {
		errs = append(errs, FieldError{"cache.fail_closed_ttl", "must not exceed cache.ttl"})
	}
	if cfg.ClaimTTL <= 0 {
		errs = append(errs, FieldError{"cache.claim_ttl", "must be positive"})
	}
	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{"store.sqlite.path", "is required for the sqlite backend"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{"store.postgres.dsn", "is required for the postgres backend"})
		}
	default:
		errs = append(errs, FieldError{"store.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend)})
	}
	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{"audit.sqlite.path", "is required for the sqlite backend"})
		}
	default:
		errs = append(errs, FieldError{"audit.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend)})
	}
	if cfg.Recorder.BufferSize < 1 {
		errs = append(errs, FieldError{"audit.recorder.buffer_size", "must be at least 1"})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{"audit.retention.days", "must be non-negative"})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{"audit.retention.max_records", "must be non-negative"})
	}
	if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
		errs = append(errs, FieldError{"audit.retention.prune_schedule", fmt.Sprintf("invalid cron expression: %v", err)})
	}
	if cfg.Query.DefaultLimit > cfg.Query.MaxLimit {
		errs = append(errs, FieldError{"audit.query.default_limit", "must not exceed max_limit"})
	}
	return errs
}

func validateFeedback(cfg *FeedbackConfig) []FieldError {
	if !cfg.Kafka.Enabled {
		return nil
	}
	var errs []FieldError
	if len(cfg.Kafka.Brokers) == 0 {
		errs = append(errs, FieldError{"feedback.kafka.brokers", "at least one broker is required"})
	}
	if cfg.Kafka.Topic == "" {
		errs = append(errs, FieldError{"feedback.kafka.topic", "is required"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"telemetry.logging.level", fmt.Sprintf("invalid level %q", cfg.Logging.Level)})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{"telemetry.logging.format", fmt.Sprintf("invalid format %q", cfg.Logging.Format)})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{"telemetry.tracing.endpoint", "is required when tracing is enabled"})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{"telemetry.tracing.sampler", fmt.Sprintf("invalid sampler %q", cfg.Tracing.Sampler)})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{"telemetry.tracing.sample_ratio", "must be within [0, 1]"})
		}
	}
	return errs
}

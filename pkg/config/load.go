package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Omitted keys keep their defaults. The result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of Default and applies remaining defaults.
// It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention FILEGATE_SECTION_FIELD (e.g., FILEGATE_CACHE_TTL) and always
// take precedence over the file.
//
// An empty path loads defaults only.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PolicyVersion returns the configured policy version, or a short digest
// of the weights and thresholds when none is set.
func (c *Config) PolicyVersion() string {
	if c.Decision.PolicyVersion != "" {
		return c.Decision.PolicyVersion
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("w=%g/%g/%g t=%g/%g u=%s",
		c.Scoring.FuzzyWeight, c.Scoring.SemanticWeight, c.Scoring.SizeWeight,
		c.Decision.WarnThreshold, c.Decision.BlockThreshold,
		strings.ToLower(c.Decision.UnclassifiedExact))))
	return "auto-" + hex.EncodeToString(sum[:6])
}

func applyEnvOverrides(cfg *Config) {
	envDuration("FILEGATE_MATCHING_DEADLINE", &cfg.Matching.Deadline)
	envDuration("FILEGATE_MATCHING_EXACT_TIMEOUT", &cfg.Matching.ExactTimeout)
	envDuration("FILEGATE_MATCHING_FUZZY_TIMEOUT", &cfg.Matching.FuzzyTimeout)
	envDuration("FILEGATE_MATCHING_SEMANTIC_TIMEOUT", &cfg.Matching.SemanticTimeout)
	envBool("FILEGATE_MATCHING_SHORT_CIRCUIT_EXACT", &cfg.Matching.ShortCircuitExact)

	envFloat("FILEGATE_SCORING_FUZZY_WEIGHT", &cfg.Scoring.FuzzyWeight)
	envFloat("FILEGATE_SCORING_SEMANTIC_WEIGHT", &cfg.Scoring.SemanticWeight)
	envFloat("FILEGATE_SCORING_SIZE_WEIGHT", &cfg.Scoring.SizeWeight)

	envFloat("FILEGATE_DECISION_WARN_THRESHOLD", &cfg.Decision.WarnThreshold)
	envFloat("FILEGATE_DECISION_BLOCK_THRESHOLD", &cfg.Decision.BlockThreshold)
	envString("FILEGATE_DECISION_POLICY_VERSION", &cfg.Decision.PolicyVersion)

	envString("FILEGATE_CACHE_BACKEND", &cfg.Cache.Backend)
	envDuration("FILEGATE_CACHE_TTL", &cfg.Cache.TTL)
	envDuration("FILEGATE_CACHE_FAIL_CLOSED_TTL", &cfg.Cache.FailClosedTTL)
	envString("FILEGATE_CACHE_REDIS_ADDR", &cfg.Cache.Redis.Addr)
	envString("FILEGATE_CACHE_REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	envInt("FILEGATE_CACHE_REDIS_DB", &cfg.Cache.Redis.DB)

	envString("FILEGATE_STORE_BACKEND", &cfg.Store.Backend)
	envString("FILEGATE_STORE_SQLITE_PATH", &cfg.Store.SQLite.Path)
	envString("FILEGATE_STORE_POSTGRES_DSN", &cfg.Store.Postgres.DSN)

	envBool("FILEGATE_SEMANTIC_ENABLED", &cfg.Semantic.Enabled)

	envBool("FILEGATE_AUDIT_ENABLED", &cfg.Audit.Enabled)
	envString("FILEGATE_AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("FILEGATE_AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	envInt("FILEGATE_AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.Days)

	envBool("FILEGATE_FEEDBACK_KAFKA_ENABLED", &cfg.Feedback.Kafka.Enabled)
	if val := os.Getenv("FILEGATE_FEEDBACK_KAFKA_BROKERS"); val != "" {
		cfg.Feedback.Kafka.Brokers = splitList(val)
	}
	envString("FILEGATE_FEEDBACK_KAFKA_TOPIC", &cfg.Feedback.Kafka.Topic)

	envString("FILEGATE_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)

	envString("FILEGATE_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("FILEGATE_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("FILEGATE_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("FILEGATE_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("FILEGATE_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envFloat("FILEGATE_TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import "time"

// Config is the root configuration for filegate.
type Config struct {
	// Matching controls the concurrent similarity lookups.
	Matching MatchingConfig `yaml:"matching"`

	// Scoring holds the per-method weights.
	Scoring ScoringConfig `yaml:"scoring"`

	// Decision holds the thresholds that map confidence to an outcome.
	Decision DecisionConfig `yaml:"decision"`

	// Cache configures the decision cache.
	Cache CacheConfig `yaml:"cache"`

	// Store configures the fingerprint corpus store.
	Store StoreConfig `yaml:"store"`

	// Semantic configures the embedding index.
	Semantic SemanticConfig `yaml:"semantic"`

	// Audit configures decision audit records.
	Audit AuditConfig `yaml:"audit"`

	// Feedback configures the override consumer.
	Feedback FeedbackConfig `yaml:"feedback"`

	// Server configures the operations HTTP endpoint used by `filegate serve`.
	Server ServerConfig `yaml:"server"`

	// Telemetry contains logging, metrics, tracing and health settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// MatchingConfig controls the match orchestrator.
type MatchingConfig struct {
	// Deadline bounds the whole fan-out. No lookup outlives it.
	// Default: 2s
	Deadline time.Duration `yaml:"deadline"`

	// ExactTimeout bounds the exact hash lookup.
	// Default: 500ms
	ExactTimeout time.Duration `yaml:"exact_timeout"`

	// FuzzyTimeout bounds the fuzzy signature lookup.
	// Default: 1s
	FuzzyTimeout time.Duration `yaml:"fuzzy_timeout"`

	// SemanticTimeout bounds the nearest-neighbour query.
	// Default: 1500ms
	SemanticTimeout time.Duration `yaml:"semantic_timeout"`

	// ShortCircuitExact cancels fuzzy and semantic lookups once an exact
	// match is found.
	// Default: true
	ShortCircuitExact bool `yaml:"short_circuit_exact"`

	// IgnoreBenignCandidates drops BENIGN fingerprints from fuzzy and
	// semantic candidate lists.
	// Default: true
	IgnoreBenignCandidates bool `yaml:"ignore_benign_candidates"`

	// SemanticK is the number of neighbours requested from the index.
	// Default: 10
	SemanticK int `yaml:"semantic_k"`

	// FuzzyMinScore drops fuzzy candidates below this similarity.
	// Default: 0.5
	FuzzyMinScore float64 `yaml:"fuzzy_min_score"`

	// FuzzyMaxCandidates caps fuzzy candidates per lookup.
	// Default: 10
	FuzzyMaxCandidates int `yaml:"fuzzy_max_candidates"`

	// FuzzyBandRows is the number of MinHash slots per LSH band.
	// Default: 4
	FuzzyBandRows int `yaml:"fuzzy_band_rows"`

	// Retry controls retries of failed lookups within their timeout.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig controls per-lookup retries.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 2
	MaxRetries uint64 `yaml:"max_retries"`

	// BaseDelay is the first backoff delay; later delays grow exponentially.
	// Default: 25ms
	BaseDelay time.Duration `yaml:"base_delay"`
}

// ScoringConfig holds the fusion weights. Weights need not sum to one;
// the fused confidence is clamped to [0, 1].
type ScoringConfig struct {
	// FuzzyWeight default: 0.5
	FuzzyWeight float64 `yaml:"fuzzy_weight"`

	// SemanticWeight default: 0.3
	SemanticWeight float64 `yaml:"semantic_weight"`

	// SizeWeight default: 0.2
	SizeWeight float64 `yaml:"size_weight"`
}

// DecisionConfig holds outcome thresholds.
type DecisionConfig struct {
	// WarnThreshold is the minimum confidence for WARN (inclusive).
	// Default: 0.70
	WarnThreshold float64 `yaml:"warn_threshold"`

	// BlockThreshold is the minimum confidence for BLOCK (inclusive).
	// Default: 0.90
	BlockThreshold float64 `yaml:"block_threshold"`

	// UnclassifiedExact is the outcome for an exact match on an
	// unclassified fingerprint.
	// Options: "allow", "warn", "block"
	// Default: "warn"
	UnclassifiedExact string `yaml:"unclassified_exact"`

	// PolicyVersion is stamped on every decision and audit record.
	// Default: "" (derived from the thresholds and weights)
	PolicyVersion string `yaml:"policy_version"`
}

// CacheConfig configures the decision cache.
type CacheConfig struct {
	// Backend selects the backing store.
	// Options: "memory", "redis"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TTL is how long a computed decision stays valid.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`

	// FailClosedTTL is the TTL for BACKEND_UNREACHABLE decisions.
	// 0 means they are never cached.
	// Default: 5s
	FailClosedTTL time.Duration `yaml:"fail_closed_ttl"`

	// MaxEntries bounds the memory backend.
	// Default: 100000
	MaxEntries int `yaml:"max_entries"`

	// ClaimTTL is how long a cross-instance compute claim is held.
	// Default: 10s
	ClaimTTL time.Duration `yaml:"claim_ttl"`

	// ClaimPollInterval is how often a losing instance polls for the
	// winner's entry.
	// Default: 50ms
	ClaimPollInterval time.Duration `yaml:"claim_poll_interval"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	// Addr is host:port.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	// Password for AUTH. Prefer the FILEGATE_CACHE_REDIS_PASSWORD env var.
	Password string `yaml:"password"`

	// DB is the database index.
	// Default: 0
	DB int `yaml:"db"`

	// KeyPrefix namespaces every key.
	// Default: "filegate"
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeout default: 2s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// StoreConfig configures the fingerprint corpus store.
type StoreConfig struct {
	// Backend selects the store.
	// Options: "memory", "sqlite", "postgres"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres configures the postgres backend.
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig configures a SQLite database file.
type SQLiteConfig struct {
	// Path is the database file.
	Path string `yaml:"path"`

	// MaxOpenConns is the connection pool size.
	// Default: 10 (audit), 1 (fingerprints)
	MaxOpenConns int `yaml:"max_open_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig configures a PostgreSQL connection.
type PostgresConfig struct {
	// DSN is a connection URL. Prefer FILEGATE_STORE_POSTGRES_DSN.
	DSN string `yaml:"dsn"`

	// MaxConns caps the pool.
	// Default: 10
	MaxConns int32 `yaml:"max_conns"`
}

// SemanticConfig configures the embedding index.
type SemanticConfig struct {
	// Enabled controls whether semantic lookups are issued at all.
	// Default: true
	Enabled bool `yaml:"enabled"`
}

// AuditConfig configures decision audit records.
type AuditConfig struct {
	// Enabled controls whether decisions are audited.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects audit storage.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// RecordCacheHits also audits decisions served from cache.
	// Default: false
	RecordCacheHits bool `yaml:"record_cache_hits"`

	// Recorder configures the async writer.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention configures pruning of old records.
	Retention RetentionConfig `yaml:"retention"`

	// Query configures audit query limits.
	Query QueryConfig `yaml:"query"`
}

// RecorderConfig configures the async audit writer.
type RecorderConfig struct {
	// BufferSize is the channel capacity. Records are dropped when full.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds each storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetentionConfig configures audit pruning.
type RetentionConfig struct {
	// Days to keep records. 0 keeps forever.
	// Default: 90
	Days int `yaml:"days"`

	// PruneSchedule is a standard cron expression.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxRecords caps the table size. 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`
}

// QueryConfig configures audit queries.
type QueryConfig struct {
	// DefaultLimit default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// FeedbackConfig configures classification overrides.
type FeedbackConfig struct {
	// Kafka configures the override topic consumer.
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the override consumer.
type KafkaConfig struct {
	// Enabled starts the consumer in `filegate serve`.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Brokers lists bootstrap brokers.
	Brokers []string `yaml:"brokers"`

	// Topic carries JSON override messages.
	// Default: "filegate.feedback"
	Topic string `yaml:"topic"`

	// GroupID is the consumer group.
	// Default: "filegate"
	GroupID string `yaml:"group_id"`
}

// ServerConfig configures the operations endpoint.
type ServerConfig struct {
	// ListenAddress serves /metrics and health probes.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ShutdownTimeout default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "filegate"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: ""
	Subsystem string `yaml:"subsystem"`

	// LookupDurationBuckets defines histogram buckets for lookup latency (seconds).
	// Default: [0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5]
	LookupDurationBuckets []float64 `yaml:"lookup_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "filegate"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

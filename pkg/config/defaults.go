package config

import "time"

// Default values for configuration fields.
const (
	// Matching defaults
	DefaultMatchingDeadline       = 2 * time.Second
	DefaultExactTimeout           = 500 * time.Millisecond
	DefaultFuzzyTimeout           = 1 * time.Second
	DefaultSemanticTimeout        = 1500 * time.Millisecond
	DefaultShortCircuitExact      = true
	DefaultIgnoreBenignCandidates = true
	DefaultSemanticK              = 10
	DefaultFuzzyMinScore          = 0.5
	DefaultFuzzyMaxCandidates     = 10
	DefaultFuzzyBandRows          = 4
	DefaultRetryMaxRetries        = uint64(2)
	DefaultRetryBaseDelay         = 25 * time.Millisecond

	// Scoring defaults
	DefaultFuzzyWeight    = 0.5
	DefaultSemanticWeight = 0.3
	DefaultSizeWeight     = 0.2

	// Decision defaults
	DefaultWarnThreshold     = 0.70
	DefaultBlockThreshold    = 0.90
	DefaultUnclassifiedExact = "warn"

	// Cache defaults
	DefaultCacheBackend           = "memory"
	DefaultCacheTTL               = time.Hour
	DefaultCacheFailClosedTTL     = 5 * time.Second
	DefaultCacheMaxEntries        = 100000
	DefaultCacheClaimTTL          = 10 * time.Second
	DefaultCacheClaimPollInterval = 50 * time.Millisecond
	DefaultRedisAddr              = "localhost:6379"
	DefaultRedisKeyPrefix         = "filegate"
	DefaultRedisDialTimeout       = 2 * time.Second

	// Store defaults
	DefaultStoreBackend      = "sqlite"
	DefaultStoreSQLitePath   = "data/fingerprints.db"
	DefaultPostgresMaxConns  = int32(10)
	DefaultSQLiteBusyTimeout = 5 * time.Second

	// Audit defaults
	DefaultAuditEnabled              = true
	DefaultAuditBackend              = "sqlite"
	DefaultAuditSQLitePath           = "data/audit.db"
	DefaultAuditSQLiteMaxOpenConns   = 10
	DefaultAuditRecorderBufferSize   = 1000
	DefaultAuditRecorderWriteTimeout = 5 * time.Second
	DefaultAuditRetentionDays        = 90
	DefaultAuditRetentionSchedule    = "0 3 * * *"
	DefaultAuditQueryDefaultLimit    = 100
	DefaultAuditQueryMaxLimit        = 10000

	// Feedback defaults
	DefaultKafkaTopic   = "filegate.feedback"
	DefaultKafkaGroupID = "filegate"

	// Server defaults
	DefaultServerListenAddress   = "127.0.0.1:9090"
	DefaultServerShutdownTimeout = 10 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "filegate"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "filegate"
	DefaultOTLPTimeout        = 10 * time.Second
	DefaultHealthLivenessPath = "/health"
	DefaultHealthReadyPath    = "/ready"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// DefaultLookupDurationBuckets are the lookup latency histogram buckets.
var DefaultLookupDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Default returns a Config with every default applied, including boolean
// and weight fields whose zero value is meaningful. LoadConfig decodes YAML
// on top of it so omitted keys keep their defaults.
func Default() *Config {
	cfg := &Config{
		Matching: MatchingConfig{
			ShortCircuitExact:      DefaultShortCircuitExact,
			IgnoreBenignCandidates: DefaultIgnoreBenignCandidates,
		},
		Scoring: ScoringConfig{
			FuzzyWeight:    DefaultFuzzyWeight,
			SemanticWeight: DefaultSemanticWeight,
			SizeWeight:     DefaultSizeWeight,
		},
		Decision: DecisionConfig{
			WarnThreshold:  DefaultWarnThreshold,
			BlockThreshold: DefaultBlockThreshold,
		},
		Cache: CacheConfig{
			FailClosedTTL: DefaultCacheFailClosedTTL,
		},
		Semantic: SemanticConfig{Enabled: true},
		Audit: AuditConfig{
			Enabled: DefaultAuditEnabled,
			SQLite:  SQLiteConfig{WALMode: true},
			Retention: RetentionConfig{
				Days: DefaultAuditRetentionDays,
			},
		},
		Store: StoreConfig{
			SQLite: SQLiteConfig{WALMode: true},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{OTLP: OTLPConfig{Insecure: true}},
			Health:  HealthConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for fields that still hold their zero value.
// It is idempotent. Fields whose zero value is a legitimate setting
// (booleans, weights, FailClosedTTL) are only defaulted by Default.
func ApplyDefaults(cfg *Config) {
	m := &cfg.Matching
	if m.Deadline == 0 {
		m.Deadline = DefaultMatchingDeadline
	}
	if m.ExactTimeout == 0 {
		m.ExactTimeout = DefaultExactTimeout
	}
	if m.FuzzyTimeout == 0 {
		m.FuzzyTimeout = DefaultFuzzyTimeout
	}
	if m.SemanticTimeout == 0 {
		m.SemanticTimeout = DefaultSemanticTimeout
	}
	if m.SemanticK == 0 {
		m.SemanticK = DefaultSemanticK
	}
	if m.FuzzyMinScore == 0 {
		m.FuzzyMinScore = DefaultFuzzyMinScore
	}
	if m.FuzzyMaxCandidates == 0 {
		m.FuzzyMaxCandidates = DefaultFuzzyMaxCandidates
	}
	if m.FuzzyBandRows == 0 {
		m.FuzzyBandRows = DefaultFuzzyBandRows
	}
	if m.Retry.MaxRetries == 0 {
		m.Retry.MaxRetries = DefaultRetryMaxRetries
	}
	if m.Retry.BaseDelay == 0 {
		m.Retry.BaseDelay = DefaultRetryBaseDelay
	}

	if cfg.Decision.WarnThreshold == 0 && cfg.Decision.BlockThreshold == 0 {
		cfg.Decision.WarnThreshold = DefaultWarnThreshold
		cfg.Decision.BlockThreshold = DefaultBlockThreshold
	}
	if cfg.Decision.UnclassifiedExact == "" {
		cfg.Decision.UnclassifiedExact = DefaultUnclassifiedExact
	}

	c := &cfg.Cache
	if c.Backend == "" {
		c.Backend = DefaultCacheBackend
	}
	if c.TTL == 0 {
		c.TTL = DefaultCacheTTL
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultCacheMaxEntries
	}
	if c.ClaimTTL == 0 {
		c.ClaimTTL = DefaultCacheClaimTTL
	}
	if c.ClaimPollInterval == 0 {
		c.ClaimPollInterval = DefaultCacheClaimPollInterval
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = DefaultRedisDialTimeout
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultStoreSQLitePath
	}
	if cfg.Store.SQLite.MaxOpenConns == 0 {
		cfg.Store.SQLite.MaxOpenConns = 1
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Store.Postgres.MaxConns == 0 {
		cfg.Store.Postgres.MaxConns = DefaultPostgresMaxConns
	}

	a := &cfg.Audit
	if a.Backend == "" {
		a.Backend = DefaultAuditBackend
	}
	if a.SQLite.Path == "" {
		a.SQLite.Path = DefaultAuditSQLitePath
	}
	if a.SQLite.MaxOpenConns == 0 {
		a.SQLite.MaxOpenConns = DefaultAuditSQLiteMaxOpenConns
	}
	if a.SQLite.BusyTimeout == 0 {
		a.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if a.Recorder.BufferSize == 0 {
		a.Recorder.BufferSize = DefaultAuditRecorderBufferSize
	}
	if a.Recorder.WriteTimeout == 0 {
		a.Recorder.WriteTimeout = DefaultAuditRecorderWriteTimeout
	}
	if a.Retention.PruneSchedule == "" {
		a.Retention.PruneSchedule = DefaultAuditRetentionSchedule
	}
	if a.Query.DefaultLimit == 0 {
		a.Query.DefaultLimit = DefaultAuditQueryDefaultLimit
	}
	if a.Query.MaxLimit == 0 {
		a.Query.MaxLimit = DefaultAuditQueryMaxLimit
	}

	if cfg.Feedback.Kafka.Topic == "" {
		cfg.Feedback.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Feedback.Kafka.GroupID == "" {
		cfg.Feedback.Kafka.GroupID = DefaultKafkaGroupID
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultServerListenAddress
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}

	t := &cfg.Telemetry
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(t.Metrics.LookupDurationBuckets) == 0 {
		t.Metrics.LookupDurationBuckets = append([]float64(nil), DefaultLookupDurationBuckets...)
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.OTLP.Timeout == 0 {
		t.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultHealthLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultHealthReadyPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

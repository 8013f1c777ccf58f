// Package recorder writes audit records asynchronously so decisions never
// wait on storage.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/telemetry/metrics"
)

// Drop reasons reported to metrics.
const (
	dropBufferFull = "buffer_full"
	dropClosed     = "closed"
	dropWriteError = "write_error"
)

// Config controls the write buffer.
type Config struct {
	// BufferSize is the channel capacity. Appends beyond it are dropped.
	BufferSize int

	// WriteTimeout bounds each storage write.
	WriteTimeout time.Duration
}

// FromConfig converts the file configuration.
func FromConfig(c config.RecorderConfig) Config {
	return Config{BufferSize: c.BufferSize, WriteTimeout: c.WriteTimeout}
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return FromConfig(config.Default().Audit.Recorder)
}

// Recorder is an audit.Sink backed by a single writer goroutine.
type Recorder struct {
	storage audit.Storage
	config  Config
	records chan *audit.Record
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option { return func(r *Recorder) { r.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Recorder) { r.logger = l } }

// New starts a recorder writing to storage.
func New(storage audit.Storage, cfg Config, opts ...Option) *Recorder {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = config.DefaultAuditRecorderBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultAuditRecorderWriteTimeout
	}

	r := &Recorder{
		storage: storage,
		config:  cfg,
		records: make(chan *audit.Record, cfg.BufferSize),
		logger:  slog.Default().With("component", "audit.recorder"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder started",
		"buffer_size", cfg.BufferSize,
		"write_timeout", cfg.WriteTimeout,
	)
	return r
}

// Append enqueues rec without blocking. A full buffer drops the record
// and returns audit.ErrBufferFull.
func (r *Recorder) Append(ctx context.Context, rec *audit.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.RecordAuditDropped(dropClosed)
		return audit.NewRecorderError(rec.ID, audit.ErrRecorderClosed)
	}

	select {
	case r.records <- rec:
		return nil
	default:
		r.metrics.RecordAuditDropped(dropBufferFull)
		r.logger.WarnContext(ctx, "audit buffer full, dropping record",
			"record_id", rec.ID,
			"decision_id", rec.DecisionID,
			"buffer_size", r.config.BufferSize,
		)
		return audit.NewRecorderError(rec.ID, audit.ErrBufferFull)
	}
}

// Pending returns the number of buffered records.
func (r *Recorder) Pending() int {
	return len(r.records)
}

// Close stops accepting records, writes what is buffered and returns once
// the writer has finished.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()

	r.logger.Info("draining audit buffer", "pending", len(r.records))
	r.wg.Wait()
	r.logger.Info("audit recorder stopped")
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for rec := range r.records {
		r.write(rec)
	}
}

func (r *Recorder) write(rec *audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = r.now().UTC()
	}

	start := time.Now()
	if err := r.storage.Store(ctx, rec); err != nil {
		r.metrics.RecordAuditDropped(dropWriteError)
		r.logger.Error("failed to store audit record",
			"record_id", rec.ID,
			"decision_id", rec.DecisionID,
			"error", err,
		)
		return
	}
	r.metrics.RecordAuditWritten()

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"record_id", rec.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}

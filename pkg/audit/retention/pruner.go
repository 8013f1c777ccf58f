// Package retention prunes audit records by age and by total count, on a
// cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/config"
)

// Config controls pruning.
type Config struct {
	// RetentionDays is how long records are kept. 0 keeps them forever.
	RetentionDays int

	// PruneSchedule is a standard cron expression. Empty disables the
	// scheduler; Prune can still be called directly.
	PruneSchedule string

	// MaxRecords caps the number of records. 0 means unlimited.
	MaxRecords int64
}

// FromConfig converts the file configuration.
func FromConfig(c config.RetentionConfig) Config {
	return Config{
		RetentionDays: c.Days,
		PruneSchedule: c.PruneSchedule,
		MaxRecords:    c.MaxRecords,
	}
}

// Pruner deletes audit records outside the retention policy.
type Pruner struct {
	storage   audit.Storage
	config    Config
	logger    *slog.Logger
	now       func() time.Time
	scheduler *Scheduler
}

// NewPruner creates a pruner over storage.
func NewPruner(storage audit.Storage, cfg Config) *Pruner {
	p := &Pruner{
		storage: storage,
		config:  cfg,
		logger:  slog.Default().With("component", "audit.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes records older than RetentionDays, then the oldest records
// beyond MaxRecords. It returns the total deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		n, err := p.pruneByAge(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += n
	}

	if p.config.MaxRecords > 0 {
		n, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += n
	}

	if total > 0 {
		p.logger.Info("audit pruning completed",
			"deleted_count", total,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	deleted, err := p.storage.Delete(ctx, &audit.Query{EndTime: &cutoff})
	if err != nil {
		return 0, audit.NewRetentionError(p.config.RetentionDays, err)
	}
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &audit.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count <= p.config.MaxRecords {
		return 0, nil
	}
	excess := count - p.config.MaxRecords

	oldest, err := p.storage.Query(ctx, &audit.Query{
		SortBy:    "recorded_at",
		SortOrder: "asc",
		Limit:     int(excess),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query oldest records: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	cutoff := oldest[len(oldest)-1].RecordedAt
	p.logger.Info("audit record count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"cutoff", cutoff,
	)

	deleted, err := p.storage.Delete(ctx, &audit.Query{EndTime: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return deleted, nil
}

// Start starts the scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled run, or nil.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}

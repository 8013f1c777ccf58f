// Package storage provides fingerprint corpus stores: an in-memory store
// for tests and single-node use, a SQLite store (pure Go driver) and a
// PostgreSQL store for shared deployments.
package storage

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/fingerprint"
	"mercator-hq/filegate/pkg/verdict"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("fingerprint store closed")

// Store is the full corpus store: the read side used on the request path
// plus the write side used by ingest and feedback.
type Store interface {
	verdict.FingerprintStore

	// Put inserts fp or updates the record with the same hash and org. A
	// missing ID or FirstSeen is assigned; an existing record keeps both.
	Put(ctx context.Context, fp *verdict.Fingerprint) error

	// Reclassify updates the classification of every record with the given
	// hash. An empty org matches all orgs. It returns the rows changed.
	Reclassify(ctx context.Context, contentHash, orgScope string, c verdict.Classification) (int, error)

	// Scan calls fn for every fingerprint in org ("" = all).
	Scan(ctx context.Context, orgScope string, fn func(verdict.Fingerprint) error) error

	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// StoreError wraps a backend failure with the operation that caused it.
type StoreError struct {
	Backend   string
	Operation string
	Cause     error
}

// NewStoreError creates a StoreError.
func NewStoreError(backend, operation string, cause error) *StoreError {
	return &StoreError{Backend: backend, Operation: operation, Cause: cause}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("fingerprint store %s: %s failed: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// MatchOptionsFromConfig converts the matching section into candidate bounds.
func MatchOptionsFromConfig(m config.MatchingConfig) fingerprint.MatchOptions {
	return fingerprint.MatchOptions{
		MinScore:      m.FuzzyMinScore,
		MaxCandidates: m.FuzzyMaxCandidates,
		BandRows:      m.FuzzyBandRows,
	}.WithDefaults()
}

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, match fingerprint.MatchOptions) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(match), nil
	case "", "sqlite":
		return NewSQLiteStore(SQLiteConfig{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
			Match:       match,
		})
	case "postgres":
		return NewPostgresStore(ctx, PostgresConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			Match:    match,
		})
	default:
		return nil, fmt.Errorf("unsupported fingerprint store backend %q", cfg.Backend)
	}
}

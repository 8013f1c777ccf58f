// Package storage provides audit Storage backends: an in-memory map for
// tests and short-lived processes, and SQLite via mattn/go-sqlite3.
//
// Timestamps are stored as Unix nanoseconds so range filters compare
// numerically regardless of time zone.
package storage

import (
	"fmt"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/config"
)

// Open creates the backend named in cfg.
func Open(cfg config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "", "sqlite":
		return NewSQLiteStorage(&cfg.SQLite)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/verdict"
)

// sortColumns maps query sort fields to columns.
var sortColumns = map[string]string{
	"recorded_at": "recorded_at",
	"decided_at":  "decided_at",
	"confidence":  "confidence",
	"duration":    "duration_ns",
}

// SQLiteStorage implements audit.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *config.SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at cfg.Path.
func NewSQLiteStorage(cfg *config.SQLiteConfig) (*SQLiteStorage, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, audit.NewStorageError("sqlite", "open", errors.New("database path is required"))
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}

	s := &SQLiteStorage{db: db, config: cfg, logger: logger}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("SQLite audit storage initialized",
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store inserts r.
func (s *SQLiteStorage) Store(ctx context.Context, r *audit.Record) error {
	signals, err := json.Marshal(r.Signals)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}
	matched, err := json.Marshal(r.MatchedFingerprintIDs)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}

	action := r.UserAction
	if action == "" {
		action = audit.UserActionNone
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO audit_records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.DecisionID, nullString(r.RequestID),
		r.ContentHash, r.OrgScope, r.SizeBytes,
		r.Outcome.String(), r.Reason.String(), r.Confidence, string(signals), string(matched), r.PolicyVersion,
		r.Source, int64(r.Duration),
		r.DecidedAt.UnixNano(), r.RecordedAt.UnixNano(),
		string(action), nullTime(r.UserActionAt),
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query returns the matching records.
func (s *SQLiteStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Record, error) {
	stmt, args := s.selectStatement(q)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*audit.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// QueryStream streams the matching records row by row.
func (s *SQLiteStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.Record, <-chan error, error) {
	stmt, args := s.selectStatement(q)
	recordsCh := make(chan *audit.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				errCh <- audit.NewStorageError("sqlite", "scan", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- r:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of matching records.
func (s *SQLiteStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	where, args := buildWhereClause(q)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records"+where, args...).Scan(&n); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Delete removes the matching records.
func (s *SQLiteStorage) Delete(ctx context.Context, q *audit.Query) (int64, error) {
	where, args := buildWhereClause(q)
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_records"+where, args...)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// SetUserAction annotates the records for decisionID.
func (s *SQLiteStorage) SetUserAction(ctx context.Context, decisionID string, action audit.UserAction, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE audit_records SET user_action = ?, user_action_at = ? WHERE decision_id = ?",
		string(action), at.UnixNano(), decisionID,
	)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "set_user_action", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "set_user_action", err)
	}
	if n == 0 {
		return 0, audit.ErrRecordNotFound
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite audit storage closed")
	return nil
}

func (s *SQLiteStorage) selectStatement(q *audit.Query) (string, []any) {
	where, args := buildWhereClause(q)
	stmt := "SELECT " + recordColumns + " FROM audit_records" + where

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "recorded_at"
	}
	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}
	stmt += fmt.Sprintf(" ORDER BY %s %s, id %s", column, order, order)

	// SQLite needs a LIMIT to accept OFFSET; -1 means no limit.
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	stmt += fmt.Sprintf(" LIMIT %d", limit)
	if q.Offset > 0 {
		stmt += fmt.Sprintf(" OFFSET %d", q.Offset)
	}
	return stmt, args
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func buildWhereClause(q *audit.Query) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		conditions = append(conditions, cond)
		args = append(args, arg)
	}

	if q.StartTime != nil {
		add("recorded_at >= ?", q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		add("recorded_at <= ?", q.EndTime.UnixNano())
	}
	if q.DecisionID != "" {
		add("decision_id = ?", q.DecisionID)
	}
	if q.RequestID != "" {
		add("request_id = ?", q.RequestID)
	}
	if q.ContentHash != "" {
		add("content_hash = ?", q.ContentHash)
	}
	if q.OrgScope != "" {
		add("org_scope = ?", q.OrgScope)
	}
	if q.Outcome != 0 {
		add("outcome = ?", q.Outcome.String())
	}
	if q.Reason != 0 {
		add("reason = ?", q.Reason.String())
	}
	if q.Source != "" {
		add("source = ?", q.Source)
	}
	if q.UserAction != "" {
		add("user_action = ?", string(q.UserAction))
	}
	if q.MinConfidence != nil {
		add("confidence >= ?", *q.MinConfidence)
	}
	if q.MaxConfidence != nil {
		add("confidence <= ?", *q.MaxConfidence)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanRecord(rows *sql.Rows) (*audit.Record, error) {
	var (
		r                     audit.Record
		requestID             sql.NullString
		outcome, reason       string
		signals, matched      sql.NullString
		policyVersion         sql.NullString
		durationNs            int64
		decidedAt, recordedAt int64
		action                string
		actionAt              sql.NullInt64
	)

	err := rows.Scan(
		&r.ID, &r.DecisionID, &requestID,
		&r.ContentHash, &r.OrgScope, &r.SizeBytes,
		&outcome, &reason, &r.Confidence, &signals, &matched, &policyVersion,
		&r.Source, &durationNs,
		&decidedAt, &recordedAt,
		&action, &actionAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Outcome, err = verdict.ParseOutcome(outcome); err != nil {
		return nil, err
	}
	if r.Reason, err = verdict.ParseReasonCode(reason); err != nil {
		return nil, err
	}
	if signals.Valid && signals.String != "" {
		if err := json.Unmarshal([]byte(signals.String), &r.Signals); err != nil {
			return nil, fmt.Errorf("decode signals: %w", err)
		}
	}
	if matched.Valid && matched.String != "" {
		if err := json.Unmarshal([]byte(matched.String), &r.MatchedFingerprintIDs); err != nil {
			return nil, fmt.Errorf("decode matched ids: %w", err)
		}
	}

	r.RequestID = requestID.String
	r.PolicyVersion = policyVersion.String
	r.Duration = time.Duration(durationNs)
	r.DecidedAt = time.Unix(0, decidedAt).UTC()
	r.RecordedAt = time.Unix(0, recordedAt).UTC()
	r.UserAction = audit.UserAction(action)
	if actionAt.Valid {
		at := time.Unix(0, actionAt.Int64).UTC()
		r.UserActionAt = &at
	}
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

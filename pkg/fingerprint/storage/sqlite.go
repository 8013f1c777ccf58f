package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/filegate/pkg/fingerprint"
	"mercator-hq/filegate/pkg/verdict"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	id TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	org_scope TEXT NOT NULL,
	fuzzy_signature BLOB,
	embedding BLOB,
	size_bytes INTEGER NOT NULL,
	classification TEXT NOT NULL,
	first_seen INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (content_hash, org_scope)
);

CREATE TABLE IF NOT EXISTS fuzzy_bands (
	fingerprint_id TEXT NOT NULL REFERENCES fingerprints(id) ON DELETE CASCADE,
	org_scope TEXT NOT NULL,
	band INTEGER NOT NULL,
	bucket INTEGER NOT NULL,
	PRIMARY KEY (fingerprint_id, band)
);

CREATE INDEX IF NOT EXISTS idx_fuzzy_bands_bucket ON fuzzy_bands(org_scope, band, bucket);
CREATE INDEX IF NOT EXISTS idx_fingerprints_org ON fingerprints(org_scope);
`

const fingerprintColumns = `id, content_hash, org_scope, fuzzy_signature, embedding, size_bytes, classification, first_seen, updated_at`

// SQLiteConfig configures the SQLite fingerprint store.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" is accepted for tests.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5s.
	BusyTimeout time.Duration

	// Match bounds fuzzy candidate generation.
	Match fingerprint.MatchOptions
}

// SQLiteStore stores fingerprints in a SQLite database with an LSH band
// table for fuzzy candidate prefiltering.
type SQLiteStore struct {
	db        *sql.DB
	opts      fingerprint.MatchOptions
	logger    *slog.Logger
	closeOnce sync.Once
	now       func() time.Time

	exactStmt *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) a SQLite fingerprint store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewStoreError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:     db,
		opts:   cfg.Match.WithDefaults(),
		logger: slog.Default().With("component", "fingerprint.storage.sqlite"),
		now:    time.Now,
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, NewStoreError("sqlite", "initialize schema", err)
	}

	s.exactStmt, err = db.Prepare(`SELECT ` + fingerprintColumns + ` FROM fingerprints WHERE content_hash = ? AND org_scope = ?`)
	if err != nil {
		db.Close()
		return nil, NewStoreError("sqlite", "prepare statements", err)
	}

	s.logger.Info("fingerprint store opened", "path", cfg.Path)
	return s, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, fp *verdict.Fingerprint) error {
	now := s.now().UTC()
	if fp.ID == "" {
		fp.ID = uuid.New().String()
	}
	if fp.FirstSeen.IsZero() {
		fp.FirstSeen = now
	}
	if fp.Classification == 0 {
		fp.Classification = verdict.ClassUnknown
	}
	fp.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStoreError("sqlite", "put", err)
	}
	defer tx.Rollback()

	class, _ := fp.Classification.MarshalText()
	var firstSeen int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO fingerprints (`+fingerprintColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_hash, org_scope) DO UPDATE SET
			fuzzy_signature = excluded.fuzzy_signature,
			embedding = excluded.embedding,
			size_bytes = excluded.size_bytes,
			classification = excluded.classification,
			updated_at = excluded.updated_at
		RETURNING id, first_seen`,
		fp.ID, fp.ContentHash, fp.OrgScope,
		fingerprint.EncodeSignature(fp.FuzzySignature),
		fingerprint.EncodeEmbedding(fp.Embedding),
		fp.SizeBytes, string(class),
		fp.FirstSeen.UnixNano(), fp.UpdatedAt.UnixNano(),
	).Scan(&fp.ID, &firstSeen)
	if err != nil {
		return NewStoreError("sqlite", "put", err)
	}
	fp.FirstSeen = time.Unix(0, firstSeen).UTC()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fuzzy_bands WHERE fingerprint_id = ?`, fp.ID); err != nil {
		return NewStoreError("sqlite", "put bands", err)
	}
	for _, b := range fingerprint.Bands(fp.FuzzySignature, s.opts.BandRows) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fuzzy_bands (fingerprint_id, org_scope, band, bucket) VALUES (?, ?, ?, ?)`,
			fp.ID, fp.OrgScope, b.Index, b.Bucket); err != nil {
			return NewStoreError("sqlite", "put bands", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("sqlite", "put", err)
	}
	return nil
}

// LookupExact implements verdict.FingerprintStore.
func (s *SQLiteStore) LookupExact(ctx context.Context, contentHash, orgScope string) (*verdict.Fingerprint, error) {
	fp, err := scanFingerprint(s.exactStmt.QueryRowContext(ctx, contentHash, orgScope))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "lookup exact", err)
	}
	return fp, nil
}

// LookupFuzzy implements verdict.FingerprintStore.
func (s *SQLiteStore) LookupFuzzy(ctx context.Context, signature []uint64, orgScope string) ([]verdict.Candidate, error) {
	bands := fingerprint.Bands(signature, s.opts.BandRows)
	if len(bands) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(bands))
	args := make([]any, 0, 1+2*len(bands))
	args = append(args, orgScope)
	for _, b := range bands {
		conds = append(conds, "(band = ? AND bucket = ?)")
		args = append(args, b.Index, b.Bucket)
	}

	query := `SELECT ` + fingerprintColumns + ` FROM fingerprints WHERE id IN (
		SELECT fingerprint_id FROM fuzzy_bands WHERE org_scope = ? AND (` + strings.Join(conds, " OR ") + `))`

	pool, err := s.queryFingerprints(ctx, query, args...)
	if err != nil {
		return nil, NewStoreError("sqlite", "lookup fuzzy", err)
	}
	return fingerprint.RankCandidates(signature, pool, s.opts), nil
}

// Fetch implements verdict.FingerprintStore.
func (s *SQLiteStore) Fetch(ctx context.Context, ids []string, orgScope string) ([]verdict.Fingerprint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, orgScope)
	for _, id := range ids {
		args = append(args, id)
	}

	fps, err := s.queryFingerprints(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE org_scope = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, NewStoreError("sqlite", "fetch", err)
	}
	return fps, nil
}

// Reclassify implements Store.
func (s *SQLiteStore) Reclassify(ctx context.Context, contentHash, orgScope string, c verdict.Classification) (int, error) {
	class, err := c.MarshalText()
	if err != nil || c == 0 {
		return 0, fmt.Errorf("invalid classification %v", c)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE fingerprints SET classification = ?, updated_at = ? WHERE content_hash = ? AND (? = '' OR org_scope = ?)`,
		string(class), s.now().UTC().UnixNano(), contentHash, orgScope, orgScope)
	if err != nil {
		return 0, NewStoreError("sqlite", "reclassify", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Scan implements Store.
func (s *SQLiteStore) Scan(ctx context.Context, orgScope string, fn func(verdict.Fingerprint) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE (? = '' OR org_scope = ?) ORDER BY first_seen`,
		orgScope, orgScope)
	if err != nil {
		return NewStoreError("sqlite", "scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return NewStoreError("sqlite", "scan", err)
		}
		if err := fn(*fp); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&n); err != nil {
		return 0, NewStoreError("sqlite", "count", err)
	}
	return n, nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.exactStmt != nil {
			s.exactStmt.Close()
		}
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) queryFingerprints(ctx context.Context, query string, args ...any) ([]verdict.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []verdict.Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFingerprint(row rowScanner) (*verdict.Fingerprint, error) {
	var (
		fp                  verdict.Fingerprint
		sigBlob, embBlob    []byte
		class               string
		firstSeen, updatedAt int64
	)
	if err := row.Scan(&fp.ID, &fp.ContentHash, &fp.OrgScope, &sigBlob, &embBlob,
		&fp.SizeBytes, &class, &firstSeen, &updatedAt); err != nil {
		return nil, err
	}
	return decodeRow(&fp, sigBlob, embBlob, class, time.Unix(0, firstSeen), time.Unix(0, updatedAt))
}

func decodeRow(fp *verdict.Fingerprint, sigBlob, embBlob []byte, class string, firstSeen, updatedAt time.Time) (*verdict.Fingerprint, error) {
	var err error
	if fp.FuzzySignature, err = fingerprint.DecodeSignature(sigBlob); err != nil {
		return nil, err
	}
	if fp.Embedding, err = fingerprint.DecodeEmbedding(embBlob); err != nil {
		return nil, err
	}
	if fp.Classification, err = verdict.ParseClassification(class); err != nil {
		return nil, err
	}
	fp.FirstSeen = firstSeen.UTC()
	fp.UpdatedAt = updatedAt.UTC()
	return fp, nil
}

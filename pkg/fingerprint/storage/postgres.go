package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"mercator-hq/filegate/pkg/fingerprint"
	"mercator-hq/filegate/pkg/verdict"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	id TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	org_scope TEXT NOT NULL,
	fuzzy_signature BYTEA,
	embedding BYTEA,
	size_bytes BIGINT NOT NULL,
	classification TEXT NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (content_hash, org_scope)
);

CREATE TABLE IF NOT EXISTS fuzzy_bands (
	fingerprint_id TEXT NOT NULL REFERENCES fingerprints(id) ON DELETE CASCADE,
	org_scope TEXT NOT NULL,
	band INTEGER NOT NULL,
	bucket BIGINT NOT NULL,
	PRIMARY KEY (fingerprint_id, band)
);

CREATE INDEX IF NOT EXISTS idx_fuzzy_bands_bucket ON fuzzy_bands(org_scope, band, bucket);
`

// PostgresConfig configures the PostgreSQL fingerprint store.
type PostgresConfig struct {
	// DSN is a libpq-style connection string or URL.
	DSN string

	// MaxConns caps the pool size.
	// Default: 10.
	MaxConns int32

	// ConnectRetries is how many times to retry the initial connection.
	// Default: 5.
	ConnectRetries uint64

	// Match bounds fuzzy candidate generation.
	Match fingerprint.MatchOptions
}

// PostgresStore stores fingerprints in PostgreSQL so several filegate
// instances can share one corpus.
type PostgresStore struct {
	pool   *pgxpool.Pool
	opts   fingerprint.MatchOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresStore connects, retrying with Fibonacci backoff, and creates
// the schema if needed.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	if cfg.ConnectRetries == 0 {
		cfg.ConnectRetries = 5
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, NewStoreError("postgres", "parse dsn", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	logger := slog.Default().With("component", "fingerprint.storage.postgres")

	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			logger.Warn("postgres ping failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, NewStoreError("postgres", "connect", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, NewStoreError("postgres", "initialize schema", err)
	}

	return &PostgresStore{
		pool:   pool,
		opts:   cfg.Match.WithDefaults(),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, fp *verdict.Fingerprint) error {
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

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO fingerprints (`+fingerprintColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (content_hash, org_scope) DO UPDATE SET
				fuzzy_signature = EXCLUDED.fuzzy_signature,
				embedding = EXCLUDED.embedding,
				size_bytes = EXCLUDED.size_bytes,
				classification = EXCLUDED.classification,
				updated_at = EXCLUDED.updated_at
			RETURNING id, first_seen`,
			fp.ID, fp.ContentHash, fp.OrgScope,
			fingerprint.EncodeSignature(fp.FuzzySignature),
			fingerprint.EncodeEmbedding(fp.Embedding),
			fp.SizeBytes, fp.Classification.String(),
			fp.FirstSeen, fp.UpdatedAt,
		).Scan(&fp.ID, &fp.FirstSeen)
		if err != nil {
			return NewStoreError("postgres", "put", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM fuzzy_bands WHERE fingerprint_id = $1`, fp.ID); err != nil {
			return NewStoreError("postgres", "put bands", err)
		}

		bands := fingerprint.Bands(fp.FuzzySignature, s.opts.BandRows)
		if len(bands) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, b := range bands {
			batch.Queue(`INSERT INTO fuzzy_bands (fingerprint_id, org_scope, band, bucket) VALUES ($1, $2, $3, $4)`,
				fp.ID, fp.OrgScope, b.Index, b.Bucket)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return NewStoreError("postgres", "put bands", err)
		}
		return nil
	})
}

// LookupExact implements verdict.FingerprintStore.
func (s *PostgresStore) LookupExact(ctx context.Context, contentHash, orgScope string) (*verdict.Fingerprint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE content_hash = $1 AND org_scope = $2`,
		contentHash, orgScope)
	fp, err := scanPostgresFingerprint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStoreError("postgres", "lookup exact", err)
	}
	return fp, nil
}

// LookupFuzzy implements verdict.FingerprintStore.
func (s *PostgresStore) LookupFuzzy(ctx context.Context, signature []uint64, orgScope string) ([]verdict.Candidate, error) {
	bands := fingerprint.Bands(signature, s.opts.BandRows)
	if len(bands) == 0 {
		return nil, nil
	}
	idx := make([]int32, len(bands))
	buckets := make([]int64, len(bands))
	for i, b := range bands {
		idx[i] = int32(b.Index)
		buckets[i] = b.Bucket
	}

	pool, err := s.query(ctx, `
		SELECT `+fingerprintColumns+` FROM fingerprints WHERE id IN (
			SELECT b.fingerprint_id FROM fuzzy_bands b
			JOIN unnest($2::int[], $3::bigint[]) AS q(band, bucket)
				ON b.band = q.band AND b.bucket = q.bucket
			WHERE b.org_scope = $1)`,
		orgScope, idx, buckets)
	if err != nil {
		return nil, NewStoreError("postgres", "lookup fuzzy", err)
	}
	return fingerprint.RankCandidates(signature, pool, s.opts), nil
}

// Fetch implements verdict.FingerprintStore.
func (s *PostgresStore) Fetch(ctx context.Context, ids []string, orgScope string) ([]verdict.Fingerprint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	fps, err := s.query(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE org_scope = $1 AND id = ANY($2)`,
		orgScope, ids)
	if err != nil {
		return nil, NewStoreError("postgres", "fetch", err)
	}
	return fps, nil
}

// Reclassify implements Store.
func (s *PostgresStore) Reclassify(ctx context.Context, contentHash, orgScope string, c verdict.Classification) (int, error) {
	if c == 0 {
		return 0, fmt.Errorf("invalid classification %v", c)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE fingerprints SET classification = $1, updated_at = $2 WHERE content_hash = $3 AND ($4 = '' OR org_scope = $4)`,
		c.String(), s.now().UTC(), contentHash, orgScope)
	if err != nil {
		return 0, NewStoreError("postgres", "reclassify", err)
	}
	return int(tag.RowsAffected()), nil
}

// Scan implements Store.
func (s *PostgresStore) Scan(ctx context.Context, orgScope string, fn func(verdict.Fingerprint) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE ($1 = '' OR org_scope = $1) ORDER BY first_seen`,
		orgScope)
	if err != nil {
		return NewStoreError("postgres", "scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		fp, err := scanPostgresFingerprint(rows)
		if err != nil {
			return NewStoreError("postgres", "scan", err)
		}
		if err := fn(*fp); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&n); err != nil {
		return 0, NewStoreError("postgres", "count", err)
	}
	return n, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]verdict.Fingerprint, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []verdict.Fingerprint
	for rows.Next() {
		fp, err := scanPostgresFingerprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fp)
	}
	return out, rows.Err()
}

func scanPostgresFingerprint(row rowScanner) (*verdict.Fingerprint, error) {
	var (
		fp                   verdict.Fingerprint
		sigBlob, embBlob     []byte
		class                string
		firstSeen, updatedAt time.Time
	)
	if err := row.Scan(&fp.ID, &fp.ContentHash, &fp.OrgScope, &sigBlob, &embBlob,
		&fp.SizeBytes, &class, &firstSeen, &updatedAt); err != nil {
		return nil, err
	}
	return decodeRow(&fp, sigBlob, embBlob, class, firstSeen, updatedAt)
}

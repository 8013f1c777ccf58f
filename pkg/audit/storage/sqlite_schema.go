package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the audit tables.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    decision_id TEXT NOT NULL,
    request_id TEXT,

    content_hash TEXT NOT NULL,
    org_scope TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,

    outcome TEXT NOT NULL,
    reason TEXT NOT NULL,
    confidence REAL NOT NULL,
    signals TEXT,
    matched_fingerprint_ids TEXT,
    policy_version TEXT,

    source TEXT NOT NULL,
    duration_ns INTEGER NOT NULL,

    decided_at INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL,

    user_action TEXT NOT NULL DEFAULT 'NONE',
    user_action_at INTEGER
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_recorded_at ON audit_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_audit_decision_id ON audit_records(decision_id);
CREATE INDEX IF NOT EXISTS idx_audit_content_hash ON audit_records(content_hash, org_scope);
CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_records(outcome);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion reads the newest schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const recordColumns = `id, decision_id, request_id, content_hash, org_scope, size_bytes,
outcome, reason, confidence, signals, matched_fingerprint_ids, policy_version,
source, duration_ns, decided_at, recorded_at, user_action, user_action_at`

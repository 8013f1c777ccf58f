package audit

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/filegate/pkg/verdict"
)

// Source values for Record.Source.
const (
	SourceComputed = "computed"
	SourceCache    = "cache"
)

// UserAction is what the user did after seeing a decision.
type UserAction string

const (
	UserActionNone    UserAction = "NONE"
	UserActionProceed UserAction = "PROCEED"
	UserActionCancel  UserAction = "CANCEL"
)

// ParseUserAction parses a case-insensitive user action.
func ParseUserAction(s string) (UserAction, error) {
	switch a := UserAction(strings.ToUpper(strings.TrimSpace(s))); a {
	case UserActionNone, UserActionProceed, UserActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("unknown user action %q", s)
}

// Record is the audit trail of one decision.
type Record struct {
	ID         string `json:"id"`
	DecisionID string `json:"decision_id"`
	RequestID  string `json:"request_id,omitempty"`

	ContentHash string `json:"content_hash"`
	OrgScope    string `json:"org_scope"`
	SizeBytes   int64  `json:"size_bytes"`

	Outcome               verdict.Outcome    `json:"outcome"`
	Reason                verdict.ReasonCode `json:"reason"`
	Confidence            float64            `json:"confidence"`
	Signals               []SignalSummary    `json:"signals"`
	MatchedFingerprintIDs []string           `json:"matched_fingerprint_ids,omitempty"`
	PolicyVersion         string             `json:"policy_version,omitempty"`

	// Source is "computed" or "cache".
	Source   string        `json:"source"`
	Duration time.Duration `json:"duration"`

	DecidedAt  time.Time `json:"decided_at"`
	RecordedAt time.Time `json:"recorded_at"`

	UserAction   UserAction `json:"user_action"`
	UserActionAt *time.Time `json:"user_action_at,omitempty"`
}

// SignalSummary is the per-method part of a record.
type SignalSummary struct {
	Method        verdict.Method `json:"method"`
	Status        verdict.Status `json:"status"`
	Score         float64        `json:"score"`
	FingerprintID string         `json:"fingerprint_id,omitempty"`
	LatencyMs     int64          `json:"latency_ms"`
}

// NewRecord builds a record for d. The caller fills RequestID, Source and
// Duration.
func NewRecord(d verdict.Decision, desc verdict.Descriptor) *Record {
	signals := make([]SignalSummary, 0, len(d.Signals))
	for _, s := range d.Signals {
		signals = append(signals, SignalSummary{
			Method:        s.Method,
			Status:        s.Status,
			Score:         s.Score,
			FingerprintID: s.Match.FingerprintID,
			LatencyMs:     s.Latency.Milliseconds(),
		})
	}
	return &Record{
		ID:                    uuid.NewString(),
		DecisionID:            d.ID,
		ContentHash:           desc.ContentHash(),
		OrgScope:              desc.OrgScope(),
		SizeBytes:             desc.SizeBytes(),
		Outcome:               d.Outcome,
		Reason:                d.Reason,
		Confidence:            d.Confidence,
		Signals:               signals,
		MatchedFingerprintIDs: append([]string(nil), d.MatchedFingerprintIDs...),
		PolicyVersion:         d.PolicyVersion,
		Source:                SourceComputed,
		DecidedAt:             d.DecidedAt,
		UserAction:            UserActionNone,
	}
}

// Query filters audit records. Zero fields match everything.
type Query struct {
	// Recorded-at range, both inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	DecisionID  string             `json:"decision_id,omitempty"`
	RequestID   string             `json:"request_id,omitempty"`
	ContentHash string             `json:"content_hash,omitempty"`
	OrgScope    string             `json:"org_scope,omitempty"`
	Outcome     verdict.Outcome    `json:"outcome,omitempty"`
	Reason      verdict.ReasonCode `json:"reason,omitempty"`
	Source      string             `json:"source,omitempty"`
	UserAction  UserAction         `json:"user_action,omitempty"`

	MinConfidence *float64 `json:"min_confidence,omitempty"`
	MaxConfidence *float64 `json:"max_confidence,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortBy is "recorded_at", "decided_at", "confidence" or "duration".
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Matches reports whether r passes every filter in q. Pagination and
// sorting are ignored.
func (q *Query) Matches(r *Record) bool {
	switch {
	case q.StartTime != nil && r.RecordedAt.Before(*q.StartTime):
		return false
	case q.EndTime != nil && r.RecordedAt.After(*q.EndTime):
		return false
	case q.DecisionID != "" && r.DecisionID != q.DecisionID:
		return false
	case q.RequestID != "" && r.RequestID != q.RequestID:
		return false
	case q.ContentHash != "" && r.ContentHash != q.ContentHash:
		return false
	case q.OrgScope != "" && r.OrgScope != q.OrgScope:
		return false
	case q.Outcome != 0 && r.Outcome != q.Outcome:
		return false
	case q.Reason != 0 && r.Reason != q.Reason:
		return false
	case q.Source != "" && r.Source != q.Source:
		return false
	case q.UserAction != "" && r.UserAction != q.UserAction:
		return false
	case q.MinConfidence != nil && r.Confidence < *q.MinConfidence:
		return false
	case q.MaxConfidence != nil && r.Confidence > *q.MaxConfidence:
		return false
	}
	return true
}

// Sink accepts records for persistence.
type Sink interface {
	Append(ctx context.Context, r *Record) error
}

// Storage persists audit records. Implementations must be safe for
// concurrent use.
type Storage interface {
	Store(ctx context.Context, r *Record) error

	// Query returns matching records; an empty slice when none match.
	Query(ctx context.Context, q *Query) ([]*Record, error)

	// QueryStream sends matching records on the first channel. The error
	// channel carries at most one error. Both are closed when done.
	QueryStream(ctx context.Context, q *Query) (<-chan *Record, <-chan error, error)

	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes matching records and returns how many were removed.
	Delete(ctx context.Context, q *Query) (int64, error)

	// SetUserAction annotates every record for decisionID.
	SetUserAction(ctx context.Context, decisionID string, action UserAction, at time.Time) (int64, error)

	Close() error
}

// Exporter writes records in some format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
	ExportStream(ctx context.Context, records <-chan *Record, w io.Writer) error
}

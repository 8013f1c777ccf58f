package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/filegate/pkg/audit"
)

var csvHeader = []string{
	"id", "decision_id", "request_id",
	"content_hash", "org_scope", "size_bytes",
	"outcome", "reason", "confidence",
	"signals", "matched_fingerprint_ids", "policy_version",
	"source", "duration_ms",
	"decided_at", "recorded_at",
	"user_action", "user_action_at",
}

// CSVExporter writes one row per record. Signals are flattened to
// "METHOD:STATUS:score" joined by ';'.
type CSVExporter struct {
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Export writes every record.
func (e *CSVExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
	}
	for _, r := range records {
		if err := writer.Write(row(r)); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel, flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, records <-chan *audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return audit.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-records:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", count, err)
				}
				return nil
			}
			if err := writer.Write(row(r)); err != nil {
				return audit.NewExportError("csv", count, err)
			}
			count++
			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func row(r *audit.Record) []string {
	signals := make([]string, 0, len(r.Signals))
	for _, s := range r.Signals {
		signals = append(signals, s.Method.String()+":"+s.Status.String()+":"+strconv.FormatFloat(s.Score, 'f', 4, 64))
	}

	actionAt := ""
	if r.UserActionAt != nil {
		actionAt = formatTime(*r.UserActionAt)
	}

	return []string{
		r.ID,
		r.DecisionID,
		r.RequestID,
		r.ContentHash,
		r.OrgScope,
		strconv.FormatInt(r.SizeBytes, 10),
		r.Outcome.String(),
		r.Reason.String(),
		strconv.FormatFloat(r.Confidence, 'f', 4, 64),
		strings.Join(signals, ";"),
		strings.Join(r.MatchedFingerprintIDs, ";"),
		r.PolicyVersion,
		r.Source,
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
		formatTime(r.DecidedAt),
		formatTime(r.RecordedAt),
		string(r.UserAction),
		actionAt,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

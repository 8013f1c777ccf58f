package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/verdict"
)

func records() []*audit.Record {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return []*audit.Record{
		{
			ID: "r1", DecisionID: "d1", ContentHash: "aa", OrgScope: "acme",
			Outcome: verdict.OutcomeWarn, Reason: verdict.ReasonSimilarityWarn, Confidence: 0.76,
			Signals: []audit.SignalSummary{
				{Method: verdict.MethodFuzzy, Status: verdict.StatusOK, Score: 0.9},
				{Method: verdict.MethodSemantic, Status: verdict.StatusTimeout},
			},
			MatchedFingerprintIDs: []string{"fp-1", "fp-2"},
			Source:                audit.SourceComputed,
			Duration:              12 * time.Millisecond,
			RecordedAt:            at,
			UserAction:            audit.UserActionProceed,
			UserActionAt:          &at,
		},
		{
			ID: "r2", DecisionID: "d2", ContentHash: "bb", OrgScope: "acme",
			Outcome: verdict.OutcomeBlock, Reason: verdict.ReasonBackendUnreachable,
			Source: audit.SourceCache, RecordedAt: at, UserAction: audit.UserActionNone,
		},
	}
}

func stream(rs []*audit.Record) <-chan *audit.Record {
	ch := make(chan *audit.Record, len(rs))
	for _, r := range rs {
		ch <- r
	}
	close(ch)
	return ch
}

func TestJSONExporter(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		e := NewJSONExporter(pretty)

		var buf bytes.Buffer
		if err := e.Export(context.Background(), records(), &buf); err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		var got []audit.Record
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("Export(pretty=%v) output is not a JSON array: %v", pretty, err)
		}
		if len(got) != 2 || got[0].Outcome != verdict.OutcomeWarn || got[1].Reason != verdict.ReasonBackendUnreachable {
			t.Errorf("Export(pretty=%v) = %+v", pretty, got)
		}

		buf.Reset()
		if err := e.ExportStream(context.Background(), stream(records()), &buf); err != nil {
			t.Fatalf("ExportStream() error = %v", err)
		}
		got = nil
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("ExportStream(pretty=%v) output is not a JSON array: %v\n%s", pretty, err, buf.String())
		}
		if len(got) != 2 {
			t.Errorf("ExportStream(pretty=%v) returned %d records", pretty, len(got))
		}
	}
}

func TestJSONExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(context.Background(), nil, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if buf.String() != "[]" {
		t.Errorf("Export(nil) = %q, want []", buf.String())
	}

	buf.Reset()
	if err := NewJSONExporter(true).ExportStream(context.Background(), stream(nil), &buf); err != nil {
		t.Fatalf("ExportStream() error = %v", err)
	}
	if buf.String() != "[]" {
		t.Errorf("ExportStream(empty) = %q, want []", buf.String())
	}
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), records(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || len(rows[0]) != len(rows[1]) {
		t.Errorf("header = %v", rows[0])
	}

	first := rows[1]
	if first[6] != "WARN" || first[8] != "0.7600" {
		t.Errorf("outcome/confidence = %s/%s", first[6], first[8])
	}
	if first[9] != "FUZZY:OK:0.9000;SEMANTIC:TIMEOUT:0.0000" {
		t.Errorf("signals = %q", first[9])
	}
	if first[10] != "fp-1;fp-2" || first[13] != "12" || first[16] != "PROCEED" {
		t.Errorf("row = %v", first)
	}
	if rows[2][17] != "" {
		t.Errorf("user_action_at for record without action = %q", rows[2][17])
	}
}

func TestCSVExporter_Stream(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(false).ExportStream(context.Background(), stream(records()), &buf); err != nil {
		t.Fatalf("ExportStream() error = %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{"json", "*export.JSONExporter", false},
		{"CSV", "*export.CSVExporter", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		e, err := New(tt.format, false)
		if (err != nil) != tt.wantErr {
			t.Fatalf("New(%q) error = %v", tt.format, err)
		}
		if err == nil {
			switch e.(type) {
			case *JSONExporter:
				if tt.want != "*export.JSONExporter" {
					t.Errorf("New(%q) = %T", tt.format, e)
				}
			case *CSVExporter:
				if tt.want != "*export.CSVExporter" {
					t.Errorf("New(%q) = %T", tt.format, e)
				}
			}
		}
	}
}

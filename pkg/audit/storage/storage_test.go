package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/verdict"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]audit.Storage {
	t.Helper()
	sqlite, err := NewSQLiteStorage(&config.SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "audit.db"),
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]audit.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func record(i int, outcome verdict.Outcome, org string) *audit.Record {
	return &audit.Record{
		ID:          fmt.Sprintf("rec-%02d", i),
		DecisionID:  fmt.Sprintf("dec-%02d", i),
		RequestID:   fmt.Sprintf("req-%02d", i),
		ContentHash: fmt.Sprintf("%064x", i),
		OrgScope:    org,
		SizeBytes:   int64(1000 * i),
		Outcome:     outcome,
		Reason:      verdict.ReasonSimilarityWarn,
		Confidence:  float64(i) / 10,
		Signals: []audit.SignalSummary{
			{Method: verdict.MethodFuzzy, Status: verdict.StatusOK, Score: 0.8, FingerprintID: "fp-1", LatencyMs: 3},
			{Method: verdict.MethodSemantic, Status: verdict.StatusTimeout},
		},
		MatchedFingerprintIDs: []string{"fp-1"},
		PolicyVersion:         "v1",
		Source:                audit.SourceComputed,
		Duration:              time.Duration(i) * time.Millisecond,
		DecidedAt:             base.Add(time.Duration(i) * time.Minute),
		RecordedAt:            base.Add(time.Duration(i) * time.Minute),
		UserAction:            audit.UserActionNone,
	}
}

func seed(t *testing.T, s audit.Storage) {
	t.Helper()
	outcomes := []verdict.Outcome{verdict.OutcomeAllow, verdict.OutcomeWarn, verdict.OutcomeBlock}
	for i := 1; i <= 9; i++ {
		org := "acme"
		if i%2 == 0 {
			org = "globex"
		}
		if err := s.Store(context.Background(), record(i, outcomes[i%3], org)); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := record(1, verdict.OutcomeWarn, "acme")
			if err := s.Store(context.Background(), want); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			got, err := s.Query(context.Background(), &audit.Query{DecisionID: "dec-01"})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("Query() returned %d records, want 1", len(got))
			}
			r := got[0]
			if r.Outcome != want.Outcome || r.Reason != want.Reason || r.Confidence != want.Confidence {
				t.Errorf("decision fields = %s/%s/%v", r.Outcome, r.Reason, r.Confidence)
			}
			if !r.RecordedAt.Equal(want.RecordedAt) || r.Duration != want.Duration {
				t.Errorf("time fields = %v/%v", r.RecordedAt, r.Duration)
			}
			if len(r.Signals) != 2 || r.Signals[1].Status != verdict.StatusTimeout || r.Signals[0].FingerprintID != "fp-1" {
				t.Errorf("signals = %+v", r.Signals)
			}
			if len(r.MatchedFingerprintIDs) != 1 || r.RequestID != "req-01" || r.UserAction != audit.UserActionNone {
				t.Errorf("record = %+v", r)
			}
		})
	}
}

func TestStorage_QueryFilters(t *testing.T) {
	from := base.Add(3 * time.Minute)
	to := base.Add(6 * time.Minute)
	minConf := 0.5

	tests := []struct {
		name  string
		query audit.Query
		want  int
	}{
		{"all", audit.Query{}, 9},
		{"org", audit.Query{OrgScope: "globex"}, 4},
		{"outcome", audit.Query{Outcome: verdict.OutcomeBlock}, 3},
		{"time range", audit.Query{StartTime: &from, EndTime: &to}, 4},
		{"min confidence", audit.Query{MinConfidence: &minConf}, 5},
		{"combined", audit.Query{OrgScope: "acme", MinConfidence: &minConf}, 3},
		{"source", audit.Query{Source: audit.SourceCache}, 0},
		{"limit", audit.Query{Limit: 2}, 2},
		{"offset", audit.Query{Offset: 7}, 2},
	}

	for name, s := range backends(t) {
		seed(t, s)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := s.Query(context.Background(), &tt.query)
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				if len(got) != tt.want {
					t.Errorf("Query() returned %d records, want %d", len(got), tt.want)
				}
			})
		}
	}
}

func TestStorage_Sorting(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			got, err := s.Query(context.Background(), &audit.Query{SortBy: "confidence", SortOrder: "asc", Limit: 3})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 3 || got[0].ID != "rec-01" || got[2].ID != "rec-03" {
				t.Errorf("ascending confidence = %v", ids(got))
			}

			got, err = s.Query(context.Background(), &audit.Query{Limit: 1})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 1 || got[0].ID != "rec-09" {
				t.Errorf("default order newest first = %v", ids(got))
			}
		})
	}
}

func TestStorage_QueryStream(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			recordsCh, errCh, err := s.QueryStream(context.Background(), &audit.Query{OrgScope: "acme"})
			if err != nil {
				t.Fatalf("QueryStream() error = %v", err)
			}
			n := 0
			for range recordsCh {
				n++
			}
			if err := <-errCh; err != nil {
				t.Fatalf("stream error = %v", err)
			}
			if n != 5 {
				t.Errorf("streamed %d records, want 5", n)
			}
		})
	}
}

func TestStorage_CountAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			cutoff := base.Add(4 * time.Minute)
			deleted, err := s.Delete(ctx, &audit.Query{EndTime: &cutoff})
			if err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if deleted != 4 {
				t.Errorf("Delete() = %d, want 4", deleted)
			}

			n, err := s.Count(ctx, &audit.Query{})
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != 5 {
				t.Errorf("Count() = %d, want 5", n)
			}
		})
	}
}

func TestStorage_SetUserAction(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			at := base.Add(time.Hour)

			n, err := s.SetUserAction(ctx, "dec-03", audit.UserActionCancel, at)
			if err != nil {
				t.Fatalf("SetUserAction() error = %v", err)
			}
			if n != 1 {
				t.Errorf("SetUserAction() = %d, want 1", n)
			}

			got, _ := s.Query(ctx, &audit.Query{UserAction: audit.UserActionCancel})
			if len(got) != 1 || got[0].DecisionID != "dec-03" {
				t.Fatalf("Query(CANCEL) = %v", ids(got))
			}
			if got[0].UserActionAt == nil || !got[0].UserActionAt.Equal(at) {
				t.Errorf("UserActionAt = %v, want %v", got[0].UserActionAt, at)
			}

			if _, err := s.SetUserAction(ctx, "missing", audit.UserActionProceed, at); !errors.Is(err, audit.ErrRecordNotFound) {
				t.Errorf("SetUserAction(missing) error = %v, want ErrRecordNotFound", err)
			}
		})
	}
}

func TestNewSQLiteStorage_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStorage(&config.SQLiteConfig{}); err == nil {
		t.Error("NewSQLiteStorage() error = nil for empty path")
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(config.AuditConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStorage); !ok {
		t.Errorf("Open(memory) = %T", s)
	}
	if _, err := Open(config.AuditConfig{Backend: "postgres"}); err == nil {
		t.Error("Open(postgres) error = nil")
	}
}

func ids(records []*audit.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

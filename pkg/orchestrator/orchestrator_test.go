package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/filegate/pkg/verdict"
)

const testHash = "0123456789abcdef0123456789abcdef"

type fakeStore struct {
	exact func(ctx context.Context) (*verdict.Fingerprint, error)
	fuzzy func(ctx context.Context) ([]verdict.Candidate, error)
	fps   map[string]verdict.Fingerprint

	exactCalls atomic.Int32
	fuzzyCalls atomic.Int32
}

func (f *fakeStore) LookupExact(ctx context.Context, _, _ string) (*verdict.Fingerprint, error) {
	f.exactCalls.Add(1)
	if f.exact == nil {
		return nil, nil
	}
	return f.exact(ctx)
}

func (f *fakeStore) LookupFuzzy(ctx context.Context, _ []uint64, _ string) ([]verdict.Candidate, error) {
	f.fuzzyCalls.Add(1)
	if f.fuzzy == nil {
		return nil, nil
	}
	return f.fuzzy(ctx)
}

func (f *fakeStore) Fetch(_ context.Context, ids []string, _ string) ([]verdict.Fingerprint, error) {
	var out []verdict.Fingerprint
	for _, id := range ids {
		if fp, ok := f.fps[id]; ok {
			out = append(out, fp)
		}
	}
	return out, nil
}

type fakeIndex struct {
	query func(ctx context.Context) ([]verdict.Neighbor, error)
}

func (f *fakeIndex) QueryNearest(ctx context.Context, _ []float32, _ int, _ string) ([]verdict.Neighbor, error) {
	return f.query(ctx)
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func testConfig() Config {
	return Config{
		Deadline:               time.Second,
		ExactTimeout:           200 * time.Millisecond,
		FuzzyTimeout:           200 * time.Millisecond,
		SemanticTimeout:        50 * time.Millisecond,
		ShortCircuitExact:      true,
		IgnoreBenignCandidates: true,
		SemanticK:              5,
		MaxRetries:             0,
		RetryBaseDelay:         time.Millisecond,
	}
}

func descriptor(t *testing.T, withSig, withEmb bool) verdict.Descriptor {
	t.Helper()
	req := verdict.Request{ContentHash: testHash, SizeBytes: 1000, OrgScope: "acme"}
	if withSig {
		req.FuzzySignature = []uint64{1, 2, 3, 4}
	}
	if withEmb {
		req.Embedding = []float32{1, 0, 0}
	}
	d, err := verdict.NewDescriptor(req)
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	return d
}

func fp(id string, class verdict.Classification, size int64, firstSeen time.Time) verdict.Fingerprint {
	return verdict.Fingerprint{
		ID:             id,
		Classification: class,
		SizeBytes:      size,
		OrgScope:       "acme",
		FirstSeen:      firstSeen,
	}
}

func newOrchestrator(t *testing.T, store verdict.FingerprintStore, index verdict.SemanticIndex, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(store, index, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func mustSignal(t *testing.T, r Result, m verdict.Method) verdict.Signal {
	t.Helper()
	s, ok := r.Signal(m)
	if !ok {
		t.Fatalf("no %s signal", m)
	}
	return s
}

func TestRun_ExactMatchShortCircuits(t *testing.T) {
	mal := fp("fp-mal", verdict.ClassMalicious, 1000, time.Unix(100, 0))
	store := &fakeStore{
		exact: func(context.Context) (*verdict.Fingerprint, error) { return &mal, nil },
		fuzzy: func(ctx context.Context) ([]verdict.Candidate, error) { return nil, blockUntilDone(ctx) },
	}
	index := &fakeIndex{query: func(ctx context.Context) ([]verdict.Neighbor, error) { return nil, blockUntilDone(ctx) }}

	cfg := testConfig()
	cfg.SemanticTimeout = time.Second
	o := newOrchestrator(t, store, index, cfg)

	start := time.Now()
	res := o.Run(context.Background(), descriptor(t, true, true))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("short circuit took %v", elapsed)
	}

	exact := mustSignal(t, res, verdict.MethodExact)
	if !exact.Matched() || exact.Score != 1 || exact.Match.FingerprintID != "fp-mal" {
		t.Errorf("exact = %+v", exact)
	}
	for _, m := range []verdict.Method{verdict.MethodFuzzy, verdict.MethodSemantic, verdict.MethodSize} {
		if s := mustSignal(t, res, m); s.Status != verdict.StatusSkipped {
			t.Errorf("%s status = %s, want SKIPPED", m, s.Status)
		}
	}
	if res.Unreachable {
		t.Error("short-circuited run reported unreachable")
	}
}

func TestRun_NoShortCircuitWhenDisabled(t *testing.T) {
	mal := fp("fp-mal", verdict.ClassMalicious, 1000, time.Unix(100, 0))
	store := &fakeStore{
		exact: func(context.Context) (*verdict.Fingerprint, error) { return &mal, nil },
		fuzzy: func(context.Context) ([]verdict.Candidate, error) {
			time.Sleep(20 * time.Millisecond)
			return []verdict.Candidate{{Fingerprint: fp("fp-f", verdict.ClassMalicious, 500, time.Unix(1, 0)), Score: 0.8}}, nil
		},
	}
	cfg := testConfig()
	cfg.ShortCircuitExact = false
	res := newOrchestrator(t, store, nil, cfg).Run(context.Background(), descriptor(t, true, false))

	if s := mustSignal(t, res, verdict.MethodFuzzy); s.Status != verdict.StatusOK || s.Score != 0.8 {
		t.Errorf("fuzzy = %+v", s)
	}
}

func TestRun_SemanticTimeoutIsAbsent(t *testing.T) {
	store := &fakeStore{
		fuzzy: func(context.Context) ([]verdict.Candidate, error) {
			return []verdict.Candidate{{Fingerprint: fp("fp-f", verdict.ClassMalicious, 1000, time.Unix(1, 0)), Score: 0.95}}, nil
		},
	}
	index := &fakeIndex{query: func(ctx context.Context) ([]verdict.Neighbor, error) { return nil, blockUntilDone(ctx) }}

	res := newOrchestrator(t, store, index, testConfig()).Run(context.Background(), descriptor(t, true, true))

	sem := mustSignal(t, res, verdict.MethodSemantic)
	if sem.Status != verdict.StatusTimeout || sem.Present() {
		t.Errorf("semantic = %+v, want TIMEOUT", sem)
	}
	if sem.Error == "" {
		t.Error("timed out signal should carry an error message")
	}
	fuzzy := mustSignal(t, res, verdict.MethodFuzzy)
	if !fuzzy.Present() || fuzzy.Score != 0.95 {
		t.Errorf("fuzzy = %+v", fuzzy)
	}
	size := mustSignal(t, res, verdict.MethodSize)
	if !size.Present() || size.Score != 1 || size.Match.FingerprintID != "fp-f" {
		t.Errorf("size = %+v", size)
	}
	if res.Unreachable {
		t.Error("partial failure reported unreachable")
	}
}

func TestRun_AllFailedIsUnreachable(t *testing.T) {
	boom := errors.New("connection refused")
	store := &fakeStore{
		exact: func(context.Context) (*verdict.Fingerprint, error) { return nil, boom },
		fuzzy: func(context.Context) ([]verdict.Candidate, error) { return nil, boom },
	}
	index := &fakeIndex{query: func(context.Context) ([]verdict.Neighbor, error) { return nil, boom }}

	res := newOrchestrator(t, store, index, testConfig()).Run(context.Background(), descriptor(t, true, true))

	if !res.Unreachable {
		t.Fatal("expected unreachable")
	}
	if !errors.Is(res.Err, verdict.ErrBackendUnreachable) {
		t.Errorf("Err = %v, want ErrBackendUnreachable", res.Err)
	}
	if !errors.Is(res.Err, verdict.ErrSignalUnavailable) || !errors.Is(res.Err, boom) {
		t.Errorf("Err should wrap the per-method causes: %v", res.Err)
	}
	var bu *verdict.BackendUnreachableError
	if !errors.As(res.Err, &bu) || len(bu.Causes) != 3 {
		t.Errorf("causes = %v", res.Err)
	}
	if s := mustSignal(t, res, verdict.MethodExact); s.Status != verdict.StatusFailed {
		t.Errorf("exact status = %s", s.Status)
	}
}

func TestRun_ExactOnlyFailureIsUnreachable(t *testing.T) {
	store := &fakeStore{
		exact: func(context.Context) (*verdict.Fingerprint, error) { return nil, errors.New("down") },
	}
	res := newOrchestrator(t, store, nil, testConfig()).Run(context.Background(), descriptor(t, false, false))

	if !res.Unreachable {
		t.Error("only issued lookup failed; expected unreachable")
	}
}

func TestRun_NotRequested(t *testing.T) {
	store := &fakeStore{}
	index := &fakeIndex{query: func(context.Context) ([]verdict.Neighbor, error) {
		t.Error("semantic lookup issued without an embedding")
		return nil, nil
	}}

	res := newOrchestrator(t, store, index, testConfig()).Run(context.Background(), descriptor(t, false, false))

	if store.fuzzyCalls.Load() != 0 {
		t.Error("fuzzy lookup issued without a signature")
	}
	for _, m := range []verdict.Method{verdict.MethodFuzzy, verdict.MethodSemantic, verdict.MethodSize} {
		if s := mustSignal(t, res, m); s.Status != verdict.StatusNotRequested {
			t.Errorf("%s status = %s, want NOT_REQUESTED", m, s.Status)
		}
	}
	exact := mustSignal(t, res, verdict.MethodExact)
	if !exact.Present() || exact.Matched() || exact.Score != 0 {
		t.Errorf("exact = %+v, want present without match", exact)
	}
}

func TestRun_NoMatchesAnywhere(t *testing.T) {
	store := &fakeStore{}
	index := &fakeIndex{query: func(context.Context) ([]verdict.Neighbor, error) { return nil, nil }}

	res := newOrchestrator(t, store, index, testConfig()).Run(context.Background(), descriptor(t, true, true))

	for _, s := range res.Signals {
		if !s.Present() {
			t.Errorf("%s status = %s, want OK", s.Method, s.Status)
		}
		if s.Score != 0 || s.Matched() {
			t.Errorf("%s = %+v, want zero score without match", s.Method, s)
		}
	}
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	mal := fp("fp-mal", verdict.ClassMalicious, 10, time.Unix(1, 0))
	store := &fakeStore{
		exact: func(context.Context) (*verdict.Fingerprint, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("transient")
			}
			return &mal, nil
		},
	}
	cfg := testConfig()
	cfg.MaxRetries = 2

	res := newOrchestrator(t, store, nil, cfg).Run(context.Background(), descriptor(t, false, false))

	if s := mustSignal(t, res, verdict.MethodExact); !s.Matched() {
		t.Errorf("exact = %+v, want match after retry", s)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

type permanentError struct{}

func (permanentError) Error() string   { return "permanent" }
func (permanentError) Temporary() bool { return false }

func TestRun_DoesNotRetryPermanentErrors(t *testing.T) {
	store := &fakeStore{
		exact: func(context.Context) (*verdict.Fingerprint, error) { return nil, permanentError{} },
	}
	cfg := testConfig()
	cfg.MaxRetries = 3

	newOrchestrator(t, store, nil, cfg).Run(context.Background(), descriptor(t, false, false))

	if got := store.exactCalls.Load(); got != 1 {
		t.Errorf("exact calls = %d, want 1", got)
	}
}

func TestRun_FuzzyBestCandidate(t *testing.T) {
	early := time.Unix(100, 0)
	late := time.Unix(200, 0)

	tests := []struct {
		name       string
		candidates []verdict.Candidate
		wantID     string
		wantScore  float64
	}{
		{
			name: "highest score wins",
			candidates: []verdict.Candidate{
				{Fingerprint: fp("a", verdict.ClassMalicious, 1000, early), Score: 0.6},
				{Fingerprint: fp("b", verdict.ClassMalicious, 1000, early), Score: 0.9},
			},
			wantID: "b", wantScore: 0.9,
		},
		{
			name: "tie broken by earlier first seen",
			candidates: []verdict.Candidate{
				{Fingerprint: fp("a", verdict.ClassMalicious, 1000, late), Score: 0.8},
				{Fingerprint: fp("b", verdict.ClassMalicious, 1000, early), Score: 0.8},
			},
			wantID: "b", wantScore: 0.8,
		},
		{
			name: "tie broken by lower id",
			candidates: []verdict.Candidate{
				{Fingerprint: fp("z", verdict.ClassMalicious, 1000, early), Score: 0.8},
				{Fingerprint: fp("m", verdict.ClassMalicious, 1000, early), Score: 0.8},
			},
			wantID: "m", wantScore: 0.8,
		},
		{
			name: "benign ignored",
			candidates: []verdict.Candidate{
				{Fingerprint: fp("good", verdict.ClassBenign, 1000, early), Score: 0.99},
				{Fingerprint: fp("bad", verdict.ClassUnknown, 1000, early), Score: 0.7},
			},
			wantID: "bad", wantScore: 0.7,
		},
		{
			name: "only benign means no match",
			candidates: []verdict.Candidate{
				{Fingerprint: fp("good", verdict.ClassBenign, 1000, early), Score: 0.99},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{fuzzy: func(context.Context) ([]verdict.Candidate, error) { return tt.candidates, nil }}
			res := newOrchestrator(t, store, nil, testConfig()).Run(context.Background(), descriptor(t, true, false))

			s := mustSignal(t, res, verdict.MethodFuzzy)
			if s.Match.FingerprintID != tt.wantID || s.Score != tt.wantScore {
				t.Errorf("fuzzy = %s/%v, want %s/%v", s.Match.FingerprintID, s.Score, tt.wantID, tt.wantScore)
			}
		})
	}
}

func TestRun_SemanticResolvesNeighbours(t *testing.T) {
	store := &fakeStore{
		fps: map[string]verdict.Fingerprint{
			"near": fp("near", verdict.ClassMalicious, 500, time.Unix(1, 0)),
			"far":  fp("far", verdict.ClassMalicious, 1000, time.Unix(1, 0)),
		},
	}
	index := &fakeIndex{query: func(context.Context) ([]verdict.Neighbor, error) {
		return []verdict.Neighbor{
			{FingerprintID: "near", Distance: 0.25},
			{FingerprintID: "far", Distance: 0.5},
			{FingerprintID: "stale", Distance: 0},
		}, nil
	}}

	res := newOrchestrator(t, store, index, testConfig()).Run(context.Background(), descriptor(t, false, true))

	sem := mustSignal(t, res, verdict.MethodSemantic)
	if sem.Match.FingerprintID != "near" || sem.Score != 0.75 {
		t.Errorf("semantic = %s/%v, want near/0.75", sem.Match.FingerprintID, sem.Score)
	}
	size := mustSignal(t, res, verdict.MethodSize)
	if size.Score != 0.5 {
		t.Errorf("size score = %v, want 0.5", size.Score)
	}
	if s := mustSignal(t, res, verdict.MethodFuzzy); s.Status != verdict.StatusNotRequested {
		t.Errorf("fuzzy status = %s", s.Status)
	}
}

func TestRun_OverallDeadline(t *testing.T) {
	store := &fakeStore{
		exact: func(ctx context.Context) (*verdict.Fingerprint, error) { return nil, blockUntilDone(ctx) },
	}
	cfg := testConfig()
	cfg.Deadline = 30 * time.Millisecond
	cfg.ExactTimeout = time.Second

	start := time.Now()
	res := newOrchestrator(t, store, nil, cfg).Run(context.Background(), descriptor(t, false, false))

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("deadline not enforced: %v", elapsed)
	}
	if s := mustSignal(t, res, verdict.MethodExact); s.Status != verdict.StatusTimeout {
		t.Errorf("exact status = %s, want TIMEOUT", s.Status)
	}
	if !res.Unreachable {
		t.Error("expected unreachable")
	}
}

func TestRun_DeadlineWithLookupIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	store := &fakeStore{
		fuzzy: func(context.Context) ([]verdict.Candidate, error) {
			<-release
			return []verdict.Candidate{{Fingerprint: fp("late", verdict.ClassMalicious, 1000, time.Now()), Score: 1}}, nil
		},
	}
	cfg := testConfig()
	cfg.Deadline = 50 * time.Millisecond
	cfg.FuzzyTimeout = time.Second

	start := time.Now()
	res := newOrchestrator(t, store, nil, cfg).Run(context.Background(), descriptor(t, true, false))

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Run returned after %v with a 50ms deadline", elapsed)
	}
	if s := mustSignal(t, res, verdict.MethodExact); s.Status != verdict.StatusOK {
		t.Errorf("exact status = %s, want OK", s.Status)
	}
	fuzzy := mustSignal(t, res, verdict.MethodFuzzy)
	if fuzzy.Status != verdict.StatusTimeout || fuzzy.Present() {
		t.Errorf("fuzzy = %s present %v, want absent TIMEOUT", fuzzy.Status, fuzzy.Present())
	}
	if res.Unreachable {
		t.Error("exact answered, result should not be unreachable")
	}
}

func TestRun_AbandonedExactLookupIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	store := &fakeStore{
		exact: func(context.Context) (*verdict.Fingerprint, error) {
			<-release
			f := fp("late", verdict.ClassMalicious, 1000, time.Now())
			return &f, nil
		},
	}
	cfg := testConfig()
	cfg.Deadline = 30 * time.Millisecond
	cfg.ExactTimeout = time.Second

	res := newOrchestrator(t, store, nil, cfg).Run(context.Background(), descriptor(t, false, false))

	if s := mustSignal(t, res, verdict.MethodExact); s.Status != verdict.StatusTimeout {
		t.Errorf("exact status = %s, want TIMEOUT", s.Status)
	}
	if !res.Unreachable {
		t.Error("expected unreachable")
	}
}

func TestSizeSimilarity(t *testing.T) {
	tests := []struct {
		a, b int64
		want float64
	}{
		{100, 100, 1},
		{50, 100, 0.5},
		{100, 50, 0.5},
		{0, 0, 1},
		{0, 10, 0},
		{-1, 10, 0},
	}
	for _, tt := range tests {
		if got := SizeSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("SizeSimilarity(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, testConfig()); err == nil {
		t.Error("expected error for nil store")
	}
	cfg := testConfig()
	cfg.Deadline = 0
	if _, err := New(&fakeStore{}, nil, cfg); err == nil {
		t.Error("expected error for zero deadline")
	}
}

func TestDefaultConfig(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

package feedback

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/filegate/pkg/audit"
	auditstorage "mercator-hq/filegate/pkg/audit/storage"
	"mercator-hq/filegate/pkg/cache"
	"mercator-hq/filegate/pkg/fingerprint"
	"mercator-hq/filegate/pkg/fingerprint/storage"
	"mercator-hq/filegate/pkg/verdict"
)

const (
	hashA = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	hashB = "60303ae22b998861bce3b28f33eec1be758a213c86c93c076dbe9f558c11c752"
)

type fixture struct {
	store   *storage.MemoryStore
	cache   *cache.Cache
	audit   *auditstorage.MemoryStorage
	applier *Applier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore(fingerprint.DefaultMatchOptions())
	for _, org := range []string{"acme", "globex"} {
		if err := store.Put(ctx, &verdict.Fingerprint{ContentHash: hashA, OrgScope: org, Classification: verdict.ClassUnknown}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	mem, err := cache.NewMemoryStore(100, nil)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	c, err := cache.New(mem, cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	for _, org := range []string{"acme", "globex"} {
		_, _, err := c.Resolve(ctx, verdict.Key{ContentHash: hashA, OrgScope: org}, func(context.Context) (verdict.Decision, error) {
			return verdict.Decision{ID: "dec-" + org, Outcome: verdict.OutcomeWarn, Reason: verdict.ReasonExactMatchUnclassified}, nil
		})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}

	auditStore := auditstorage.NewMemoryStorage()
	_ = auditStore.Store(ctx, &audit.Record{ID: "r1", DecisionID: "dec-acme", Outcome: verdict.OutcomeWarn, Reason: verdict.ReasonExactMatchUnclassified, UserAction: audit.UserActionNone})

	applier, err := NewApplier(store, c, WithAudit(auditStore))
	if err != nil {
		t.Fatalf("NewApplier() error = %v", err)
	}
	return &fixture{store: store, cache: c, audit: auditStore, applier: applier}
}

func (f *fixture) cached(org string) bool {
	_, ok := f.cache.Lookup(context.Background(), verdict.Key{ContentHash: hashA, OrgScope: org})
	return ok
}

func TestApply_SingleOrg(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.applier.Apply(ctx, Override{ContentHash: hashA, OrgScope: "acme", Classification: verdict.ClassMalicious, Actor: "analyst"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Reclassified != 1 || res.Invalidated != 1 {
		t.Errorf("Apply() = %+v", res)
	}

	fp, _ := f.store.LookupExact(ctx, hashA, "acme")
	if fp.Classification != verdict.ClassMalicious {
		t.Errorf("acme classification = %s, want MALICIOUS", fp.Classification)
	}
	other, _ := f.store.LookupExact(ctx, hashA, "globex")
	if other.Classification != verdict.ClassUnknown {
		t.Errorf("globex classification = %s, want UNKNOWN", other.Classification)
	}
	if f.cached("acme") {
		t.Error("acme entry still cached after override")
	}
	if !f.cached("globex") {
		t.Error("globex entry invalidated by an acme override")
	}
}

func TestApply_AllOrgs(t *testing.T) {
	f := newFixture(t)

	res, err := f.applier.Apply(context.Background(), Override{ContentHash: hashA, Classification: verdict.ClassBenign})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Reclassified != 2 || res.Invalidated != 2 {
		t.Errorf("Apply() = %+v", res)
	}
	if f.cached("acme") || f.cached("globex") {
		t.Error("entries still cached after all-org override")
	}
}

func TestApply_UserAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.applier.Apply(ctx, Override{
		ContentHash:    hashA,
		OrgScope:       "acme",
		Classification: verdict.ClassBenign,
		DecisionID:     "dec-acme",
		UserAction:     "proceed",
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Annotated != 1 {
		t.Errorf("Annotated = %d, want 1", res.Annotated)
	}
	got, _ := f.audit.Query(ctx, &audit.Query{DecisionID: "dec-acme"})
	if len(got) != 1 || got[0].UserAction != audit.UserActionProceed {
		t.Errorf("audit record = %+v", got)
	}

	// An unknown decision is not an error.
	res, err = f.applier.Apply(ctx, Override{ContentHash: hashA, Classification: verdict.ClassBenign, DecisionID: "missing", UserAction: audit.UserActionCancel})
	if err != nil || res.Annotated != 0 {
		t.Errorf("Apply(unknown decision) = %+v, %v", res, err)
	}
}

func TestApply_UnknownHashStillInvalidates(t *testing.T) {
	f := newFixture(t)

	res, err := f.applier.Apply(context.Background(), Override{ContentHash: hashB, Classification: verdict.ClassMalicious})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Reclassified != 0 {
		t.Errorf("Reclassified = %d, want 0", res.Reclassified)
	}
}

func TestApply_Invalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		override Override
	}{
		{"bad hash", Override{ContentHash: "xyz", Classification: verdict.ClassBenign}},
		{"no classification", Override{ContentHash: hashA}},
		{"bad user action", Override{ContentHash: hashA, Classification: verdict.ClassBenign, DecisionID: "d", UserAction: "MAYBE"}},
		{"action without decision", Override{ContentHash: hashA, Classification: verdict.ClassBenign, UserAction: audit.UserActionCancel}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.applier.Apply(context.Background(), tt.override)
			if !errors.Is(err, ErrInvalidOverride) {
				t.Errorf("Apply() error = %v, want ErrInvalidOverride", err)
			}
		})
	}
}

func TestApply_NormalizesHash(t *testing.T) {
	f := newFixture(t)
	upper := "9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08"

	res, err := f.applier.Apply(context.Background(), Override{ContentHash: upper, OrgScope: "acme", Classification: verdict.ClassMalicious})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Reclassified != 1 {
		t.Errorf("Reclassified = %d, want 1", res.Reclassified)
	}
}

type failingStore struct{}

func (failingStore) Reclassify(context.Context, string, string, verdict.Classification) (int, error) {
	return 0, errors.New("connection refused")
}

func TestApply_StoreError(t *testing.T) {
	a, err := NewApplier(failingStore{}, nil)
	if err != nil {
		t.Fatalf("NewApplier() error = %v", err)
	}
	if _, err := a.Apply(context.Background(), Override{ContentHash: hashA, Classification: verdict.ClassBenign}); err == nil {
		t.Error("Apply() error = nil for failing store")
	}
}

func TestNewApplier_RequiresStore(t *testing.T) {
	if _, err := NewApplier(nil, nil); err == nil {
		t.Error("NewApplier(nil) error = nil")
	}
}


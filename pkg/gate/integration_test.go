package gate

import (
	"context"
	"testing"

	"mercator-hq/filegate/pkg/cache"
	"mercator-hq/filegate/pkg/fingerprint"
	"mercator-hq/filegate/pkg/fingerprint/storage"
	"mercator-hq/filegate/pkg/orchestrator"
	"mercator-hq/filegate/pkg/semantic"
	"mercator-hq/filegate/pkg/verdict"
)

func TestGate_WithOrchestrator(t *testing.T) {
	ctx := context.Background()

	store := storage.NewMemoryStore(fingerprint.DefaultMatchOptions())
	if err := store.Put(ctx, &verdict.Fingerprint{
		ContentHash:    testHash,
		OrgScope:       "acme",
		SizeBytes:      1024,
		Classification: verdict.ClassMalicious,
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	orch, err := orchestrator.New(store, semantic.NewMemoryIndex(), orchestrator.DefaultConfig())
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}
	mem, _ := cache.NewMemoryStore(100, nil)
	c, err := cache.New(mem, cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	sink := &recordingSink{}
	g, err := New(orch, c, DefaultPolicy(), WithAudit(sink, false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := g.Evaluate(ctx, verdict.Request{ContentHash: testHash, OrgScope: "acme", SizeBytes: 1024})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if resp.Outcome != verdict.OutcomeBlock || resp.Reason != verdict.ReasonExactMatchMalicious {
		t.Errorf("known file = %s/%s, want BLOCK/EXACT_MATCH_MALICIOUS", resp.Outcome, resp.Reason)
	}

	// The same hash in another org is unknown there.
	resp, err = g.Evaluate(ctx, verdict.Request{ContentHash: testHash, OrgScope: "globex", SizeBytes: 1024})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if resp.Outcome != verdict.OutcomeAllow || resp.Reason != verdict.ReasonNoMatch {
		t.Errorf("other org = %s/%s, want ALLOW/NO_MATCH", resp.Outcome, resp.Reason)
	}
	if sink.len() != 2 {
		t.Errorf("audit appends = %d, want 2", sink.len())
	}
}

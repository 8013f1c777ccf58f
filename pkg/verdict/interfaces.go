package verdict

import (
	"context"
)

// FingerprintStore is the read side of the shared fingerprint corpus.
// Lookups return (nil, nil) or an empty slice when nothing matches; an
// error means the lookup itself failed.
type FingerprintStore interface {
	LookupExact(ctx context.Context, contentHash, orgScope string) (*Fingerprint, error)
	LookupFuzzy(ctx context.Context, signature []uint64, orgScope string) ([]Candidate, error)
	Fetch(ctx context.Context, ids []string, orgScope string) ([]Fingerprint, error)
}

// SemanticIndex answers nearest-neighbour queries over embeddings.
type SemanticIndex interface {
	QueryNearest(ctx context.Context, embedding []float32, k int, orgScope string) ([]Neighbor, error)
}

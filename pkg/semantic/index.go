// Package semantic implements an in-process nearest-neighbour index over
// file embeddings using cosine distance.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"mercator-hq/filegate/pkg/verdict"
)

// DefaultK is the number of neighbours returned when k <= 0.
const DefaultK = 10

// ErrDimensionMismatch is returned when vectors of different lengths meet.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type entry struct {
	org  string
	vec  []float32
	norm float64
}

// MemoryIndex is a brute-force cosine index partitioned by org.
// It is safe for concurrent use.
type MemoryIndex struct {
	mu        sync.RWMutex
	entries   map[string]entry
	dimension int
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]entry)}
}

// Upsert adds or replaces the vector for fingerprint id.
func (x *MemoryIndex) Upsert(id, orgScope string, vec []float32) error {
	norm := l2(vec)
	if norm == 0 {
		return fmt.Errorf("embedding for %s is empty or zero", id)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dimension == 0 {
		x.dimension = len(vec)
	}
	if len(vec) != x.dimension {
		return fmt.Errorf("%w: got %d, index holds %d", ErrDimensionMismatch, len(vec), x.dimension)
	}
	x.entries[id] = entry{org: orgScope, vec: append([]float32(nil), vec...), norm: norm}
	return nil
}

// Remove deletes fingerprint id from the index.
func (x *MemoryIndex) Remove(id string) {
	x.mu.Lock()
	delete(x.entries, id)
	x.mu.Unlock()
}

// Len returns the number of indexed vectors.
func (x *MemoryIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// QueryNearest implements verdict.SemanticIndex.
func (x *MemoryIndex) QueryNearest(ctx context.Context, embedding []float32, k int, orgScope string) ([]verdict.Neighbor, error) {
	if k <= 0 {
		k = DefaultK
	}
	qnorm := l2(embedding)
	if qnorm == 0 {
		return nil, fmt.Errorf("query embedding is empty or zero")
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.dimension != 0 && len(embedding) != x.dimension {
		return nil, fmt.Errorf("%w: got %d, index holds %d", ErrDimensionMismatch, len(embedding), x.dimension)
	}

	out := make([]verdict.Neighbor, 0, k+1)
	var n int
	for id, e := range x.entries {
		if e.org != orgScope {
			continue
		}
		// Honour cancellation on large partitions.
		if n++; n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out = append(out, verdict.Neighbor{FingerprintID: id, Distance: cosineDistance(embedding, qnorm, e)})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].FingerprintID < out[j].FingerprintID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Scanner iterates over stored fingerprints.
type Scanner interface {
	Scan(ctx context.Context, orgScope string, fn func(verdict.Fingerprint) error) error
}

// Hydrate loads every fingerprint with an embedding from s into x. Vectors
// that cannot be indexed are logged and skipped.
func Hydrate(ctx context.Context, x *MemoryIndex, s Scanner) (int, error) {
	logger := slog.Default().With("component", "semantic.index")
	var loaded int
	err := s.Scan(ctx, "", func(fp verdict.Fingerprint) error {
		if len(fp.Embedding) == 0 {
			return nil
		}
		if err := x.Upsert(fp.ID, fp.OrgScope, fp.Embedding); err != nil {
			logger.Warn("skipping embedding", "fingerprint_id", fp.ID, "error", err)
			return nil
		}
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("failed to hydrate semantic index: %w", err)
	}
	logger.Info("semantic index hydrated", "vectors", loaded)
	return loaded, nil
}

// SimilarityFromDistance maps cosine distance onto a [0, 1] similarity.
func SimilarityFromDistance(d float64) float64 {
	s := 1 - d
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

func cosineDistance(q []float32, qnorm float64, e entry) float64 {
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(e.vec[i])
	}
	return 1 - dot/(qnorm*e.norm)
}

func l2(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

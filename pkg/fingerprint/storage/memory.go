package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/filegate/pkg/fingerprint"
	"mercator-hq/filegate/pkg/verdict"
)

// MemoryStore keeps the corpus in process memory. Fuzzy lookups scan every
// fingerprint in the org.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*verdict.Fingerprint
	byKey  map[verdict.Key]string
	opts   fingerprint.MatchOptions
	closed bool
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts fingerprint.MatchOptions) *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*verdict.Fingerprint),
		byKey: make(map[verdict.Key]string),
		opts:  opts.WithDefaults(),
		now:   time.Now,
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, fp *verdict.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	now := s.now().UTC()
	key := verdict.Key{ContentHash: fp.ContentHash, OrgScope: fp.OrgScope}
	if id, ok := s.byKey[key]; ok {
		existing := s.byID[id]
		fp.ID = existing.ID
		fp.FirstSeen = existing.FirstSeen
	}
	if fp.ID == "" {
		fp.ID = uuid.New().String()
	}
	if fp.FirstSeen.IsZero() {
		fp.FirstSeen = now
	}
	if fp.Classification == 0 {
		fp.Classification = verdict.ClassUnknown
	}
	fp.UpdatedAt = now

	stored := copyFingerprint(*fp)
	s.byID[fp.ID] = &stored
	s.byKey[key] = fp.ID
	return nil
}

// LookupExact implements verdict.FingerprintStore.
func (s *MemoryStore) LookupExact(_ context.Context, contentHash, orgScope string) (*verdict.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	id, ok := s.byKey[verdict.Key{ContentHash: contentHash, OrgScope: orgScope}]
	if !ok {
		return nil, nil
	}
	fp := copyFingerprint(*s.byID[id])
	return &fp, nil
}

// LookupFuzzy implements verdict.FingerprintStore.
func (s *MemoryStore) LookupFuzzy(_ context.Context, signature []uint64, orgScope string) ([]verdict.Candidate, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	pool := make([]verdict.Fingerprint, 0, len(s.byID))
	for _, fp := range s.byID {
		if fp.OrgScope == orgScope && len(fp.FuzzySignature) > 0 {
			pool = append(pool, copyFingerprint(*fp))
		}
	}
	s.mu.RUnlock()

	return fingerprint.RankCandidates(signature, pool, s.opts), nil
}

// Fetch implements verdict.FingerprintStore.
func (s *MemoryStore) Fetch(_ context.Context, ids []string, orgScope string) ([]verdict.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]verdict.Fingerprint, 0, len(ids))
	for _, id := range ids {
		fp, ok := s.byID[id]
		if !ok || fp.OrgScope != orgScope {
			continue
		}
		out = append(out, copyFingerprint(*fp))
	}
	return out, nil
}

// Reclassify implements Store.
func (s *MemoryStore) Reclassify(_ context.Context, contentHash, orgScope string, c verdict.Classification) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	now := s.now().UTC()
	for key, id := range s.byKey {
		if key.ContentHash != contentHash || (orgScope != "" && key.OrgScope != orgScope) {
			continue
		}
		fp := s.byID[id]
		fp.Classification = c
		fp.UpdatedAt = now
		n++
	}
	return n, nil
}

// Scan implements Store.
func (s *MemoryStore) Scan(ctx context.Context, orgScope string, fn func(verdict.Fingerprint) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	all := make([]verdict.Fingerprint, 0, len(s.byID))
	for _, fp := range s.byID {
		if orgScope == "" || fp.OrgScope == orgScope {
			all = append(all, copyFingerprint(*fp))
		}
	}
	s.mu.RUnlock()

	for _, fp := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(fp); err != nil {
			return err
		}
	}
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyFingerprint(fp verdict.Fingerprint) verdict.Fingerprint {
	fp.FuzzySignature = append([]uint64(nil), fp.FuzzySignature...)
	fp.Embedding = append([]float32(nil), fp.Embedding...)
	return fp
}

package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mercator-hq/filegate/pkg/verdict"
)

// MemoryStore is a size-bounded, process-local Store. Claims always
// succeed: in-process coalescing is handled by the Cache itself.
type MemoryStore struct {
	entries *lru.Cache[verdict.Key, Entry]
	onEvict func()
}

// NewMemoryStore creates a store holding at most maxEntries decisions.
// onEvict, if non-nil, is called whenever a capacity eviction happens.
func NewMemoryStore(maxEntries int, onEvict func()) (*MemoryStore, error) {
	entries, err := lru.New[verdict.Key, Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &MemoryStore{entries: entries, onEvict: onEvict}, nil
}

// Get returns a copy of the entry for key. Expiry is left to the caller.
func (s *MemoryStore) Get(_ context.Context, key verdict.Key) (*Entry, error) {
	e, ok := s.entries.Get(key)
	if !ok {
		return nil, nil
	}
	e.Decision = e.Decision.Clone()
	return &e, nil
}

// Set stores a copy of e.
func (s *MemoryStore) Set(_ context.Context, e *Entry) error {
	stored := *e
	stored.Decision = e.Decision.Clone()
	if evicted := s.entries.Add(e.Key, stored); evicted && s.onEvict != nil {
		s.onEvict()
	}
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key verdict.Key) error {
	s.entries.Remove(key)
	return nil
}

// DeleteHash removes hash in every org.
func (s *MemoryStore) DeleteHash(_ context.Context, hash string) (int, error) {
	hash = strings.ToLower(hash)
	var n int
	for _, k := range s.entries.Keys() {
		if k.ContentHash == hash && s.entries.Remove(k) {
			n++
		}
	}
	return n, nil
}

// Purge removes everything.
func (s *MemoryStore) Purge(context.Context) (int, error) {
	n := s.entries.Len()
	s.entries.Purge()
	return n, nil
}

// Claim always succeeds.
func (s *MemoryStore) Claim(context.Context, verdict.Key, string, time.Duration) (bool, error) {
	return true, nil
}

// Release is a no-op.
func (s *MemoryStore) Release(context.Context, verdict.Key, string) error { return nil }

// Len returns the number of stored entries, including expired ones not yet read.
func (s *MemoryStore) Len() int { return s.entries.Len() }

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close purges the store.
func (s *MemoryStore) Close() error {
	s.entries.Purge()
	return nil
}

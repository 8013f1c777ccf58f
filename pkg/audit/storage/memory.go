package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/filegate/pkg/audit"
)

// MemoryStorage implements audit.Storage with a map.
type MemoryStorage struct {
	records map[string]*audit.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*audit.Record)}
}

// Store saves a copy of r.
func (s *MemoryStorage) Store(_ context.Context, r *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = copyRecord(r)
	return nil
}

// Query returns sorted, paginated copies of the matching records.
func (s *MemoryStorage) Query(_ context.Context, q *audit.Query) ([]*audit.Record, error) {
	s.mu.RLock()
	results := make([]*audit.Record, 0)
	for _, r := range s.records {
		if q.Matches(r) {
			results = append(results, copyRecord(r))
		}
	}
	s.mu.RUnlock()

	sortRecords(results, q.SortBy, q.SortOrder)
	return paginate(results, q.Limit, q.Offset), nil
}

// QueryStream runs Query and streams its result.
func (s *MemoryStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.Record, <-chan error, error) {
	records, err := s.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	recordsCh := make(chan *audit.Record, 100)
	errCh := make(chan error, 1)
	go func() {
		defer close(recordsCh)
		defer close(errCh)
		for _, r := range records {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- r:
			}
		}
	}()
	return recordsCh, errCh, nil
}

// Count returns the number of matching records.
func (s *MemoryStorage) Count(_ context.Context, q *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if q.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Delete removes matching records.
func (s *MemoryStorage) Delete(_ context.Context, q *audit.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if q.Matches(r) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// SetUserAction annotates the records for decisionID.
func (s *MemoryStorage) SetUserAction(_ context.Context, decisionID string, action audit.UserAction, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.records {
		if r.DecisionID == decisionID {
			r.UserAction = action
			at := at
			r.UserActionAt = &at
			n++
		}
	}
	if n == 0 {
		return 0, audit.ErrRecordNotFound
	}
	return n, nil
}

// Close drops every record.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*audit.Record)
	return nil
}

// Size returns the number of stored records.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(r *audit.Record) *audit.Record {
	c := *r
	c.Signals = append([]audit.SignalSummary(nil), r.Signals...)
	c.MatchedFingerprintIDs = append([]string(nil), r.MatchedFingerprintIDs...)
	if r.UserActionAt != nil {
		at := *r.UserActionAt
		c.UserActionAt = &at
	}
	return &c
}

func sortRecords(records []*audit.Record, by, order string) {
	less := func(a, b *audit.Record) bool { return a.RecordedAt.Before(b.RecordedAt) }
	switch by {
	case "decided_at":
		less = func(a, b *audit.Record) bool { return a.DecidedAt.Before(b.DecidedAt) }
	case "confidence":
		less = func(a, b *audit.Record) bool { return a.Confidence < b.Confidence }
	case "duration":
		less = func(a, b *audit.Record) bool { return a.Duration < b.Duration }
	}
	desc := order != "asc"
	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

func paginate(records []*audit.Record, limit, offset int) []*audit.Record {
	if offset >= len(records) {
		return []*audit.Record{}
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

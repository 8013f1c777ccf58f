package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/audit/storage"
	"mercator-hq/filegate/pkg/verdict"
)

// blockingStorage holds every Store call until release is closed.
type blockingStorage struct {
	*storage.MemoryStorage
	release chan struct{}
	once    sync.Once
	started chan struct{}
}

func newBlockingStorage() *blockingStorage {
	return &blockingStorage{
		MemoryStorage: storage.NewMemoryStorage(),
		release:       make(chan struct{}),
		started:       make(chan struct{}),
	}
}

func (s *blockingStorage) Store(ctx context.Context, r *audit.Record) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.MemoryStorage.Store(ctx, r)
}

type failingStorage struct{ *storage.MemoryStorage }

func (failingStorage) Store(context.Context, *audit.Record) error { return errors.New("disk full") }

func testRecord(decisionID string) *audit.Record {
	return &audit.Record{
		DecisionID:  decisionID,
		ContentHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		OrgScope:    "acme",
		Outcome:     verdict.OutcomeAllow,
		Reason:      verdict.ReasonNoMatch,
		Source:      audit.SourceComputed,
	}
}

func TestRecorder_AppendAndClose(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := New(store, Config{BufferSize: 10, WriteTimeout: time.Second})

	for _, id := range []string{"d1", "d2", "d3"} {
		if err := r.Append(context.Background(), testRecord(id)); err != nil {
			t.Fatalf("Append(%s) error = %v", id, err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if store.Size() != 3 {
		t.Fatalf("stored %d records, want 3", store.Size())
	}
	got, _ := store.Query(context.Background(), &audit.Query{DecisionID: "d2"})
	if len(got) != 1 || got[0].ID == "" || got[0].RecordedAt.IsZero() {
		t.Errorf("record = %+v, want ID and RecordedAt set", got)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := newBlockingStorage()
	r := New(store, Config{BufferSize: 1, WriteTimeout: time.Second})

	// First record is taken by the writer and blocks in Store.
	if err := r.Append(context.Background(), testRecord("d1")); err != nil {
		t.Fatalf("Append(d1) error = %v", err)
	}
	<-store.started

	// Second fills the buffer, third is dropped.
	if err := r.Append(context.Background(), testRecord("d2")); err != nil {
		t.Fatalf("Append(d2) error = %v", err)
	}
	err := r.Append(context.Background(), testRecord("d3"))
	if !errors.Is(err, audit.ErrBufferFull) {
		t.Fatalf("Append(d3) error = %v, want ErrBufferFull", err)
	}

	close(store.release)
	_ = r.Close()
	if store.Size() != 2 {
		t.Errorf("stored %d records, want 2", store.Size())
	}
}

func TestRecorder_AppendAfterClose(t *testing.T) {
	r := New(storage.NewMemoryStorage(), DefaultConfig())
	_ = r.Close()

	if err := r.Append(context.Background(), testRecord("d1")); !errors.Is(err, audit.ErrRecorderClosed) {
		t.Errorf("Append() after Close error = %v, want ErrRecorderClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRecorder_WriteErrorDoesNotStopWriter(t *testing.T) {
	r := New(failingStorage{storage.NewMemoryStorage()}, Config{BufferSize: 4, WriteTimeout: time.Second})
	for _, id := range []string{"d1", "d2"} {
		if err := r.Append(context.Background(), testRecord(id)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	done := make(chan struct{})
	go func() {
		_ = r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return after write errors")
	}
}

func TestRecorder_ConcurrentAppend(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := New(store, Config{BufferSize: 500, WriteTimeout: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Append(context.Background(), testRecord("d"))
		}()
	}
	wg.Wait()
	_ = r.Close()

	if store.Size() != 50 {
		t.Errorf("stored %d records, want 50", store.Size())
	}
}

package cli

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "fingerprints")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := base
	p.now = func() time.Time { return tick }

	p.Start(4)
	tick = base.Add(time.Second)
	p.Add(2)
	if !strings.Contains(buf.String(), " 50.0% 2/4 fingerprints (2.0/s)") {
		t.Errorf("after Add(2) output = %q", buf.String())
	}

	p.Finish()
	out := buf.String()
	if !strings.Contains(out, "100.0% 4/4") || !strings.HasSuffix(out, "\n") {
		t.Errorf("after Finish output = %q", out)
	}
}

func TestProgressUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "records")
	p.Start(0)
	p.Add(7)
	p.Finish()
	if !strings.Contains(buf.String(), "7 records") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestProgressConcurrent(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "items")
	p.Start(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Add(1)
			}
		}()
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != 1000 {
		t.Errorf("current = %d, want 1000", p.current)
	}
}

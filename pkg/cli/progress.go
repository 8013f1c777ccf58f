package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Progress renders a single-line progress bar for bulk operations. It is
// safe for concurrent use. A zero total renders a running count instead.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	unit    string
	total   int64
	current int64
	started time.Time
	now     func() time.Time
}

// NewProgress creates a progress bar counting unit ("fingerprints").
func NewProgress(w io.Writer, unit string) *Progress {
	return &Progress{w: w, unit: unit, now: time.Now}
}

// Start resets the bar.
func (p *Progress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total, p.current, p.started = total, 0, p.now()
	p.render()
}

// Add advances the bar by n.
func (p *Progress) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	p.render()
}

// Finish renders the final state and ends the line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.w)
}

func (p *Progress) render() {
	elapsed := p.now().Sub(p.started).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%d %s (%.1f/s)", p.current, p.unit, rate)
		return
	}
	frac := float64(p.current) / float64(p.total)
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * barWidth)
	fmt.Fprintf(p.w, "\r[%s%s] %5.1f%% %d/%d %s (%.1f/s)",
		strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled),
		frac*100, p.current, p.total, p.unit, rate)
}

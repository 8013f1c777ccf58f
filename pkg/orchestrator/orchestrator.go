// Package orchestrator runs the exact, fuzzy and semantic lookups for a
// descriptor concurrently and turns their results into signals.
//
// Each lookup runs in its own goroutine under its own timeout, bounded by
// an overall deadline. A lookup that fails or times out yields an absent
// signal; the others are unaffected. An exact match can cancel the
// remaining lookups, which are then recorded as SKIPPED. A SIZE signal is
// derived from the best fuzzy or semantic candidate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/semantic"
	"mercator-hq/filegate/pkg/telemetry/metrics"
	"mercator-hq/filegate/pkg/telemetry/tracing"
	"mercator-hq/filegate/pkg/verdict"
)

// Config controls lookup fan-out.
type Config struct {
	Deadline        time.Duration
	ExactTimeout    time.Duration
	FuzzyTimeout    time.Duration
	SemanticTimeout time.Duration

	// ShortCircuitExact cancels fuzzy and semantic once exact matches.
	ShortCircuitExact bool

	// IgnoreBenignCandidates drops BENIGN fingerprints from fuzzy and
	// semantic candidates. Exact matches are never dropped.
	IgnoreBenignCandidates bool

	// SemanticK is the number of neighbours requested.
	SemanticK int

	// MaxRetries and RetryBaseDelay bound retries of transient errors.
	MaxRetries     uint64
	RetryBaseDelay time.Duration
}

// DefaultConfig returns the default fan-out configuration.
func DefaultConfig() Config {
	return FromMatching(config.Default().Matching)
}

// FromMatching converts the file configuration.
func FromMatching(m config.MatchingConfig) Config {
	return Config{
		Deadline:               m.Deadline,
		ExactTimeout:           m.ExactTimeout,
		FuzzyTimeout:           m.FuzzyTimeout,
		SemanticTimeout:        m.SemanticTimeout,
		ShortCircuitExact:      m.ShortCircuitExact,
		IgnoreBenignCandidates: m.IgnoreBenignCandidates,
		SemanticK:              m.SemanticK,
		MaxRetries:             m.Retry.MaxRetries,
		RetryBaseDelay:         m.Retry.BaseDelay,
	}
}

// Validate checks that every timeout is positive.
func (c Config) Validate() error {
	if c.Deadline <= 0 || c.ExactTimeout <= 0 || c.FuzzyTimeout <= 0 || c.SemanticTimeout <= 0 {
		return errors.New("orchestrator: deadline and lookup timeouts must be positive")
	}
	if c.SemanticK < 1 {
		return errors.New("orchestrator: semantic k must be at least 1")
	}
	return nil
}

// Result is the outcome of one Run.
type Result struct {
	// Signals holds one signal per method in the order EXACT, FUZZY,
	// SEMANTIC, SIZE.
	Signals []verdict.Signal

	// Unreachable is true iff every issued lookup failed.
	Unreachable bool

	// Err is a *verdict.BackendUnreachableError when Unreachable.
	Err error
}

// Signal returns the signal for method m.
func (r Result) Signal(m verdict.Method) (verdict.Signal, bool) {
	for _, s := range r.Signals {
		if s.Method == m {
			return s, true
		}
	}
	return verdict.Signal{}, false
}

// Orchestrator issues lookups against a fingerprint store and an optional
// semantic index. It is safe for concurrent use.
type Orchestrator struct {
	store   verdict.FingerprintStore
	index   verdict.SemanticIndex
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// New creates an Orchestrator. index may be nil, in which case semantic
// lookups are never issued.
func New(store verdict.FingerprintStore, index verdict.SemanticIndex, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("orchestrator: fingerprint store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		store:  store,
		index:  index,
		cfg:    cfg,
		logger: slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// lookup is the per-method outcome collected from a goroutine.
type lookup struct {
	signal verdict.Signal
	best   *verdict.Candidate
	err    error
	issued bool
}

// Run issues every applicable lookup for d and waits for all of them, or
// the overall deadline, whichever comes first. It returns at the deadline
// even when a lookup ignores its context.
func (o *Orchestrator) Run(ctx context.Context, d verdict.Descriptor) Result {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	// Fuzzy and semantic run under shortCtx so an exact match can stop them.
	shortCtx, shortCancel := context.WithCancel(ctx)
	defer shortCancel()

	exact := lookup{signal: verdict.Signal{Method: verdict.MethodExact}}
	fuzzy := notRequested(verdict.MethodFuzzy)
	sem := notRequested(verdict.MethodSemantic)

	// Lookups report on a buffered channel so one that ignores its context
	// can finish after Run has returned without blocking.
	results := make(chan methodLookup, 3)
	slots := make(map[verdict.Method]*lookup, 3)
	start := time.Now()

	launch := func(lctx context.Context, m verdict.Method, timeout time.Duration, dst *lookup, fn func(context.Context) (*verdict.Candidate, error)) {
		slots[m] = dst
		go func() {
			l := o.issue(lctx, m, timeout, fn)
			if m == verdict.MethodExact && o.cfg.ShortCircuitExact && l.best != nil {
				shortCancel()
			}
			results <- methodLookup{method: m, lookup: l}
		}()
	}

	launch(ctx, verdict.MethodExact, o.cfg.ExactTimeout, &exact, func(ctx context.Context) (*verdict.Candidate, error) {
		return o.lookupExact(ctx, d)
	})
	if d.HasFuzzySignature() {
		launch(shortCtx, verdict.MethodFuzzy, o.cfg.FuzzyTimeout, &fuzzy, func(ctx context.Context) (*verdict.Candidate, error) {
			return o.lookupFuzzy(ctx, d)
		})
	}
	if d.HasEmbedding() && o.index != nil {
		launch(shortCtx, verdict.MethodSemantic, o.cfg.SemanticTimeout, &sem, func(ctx context.Context) (*verdict.Candidate, error) {
			return o.lookupSemantic(ctx, d)
		})
	}

	o.collect(ctx, results, slots, start)

	shortCircuited := o.cfg.ShortCircuitExact && exact.best != nil
	if shortCircuited {
		for _, l := range []*lookup{&fuzzy, &sem} {
			if l.issued && !l.signal.Present() {
				l.signal.Status = verdict.StatusSkipped
				l.signal.Error = ""
				l.err = nil
			}
		}
	}

	size := o.deriveSize(d, fuzzy, sem, shortCircuited)

	res := Result{Signals: []verdict.Signal{exact.signal, fuzzy.signal, sem.signal, size}}

	var causes []error
	issued, failed := 0, 0
	for _, l := range []lookup{exact, fuzzy, sem} {
		if !l.issued || l.signal.Status == verdict.StatusSkipped {
			continue
		}
		issued++
		if l.err != nil {
			failed++
			causes = append(causes, l.err)
		}
	}
	if issued > 0 && failed == issued {
		res.Unreachable = true
		res.Err = &verdict.BackendUnreachableError{Causes: causes}
		o.logger.WarnContext(ctx, "every lookup failed", "error", res.Err)
	}

	return res
}

type methodLookup struct {
	method verdict.Method
	lookup lookup
}

// collect stores each reported lookup in its slot until every slot is
// filled or ctx ends. Lookups still running at that point are recorded as
// timed out and their late reports are dropped.
func (o *Orchestrator) collect(ctx context.Context, results <-chan methodLookup, slots map[verdict.Method]*lookup, start time.Time) {
	for len(slots) > 0 {
		select {
		case r := <-results:
			*slots[r.method] = r.lookup
			delete(slots, r.method)
		case <-ctx.Done():
		drain:
			for {
				select {
				case r := <-results:
					*slots[r.method] = r.lookup
					delete(slots, r.method)
				default:
					break drain
				}
			}
			for m, dst := range slots {
				err := &verdict.SignalUnavailableError{Method: m, Timeout: true, Cause: ctx.Err()}
				*dst = lookup{
					issued: true,
					err:    err,
					signal: verdict.Signal{
						Method:  m,
						Status:  verdict.StatusTimeout,
						Latency: time.Since(start),
						Error:   err.Error(),
					},
				}
				o.logger.WarnContext(ctx, "lookup abandoned at deadline", "method", m.String())
			}
			return
		}
	}
}

func notRequested(m verdict.Method) lookup {
	return lookup{signal: verdict.Signal{Method: m, Status: verdict.StatusNotRequested}}
}

// issue runs fn under a per-method timeout with retries and converts the
// outcome into a signal.
func (o *Orchestrator) issue(ctx context.Context, m verdict.Method, timeout time.Duration, fn func(context.Context) (*verdict.Candidate, error)) lookup {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "filegate.lookup."+strings.ToLower(m.String()),
		trace.WithAttributes(tracing.AttrMethod.String(m.String())))
	defer span.End()

	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var best *verdict.Candidate
	err := o.withRetry(lctx, func(ctx context.Context) error {
		c, err := fn(ctx)
		if err != nil {
			return err
		}
		best = c
		return nil
	})

	l := lookup{
		issued: true,
		signal: verdict.Signal{Method: m, Latency: time.Since(start)},
	}

	switch {
	case err == nil:
		l.signal.Status = verdict.StatusOK
		if best != nil {
			l.best = best
			l.signal.Score = best.Score
			l.signal.Match = best.Fingerprint.Ref()
		}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(lctx.Err(), context.DeadlineExceeded):
		l.signal.Status = verdict.StatusTimeout
		l.err = &verdict.SignalUnavailableError{Method: m, Timeout: true, Cause: err}
	default:
		l.signal.Status = verdict.StatusFailed
		l.err = &verdict.SignalUnavailableError{Method: m, Cause: err}
	}
	if l.err != nil {
		l.signal.Error = l.err.Error()
		o.logger.DebugContext(ctx, "lookup unavailable", "method", m.String(), "error", l.err)
	}

	span.SetAttributes(
		tracing.AttrSignalStatus.String(l.signal.Status.String()),
		tracing.AttrSignalScore.Float64(l.signal.Score),
	)
	tracing.SetStatus(span, l.err)
	o.metrics.RecordLookup(m.String(), l.signal.Status.String(), l.signal.Latency)

	return l
}

func (o *Orchestrator) withRetry(ctx context.Context, fn func(context.Context) error) error {
	base := o.cfg.RetryBaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.WithMaxRetries(o.cfg.MaxRetries, retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && ctx.Err() == nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// transient reports whether err is worth retrying. Context errors and
// errors that report Temporary() == false are not.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

func (o *Orchestrator) lookupExact(ctx context.Context, d verdict.Descriptor) (*verdict.Candidate, error) {
	fp, err := o.store.LookupExact(ctx, d.ContentHash(), d.OrgScope())
	if err != nil || fp == nil {
		return nil, err
	}
	return &verdict.Candidate{Fingerprint: *fp, Score: 1}, nil
}

func (o *Orchestrator) lookupFuzzy(ctx context.Context, d verdict.Descriptor) (*verdict.Candidate, error) {
	candidates, err := o.store.LookupFuzzy(ctx, d.FuzzySignature(), d.OrgScope())
	if err != nil {
		return nil, err
	}
	return o.best(candidates), nil
}

func (o *Orchestrator) lookupSemantic(ctx context.Context, d verdict.Descriptor) (*verdict.Candidate, error) {
	neighbors, err := o.index.QueryNearest(ctx, d.Embedding(), o.cfg.SemanticK, d.OrgScope())
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.FingerprintID)
	}
	fps, err := o.store.Fetch(ctx, ids, d.OrgScope())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve neighbours: %w", err)
	}
	byID := make(map[string]verdict.Fingerprint, len(fps))
	for _, fp := range fps {
		byID[fp.ID] = fp
	}

	candidates := make([]verdict.Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		fp, ok := byID[n.FingerprintID]
		if !ok {
			// Index entry without a stored fingerprint.
			continue
		}
		candidates = append(candidates, verdict.Candidate{
			Fingerprint: fp,
			Score:       semantic.SimilarityFromDistance(n.Distance),
		})
	}
	return o.best(candidates), nil
}

// best returns the top candidate by score, first-seen and ID, after
// dropping BENIGN candidates when configured.
func (o *Orchestrator) best(candidates []verdict.Candidate) *verdict.Candidate {
	var top *verdict.Candidate
	for i := range candidates {
		c := &candidates[i]
		if o.cfg.IgnoreBenignCandidates && c.Fingerprint.Classification == verdict.ClassBenign {
			continue
		}
		if top == nil || verdict.Better(c.Score, c.Fingerprint.Ref(), top.Score, top.Fingerprint.Ref()) {
			top = c
		}
	}
	if top == nil {
		return nil
	}
	out := *top
	return &out
}

// deriveSize compares the descriptor size with the overall best fuzzy or
// semantic candidate.
func (o *Orchestrator) deriveSize(d verdict.Descriptor, fuzzy, sem lookup, shortCircuited bool) verdict.Signal {
	s := verdict.Signal{Method: verdict.MethodSize}

	if !fuzzy.signal.Present() && !sem.signal.Present() {
		switch {
		case shortCircuited:
			s.Status = verdict.StatusSkipped
		case !fuzzy.issued && !sem.issued:
			s.Status = verdict.StatusNotRequested
		default:
			s.Status = verdict.StatusSkipped
		}
		return s
	}

	s.Status = verdict.StatusOK
	best := fuzzy.best
	if sem.best != nil && (best == nil || verdict.Better(sem.best.Score, sem.best.Fingerprint.Ref(), best.Score, best.Fingerprint.Ref())) {
		best = sem.best
	}
	if best == nil {
		return s
	}
	s.Score = SizeSimilarity(d.SizeBytes(), best.Fingerprint.SizeBytes)
	s.Match = best.Fingerprint.Ref()
	return s
}

// SizeSimilarity is min(a, b) / max(a, b); two empty files are identical.
func SizeSimilarity(a, b int64) float64 {
	if a < 0 || b < 0 {
		return 0
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 1
	}
	return float64(lo) / float64(hi)
}

package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/cache"
	"mercator-hq/filegate/pkg/orchestrator"
	"mercator-hq/filegate/pkg/telemetry/logging"
	"mercator-hq/filegate/pkg/telemetry/metrics"
	"mercator-hq/filegate/pkg/telemetry/tracing"
	"mercator-hq/filegate/pkg/verdict"
)

// Matcher runs the similarity lookups for a descriptor.
// *orchestrator.Orchestrator implements it.
type Matcher interface {
	Run(ctx context.Context, d verdict.Descriptor) orchestrator.Result
}

// Gate evaluates descriptors. It is safe for concurrent use.
type Gate struct {
	matcher Matcher
	cache   *cache.Cache
	active  atomic.Pointer[engines]

	sink            audit.Sink
	recordCacheHits bool

	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	now     func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithAudit sends one record per computed decision to sink. With
// cacheHits set, decisions served from cache are recorded too.
func WithAudit(sink audit.Sink, cacheHits bool) Option {
	return func(g *Gate) {
		g.sink = sink
		g.recordCacheHits = cacheHits
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Gate) { g.logger = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option { return func(g *Gate) { g.metrics = m } }

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option { return func(g *Gate) { g.tracer = t } }

// New creates a Gate running policy p.
func New(m Matcher, c *cache.Cache, p Policy, opts ...Option) (*Gate, error) {
	if m == nil {
		return nil, errors.New("gate: matcher is required")
	}
	if c == nil {
		return nil, errors.New("gate: cache is required")
	}
	e, err := build(p)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	g := &Gate{
		matcher: m,
		cache:   c,
		logger:  slog.Default().With("component", "gate"),
		now:     time.Now,
	}
	g.active.Store(e)
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Policy returns the active policy.
func (g *Gate) Policy() Policy { return g.active.Load().policy }

// SetPolicy validates p, makes it active and purges the cache. A request
// computing under the previous policy is recomputed under p before its
// decision is cached or returned.
func (g *Gate) SetPolicy(ctx context.Context, p Policy) error {
	e, err := build(p)
	if err != nil {
		return err
	}
	g.active.Store(e)

	n, err := g.cache.Purge(ctx)
	if err != nil {
		return fmt.Errorf("purge cache after policy change: %w", err)
	}
	g.logger.InfoContext(ctx, "policy updated",
		"policy_version", p.Decision.PolicyVersion,
		"warn_threshold", p.Decision.Thresholds.Warn,
		"block_threshold", p.Decision.Thresholds.Block,
		"purged", n,
	)
	return nil
}

// Evaluate returns the decision for req. The only errors are an
// *verdict.InvalidDescriptorError, the caller's context ending, or a cache
// store failure; backend failures produce a fail-closed decision instead.
func (g *Gate) Evaluate(ctx context.Context, req verdict.Request) (*Response, error) {
	start := g.now()

	desc, err := verdict.NewDescriptor(req)
	if err != nil {
		return nil, err
	}
	key := desc.Key()

	ctx = logging.WithRequestID(ctx, req.RequestID)
	ctx = logging.WithOrgScope(ctx, key.OrgScope)
	ctx = logging.WithContentHash(ctx, key.ContentHash)

	ctx, span := g.tracer.Start(ctx, "filegate.evaluate")
	defer span.End()
	span.SetAttributes(
		tracing.AttrRequestID.String(req.RequestID),
		tracing.AttrOrgScope.String(key.OrgScope),
		tracing.AttrContentHash.String(key.ContentHash),
	)

	d, src, err := g.cache.Resolve(ctx, key, func(ctx context.Context) (verdict.Decision, error) {
		return g.compute(ctx, desc, req.RequestID, start)
	})
	if err != nil {
		tracing.SetStatus(span, err)
		g.logger.ErrorContext(ctx, "evaluation failed", "error", err)
		return nil, err
	}

	g.metrics.RecordDecision(d.Outcome.String(), d.Reason.String(), string(src), d.Confidence)
	span.SetAttributes(
		tracing.AttrOutcome.String(d.Outcome.String()),
		tracing.AttrReason.String(d.Reason.String()),
		tracing.AttrConfidence.Float64(d.Confidence),
		tracing.AttrCached.Bool(src != cache.SourceComputed),
		tracing.AttrPolicyVersion.String(d.PolicyVersion),
	)
	tracing.SetStatus(span, nil)

	if src != cache.SourceComputed && g.recordCacheHits {
		g.record(ctx, d, desc, req.RequestID, audit.SourceCache, g.now().Sub(start))
	}

	e := g.active.Load()
	resp := newResponse(d, src, req.RequestID, Explain(d, e.policy.Decision.Thresholds))

	g.logger.DebugContext(ctx, "decision served",
		"decision_id", d.ID,
		"outcome", d.Outcome.String(),
		"reason", d.Reason.String(),
		"confidence", d.Confidence,
		"source", string(src),
		"duration", g.now().Sub(start),
	)
	return resp, nil
}

// compute runs once per cache fill. ctx is detached from the caller.
func (g *Gate) compute(ctx context.Context, desc verdict.Descriptor, requestID string, start time.Time) (verdict.Decision, error) {
	res := g.matcher.Run(ctx, desc)
	e := g.active.Load()

	var d verdict.Decision
	if res.Unreachable {
		if entry, ok := g.cache.Lookup(ctx, desc.Key()); ok {
			g.logger.WarnContext(ctx, "lookups failed, serving cached decision",
				"decision_id", entry.Decision.ID,
				"error", res.Err,
			)
			return entry.Decision, nil
		}
		d = e.decider.Unreachable(res.Signals)
		g.logger.ErrorContext(ctx, "lookups failed, failing closed",
			"decision_id", d.ID,
			"error", res.Err,
		)
	} else {
		d = e.decider.Decide(e.scorer.Score(res.Signals), res.Signals)
	}

	g.record(ctx, d, desc, requestID, audit.SourceComputed, g.now().Sub(start))
	return d, nil
}

func (g *Gate) record(ctx context.Context, d verdict.Decision, desc verdict.Descriptor, requestID, source string, took time.Duration) {
	if g.sink == nil {
		return
	}
	r := audit.NewRecord(d, desc)
	r.RequestID = requestID
	r.Source = source
	r.Duration = took
	if err := g.sink.Append(ctx, r); err != nil {
		g.logger.WarnContext(ctx, "audit record not accepted",
			"decision_id", d.ID,
			"error", err,
		)
	}
}

// Ping checks the cache store.
func (g *Gate) Ping(ctx context.Context) error {
	return g.cache.Ping(ctx)
}

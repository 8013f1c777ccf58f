package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/telemetry/metrics"
	"mercator-hq/filegate/pkg/verdict"
)

// ErrInvalidOverride is wrapped by every validation failure.
var ErrInvalidOverride = errors.New("invalid override")

// Override is an analyst's classification of a content hash.
type Override struct {
	ContentHash string `json:"content_hash"`

	// OrgScope limits the override to one org. Empty applies it to all.
	OrgScope string `json:"org_scope,omitempty"`

	Classification verdict.Classification `json:"classification"`
	Actor          string                 `json:"actor,omitempty"`
	Note           string                 `json:"note,omitempty"`

	// DecisionID and UserAction annotate the audit record of the decision
	// the override responds to.
	DecisionID string           `json:"decision_id,omitempty"`
	UserAction audit.UserAction `json:"user_action,omitempty"`
}

// Normalize validates o and lowercases its hash.
func (o *Override) Normalize() error {
	hash, err := verdict.NormalizeHash(o.ContentHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	o.ContentHash = hash

	if o.Classification == 0 {
		return fmt.Errorf("%w: classification is required", ErrInvalidOverride)
	}
	if o.UserAction != "" {
		action, err := audit.ParseUserAction(string(o.UserAction))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
		}
		o.UserAction = action
		if o.DecisionID == "" {
			return fmt.Errorf("%w: user_action requires decision_id", ErrInvalidOverride)
		}
	}
	return nil
}

// Reclassifier updates fingerprint classifications.
type Reclassifier interface {
	Reclassify(ctx context.Context, contentHash, orgScope string, c verdict.Classification) (int, error)
}

// Invalidator drops cached decisions.
type Invalidator interface {
	Invalidate(ctx context.Context, key verdict.Key) error
	InvalidateHash(ctx context.Context, hash string) (int, error)
}

// ActionRecorder annotates audit records.
type ActionRecorder interface {
	SetUserAction(ctx context.Context, decisionID string, action audit.UserAction, at time.Time) (int64, error)
}

// Result reports what an override changed.
type Result struct {
	Reclassified int
	Invalidated  int
	Annotated    int64
}

// Applier applies overrides. It is safe for concurrent use.
type Applier struct {
	store   Reclassifier
	cache   Invalidator
	audit   ActionRecorder
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// Option configures an Applier.
type Option func(*Applier)

// WithAudit enables user-action annotation.
func WithAudit(a ActionRecorder) Option { return func(ap *Applier) { ap.audit = a } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(ap *Applier) { ap.logger = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option { return func(ap *Applier) { ap.metrics = m } }

// NewApplier creates an Applier. cache may be nil when no decision cache
// is shared with this process.
func NewApplier(store Reclassifier, cache Invalidator, opts ...Option) (*Applier, error) {
	if store == nil {
		return nil, errors.New("feedback: fingerprint store is required")
	}
	a := &Applier{
		store:  store,
		cache:  cache,
		logger: slog.Default().With("component", "feedback"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Apply reclassifies, invalidates and annotates. The cache is invalidated
// even when no fingerprint matched, since a NO_MATCH decision for the
// hash may be cached.
func (a *Applier) Apply(ctx context.Context, o Override) (Result, error) {
	var res Result
	if err := o.Normalize(); err != nil {
		a.metrics.RecordFeedback("invalid")
		return res, err
	}

	n, err := a.store.Reclassify(ctx, o.ContentHash, o.OrgScope, o.Classification)
	if err != nil {
		a.metrics.RecordFeedback("error")
		return res, fmt.Errorf("reclassify %s: %w", o.ContentHash, err)
	}
	res.Reclassified = n

	if a.cache != nil {
		if o.OrgScope != "" {
			if err := a.cache.Invalidate(ctx, verdict.Key{ContentHash: o.ContentHash, OrgScope: o.OrgScope}); err != nil {
				a.metrics.RecordFeedback("error")
				return res, err
			}
			res.Invalidated = 1
		} else {
			if res.Invalidated, err = a.cache.InvalidateHash(ctx, o.ContentHash); err != nil {
				a.metrics.RecordFeedback("error")
				return res, err
			}
		}
	}

	if o.UserAction != "" && a.audit != nil {
		res.Annotated, err = a.audit.SetUserAction(ctx, o.DecisionID, o.UserAction, a.now().UTC())
		if err != nil && !errors.Is(err, audit.ErrRecordNotFound) {
			a.metrics.RecordFeedback("error")
			return res, fmt.Errorf("annotate decision %s: %w", o.DecisionID, err)
		}
	}

	if n == 0 {
		a.logger.WarnContext(ctx, "override matched no fingerprints",
			"content_hash", o.ContentHash,
			"org_scope", o.OrgScope,
		)
	}
	a.metrics.RecordFeedback("applied")
	a.logger.InfoContext(ctx, "override applied",
		"content_hash", o.ContentHash,
		"org_scope", o.OrgScope,
		"classification", o.Classification.String(),
		"actor", o.Actor,
		"reclassified", res.Reclassified,
		"invalidated", res.Invalidated,
		"annotated", res.Annotated,
	)
	return res, nil
}

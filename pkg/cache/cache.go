package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/telemetry/metrics"
	"mercator-hq/filegate/pkg/verdict"
)

// Config controls entry lifetimes and cross-instance claims.
type Config struct {
	TTL time.Duration

	// FailClosedTTL applies to BACKEND_UNREACHABLE decisions. Zero means
	// they are not cached.
	FailClosedTTL time.Duration

	ClaimTTL          time.Duration
	ClaimPollInterval time.Duration
}

// FromConfig converts the file configuration.
func FromConfig(c config.CacheConfig) Config {
	return Config{
		TTL:               c.TTL,
		FailClosedTTL:     c.FailClosedTTL,
		ClaimTTL:          c.ClaimTTL,
		ClaimPollInterval: c.ClaimPollInterval,
	}
}

// DefaultConfig returns the default lifetimes.
func DefaultConfig() Config {
	return FromConfig(config.Default().Cache)
}

// Validate checks the lifetimes.
func (c Config) Validate() error {
	switch {
	case c.TTL <= 0:
		return errors.New("cache: ttl must be positive")
	case c.FailClosedTTL < 0:
		return errors.New("cache: fail-closed ttl must not be negative")
	case c.ClaimTTL <= 0 || c.ClaimPollInterval <= 0:
		return errors.New("cache: claim ttl and poll interval must be positive")
	}
	return nil
}

// ComputeFunc produces a decision on a cache miss.
type ComputeFunc func(ctx context.Context) (verdict.Decision, error)

// Cache is a decision cache with per-key coalescing. It is safe for
// concurrent use.
type Cache struct {
	store   Store
	cfg     Config
	group   singleflight.Group
	gens    generations
	owner   string
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option { return func(c *Cache) { c.metrics = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// New creates a Cache over store.
func New(store Store, cfg Config, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("cache: store is required")
	}
	c, err := newCache(cfg, opts)
	if err != nil {
		return nil, err
	}
	c.store = store
	return c, nil
}

// Open creates a Cache with the backing store named in cfg.
func Open(ctx context.Context, cfg config.CacheConfig, opts ...Option) (*Cache, error) {
	c, err := newCache(FromConfig(cfg), opts)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "", "memory":
		store, err := NewMemoryStore(cfg.MaxEntries, func() { c.metrics.RecordCacheEviction(1) })
		if err != nil {
			return nil, err
		}
		c.store = store
	case "redis":
		store, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		c.store = store
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}

	c.logger.Info("decision cache opened", "backend", cfg.Backend, "ttl", cfg.TTL)
	return c, nil
}

func newCache(cfg Config, opts []Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		cfg:    cfg,
		owner:  uuid.NewString(),
		logger: slog.Default().With("component", "cache"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup returns the valid entry for key. Expired, unreadable and failed
// reads are all misses.
func (c *Cache) Lookup(ctx context.Context, key verdict.Key) (*Entry, bool) {
	e, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, verdict.ErrCacheCorrupt) {
			c.discard(ctx, key, err)
		} else {
			c.logger.WarnContext(ctx, "cache read failed", "key", key.String(), "error", err)
		}
		return nil, false
	}
	if e == nil {
		return nil, false
	}
	if err := e.check(key); err != nil {
		c.discard(ctx, key, verdict.NewCacheCorruptError(key, err))
		return nil, false
	}
	if !e.Valid(c.now()) {
		return nil, false
	}
	return e, true
}

func (c *Cache) discard(ctx context.Context, key verdict.Key, err error) {
	c.metrics.RecordCacheCorrupt()
	c.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", key.String(), "error", err)
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "failed to delete corrupt cache entry", "key", key.String(), "error", err)
	}
}

type filled struct {
	decision verdict.Decision
	source   Source
}

// Resolve returns the cached decision for key or computes it. Concurrent
// callers for the same key share one computation, which runs detached
// from any caller's cancellation. A caller whose ctx ends first gets
// ctx.Err() while the computation continues and fills the cache.
func (c *Cache) Resolve(ctx context.Context, key verdict.Key, compute ComputeFunc) (verdict.Decision, Source, error) {
	if e, ok := c.Lookup(ctx, key); ok {
		c.metrics.RecordCacheHit()
		return e.Decision.Clone(), SourceCache, nil
	}
	c.metrics.RecordCacheMiss()

	// Only the leader's closure runs; the channel receive orders the write.
	leader := false
	ch := c.group.DoChan(key.String(), func() (any, error) {
		leader = true
		return c.fill(context.WithoutCancel(ctx), key, compute)
	})

	select {
	case <-ctx.Done():
		return verdict.Decision{}, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return verdict.Decision{}, "", res.Err
		}
		f := res.Val.(filled)
		if !leader {
			c.metrics.RecordCacheCoalesced()
			return f.decision.Clone(), SourceCoalesced, nil
		}
		return f.decision.Clone(), f.source, nil
	}
}

func (c *Cache) fill(ctx context.Context, key verdict.Key, compute ComputeFunc) (filled, error) {
	if e, ok := c.Lookup(ctx, key); ok {
		return filled{decision: e.Decision, source: SourceCache}, nil
	}

	owned, e := c.acquire(ctx, key)
	if e != nil {
		return filled{decision: e.Decision, source: SourceCache}, nil
	}
	if owned {
		defer func() {
			if err := c.store.Release(ctx, key, c.owner); err != nil {
				c.logger.WarnContext(ctx, "failed to release cache claim", "key", key.String(), "error", err)
			}
		}()
	}

	for attempt := 1; ; attempt++ {
		gen := c.gens.of(key)
		d, err := compute(ctx)
		if err != nil {
			return filled{}, err
		}
		if c.commit(ctx, key, d, gen) {
			return filled{decision: d, source: SourceComputed}, nil
		}
		if attempt == maxRefills {
			c.logger.WarnContext(ctx, "key kept being invalidated, serving uncached decision",
				"key", key.String(), "attempts", attempt)
			return filled{decision: d, source: SourceComputed}, nil
		}
		c.logger.DebugContext(ctx, "key invalidated during computation, recomputing", "key", key.String())
	}
}

// maxRefills bounds how often fill recomputes a key invalidated while it
// was computing.
const maxRefills = 3

// commit writes d for key unless key was invalidated since gen was taken.
// A decision that is already the valid entry for key is not written again,
// so its original expiry stands. It reports whether the decision is
// current.
func (c *Cache) commit(ctx context.Context, key verdict.Key, d verdict.Decision, gen generation) bool {
	if c.gens.of(key) != gen {
		return false
	}
	if e, ok := c.Lookup(ctx, key); ok && e.Decision.ID == d.ID {
		return true
	}
	c.put(ctx, key, d)

	// Invalidations bump the generation before deleting. One that bumped
	// after this check deletes after the write above.
	if c.gens.of(key) != gen {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.WarnContext(ctx, "failed to drop invalidated cache entry", "key", key.String(), "error", err)
		}
		return false
	}
	return true
}

// acquire claims key for this instance. While another instance holds the
// claim it polls for that instance's entry, returning it if it appears.
// When the claim outlives ClaimTTL, or the store cannot take claims,
// acquire gives up and the caller computes unclaimed.
func (c *Cache) acquire(ctx context.Context, key verdict.Key) (bool, *Entry) {
	ok, err := c.store.Claim(ctx, key, c.owner, c.cfg.ClaimTTL)
	if err != nil {
		c.logger.WarnContext(ctx, "cache claim failed, computing unclaimed", "key", key.String(), "error", err)
		return false, nil
	}
	if ok {
		return true, nil
	}

	c.logger.DebugContext(ctx, "waiting on another instance", "key", key.String())
	ticker := time.NewTicker(c.cfg.ClaimPollInterval)
	defer ticker.Stop()
	expired := time.NewTimer(c.cfg.ClaimTTL)
	defer expired.Stop()

	for {
		select {
		case <-expired.C:
			c.logger.WarnContext(ctx, "cache claim not released in time, computing", "key", key.String())
			return false, nil
		case <-ticker.C:
			if e, hit := c.Lookup(ctx, key); hit {
				return false, e
			}
			if ok, err := c.store.Claim(ctx, key, c.owner, c.cfg.ClaimTTL); err == nil && ok {
				return true, nil
			}
		}
	}
}

// TTL returns the lifetime an entry for d would get.
func (c *Cache) TTL(d verdict.Decision) time.Duration {
	if d.Reason == verdict.ReasonBackendUnreachable {
		return c.cfg.FailClosedTTL
	}
	return c.cfg.TTL
}

func (c *Cache) put(ctx context.Context, key verdict.Key, d verdict.Decision) {
	ttl := c.TTL(d)
	if ttl <= 0 {
		return
	}
	now := c.now()
	e := &Entry{
		Key:       key,
		Decision:  d.Clone(),
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.store.Set(ctx, e); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", key.String(), "error", err)
		return
	}
	c.updateSize()
}

// Invalidate removes the entry for key.
func (c *Cache) Invalidate(ctx context.Context, key verdict.Key) error {
	c.gens.bumpHash(key.ContentHash)
	c.group.Forget(key.String())
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	c.updateSize()
	return nil
}

// InvalidateHash removes the entries for hash in every org.
func (c *Cache) InvalidateHash(ctx context.Context, hash string) (int, error) {
	c.gens.bumpHash(hash)
	n, err := c.store.DeleteHash(ctx, hash)
	if err != nil {
		return n, fmt.Errorf("invalidate hash %s: %w", hash, err)
	}
	c.updateSize()
	return n, nil
}

// Purge removes every entry.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	c.gens.bumpAll()
	n, err := c.store.Purge(ctx)
	if err != nil {
		return n, fmt.Errorf("purge cache: %w", err)
	}
	c.updateSize()
	c.logger.InfoContext(ctx, "decision cache purged", "entries", n)
	return n, nil
}

// Ping checks the backing store.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Close closes the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) updateSize() {
	if s, ok := c.store.(sizer); ok {
		c.metrics.UpdateCacheSize(s.Len())
	}
}

// generation identifies the invalidations a key has seen. Computations
// that started under an older generation must not fill the cache.
type generation struct {
	epoch uint64
	hash  uint64
}

type generations struct {
	mu     sync.Mutex
	epoch  uint64
	hashes map[string]uint64
}

func (g *generations) of(key verdict.Key) generation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return generation{epoch: g.epoch, hash: g.hashes[key.ContentHash]}
}

func (g *generations) bumpHash(hash string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hashes == nil {
		g.hashes = make(map[string]uint64)
	}
	g.hashes[hash]++
}

// bumpAll invalidates every key. Per-hash counters restart, which is safe
// because the epoch alone now differs from every earlier generation.
func (g *generations) bumpAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	clear(g.hashes)
}

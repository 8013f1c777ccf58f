package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/audit/recorder"
	auditstorage "mercator-hq/filegate/pkg/audit/storage"
	"mercator-hq/filegate/pkg/cache"
	"mercator-hq/filegate/pkg/cli"
	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/feedback"
	"mercator-hq/filegate/pkg/fingerprint/storage"
	"mercator-hq/filegate/pkg/gate"
	"mercator-hq/filegate/pkg/orchestrator"
	"mercator-hq/filegate/pkg/semantic"
	"mercator-hq/filegate/pkg/telemetry/logging"
	"mercator-hq/filegate/pkg/telemetry/metrics"
	"mercator-hq/filegate/pkg/telemetry/tracing"
	"mercator-hq/filegate/pkg/verdict"
)

// loadConfig reads --config, applies FILEGATE_* overrides and --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, cli.NewConfigError("", err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the slog default. Logs go
// to w so command output on stdout stays parseable.
func setupLogging(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, w))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)
	return logger, nil
}

// app holds the components shared by the commands. Fields a command does
// not need stay nil.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer

	store    storage.Store
	index    *semantic.MemoryIndex
	cache    *cache.Cache
	audit    audit.Storage
	recorder *recorder.Recorder
	gate     *gate.Gate

	closers []func() error
}

func (a *app) onClose(fn func() error) { a.closers = append(a.closers, fn) }

// Close releases components in reverse order of creation. Pending audit
// records are flushed before their storage closes.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	a := &app{cfg: cfg, logger: logger}
	if cfg.Telemetry.Metrics.Enabled {
		a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}
	return a
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Store.Backend == "" || a.cfg.Store.Backend == "sqlite" {
		if err := ensureDir(a.cfg.Store.SQLite.Path); err != nil {
			return err
		}
	}
	s, err := storage.Open(ctx, a.cfg.Store, storage.MatchOptionsFromConfig(a.cfg.Matching))
	if err != nil {
		return fmt.Errorf("open fingerprint store: %w", err)
	}
	a.store = s
	a.onClose(s.Close)
	return nil
}

func (a *app) openCache(ctx context.Context) error {
	c, err := cache.Open(ctx, a.cfg.Cache, cache.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("open decision cache: %w", err)
	}
	a.cache = c
	a.onClose(c.Close)
	return nil
}

// openAudit opens audit storage when auditing is enabled.
func (a *app) openAudit() error {
	if !a.cfg.Audit.Enabled {
		return nil
	}
	if a.cfg.Audit.Backend == "" || a.cfg.Audit.Backend == "sqlite" {
		if err := ensureDir(a.cfg.Audit.SQLite.Path); err != nil {
			return err
		}
	}
	s, err := auditstorage.Open(a.cfg.Audit)
	if err != nil {
		return fmt.Errorf("open audit storage: %w", err)
	}
	a.audit = s
	a.onClose(s.Close)
	return nil
}

// openGate builds the full request path on top of openStore, openCache and
// openAudit.
func (a *app) openGate(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}
	if err := a.openCache(ctx); err != nil {
		return err
	}
	if err := a.openAudit(); err != nil {
		return err
	}

	tracer, err := tracing.New(&a.cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tracer
	a.onClose(func() error { return tracer.Shutdown(context.Background()) })

	var index verdict.SemanticIndex
	if a.cfg.Semantic.Enabled {
		a.index = semantic.NewMemoryIndex()
		if _, err := semantic.Hydrate(ctx, a.index, a.store); err != nil {
			return err
		}
		index = a.index
	}

	orch, err := orchestrator.New(a.store, index, orchestrator.FromMatching(a.cfg.Matching),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithTracer(a.tracer),
	)
	if err != nil {
		return err
	}

	policy, err := gate.PolicyFromConfig(a.cfg)
	if err != nil {
		return cli.NewConfigError("decision", err.Error())
	}

	opts := []gate.Option{gate.WithMetrics(a.metrics), gate.WithTracer(a.tracer)}
	if a.audit != nil {
		a.recorder = recorder.New(a.audit, recorder.FromConfig(a.cfg.Audit.Recorder), recorder.WithMetrics(a.metrics))
		a.onClose(a.recorder.Close)
		opts = append(opts, gate.WithAudit(a.recorder, a.cfg.Audit.RecordCacheHits))
	}

	g, err := gate.New(orch, a.cache, policy, opts...)
	if err != nil {
		return err
	}
	a.gate = g
	return nil
}

// applier builds an override applier over whatever is open.
func (a *app) applier() (*feedback.Applier, error) {
	opts := []feedback.Option{feedback.WithMetrics(a.metrics)}
	if a.audit != nil {
		opts = append(opts, feedback.WithAudit(a.audit))
	}
	var inv feedback.Invalidator
	if a.cache != nil {
		inv = a.cache
	}
	return feedback.NewApplier(a.store, inv, opts...)
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

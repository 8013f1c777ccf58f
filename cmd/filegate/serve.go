package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/filegate/pkg/audit/retention"
	"mercator-hq/filegate/pkg/cli"
	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/feedback"
	"mercator-hq/filegate/pkg/gate"
	"mercator-hq/filegate/pkg/telemetry/health"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decision service",
	Long: `Run filegate as a long-lived service.

serve opens the fingerprint store, decision cache and audit trail, then
exposes operational endpoints (metrics, liveness, readiness). When a config
file is given it is watched and policy changes are applied without a
restart. The Kafka override consumer and the audit retention scheduler run
when enabled.

Examples:
  # Start with defaults
  filegate serve

  # Start with a config file and a different ops address
  filegate serve --config /etc/filegate/config.yaml --listen 0.0.0.0:9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override ops listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}
	logger, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	a := newApp(cfg, logger)
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()
	if err := a.openGate(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	if cfgFile != "" {
		if err := startWatcher(bgCtx, &wg, a.gate, logger); err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		}
	}

	if cfg.Feedback.Kafka.Enabled {
		if err := startFeedback(bgCtx, &wg, a, logger); err != nil {
			return cli.NewCommandError("serve", err)
		}
	}

	if a.audit != nil && cfg.Audit.Retention.PruneSchedule != "" {
		pruner := retention.NewPruner(a.audit, retention.FromConfig(cfg.Audit.Retention))
		if err := pruner.Start(bgCtx); err != nil {
			logger.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
			if next := pruner.NextPruning(); next != nil {
				logger.Debug("audit retention scheduler started", "next_pruning", next)
			}
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           opsMux(a),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops endpoint listening", "address", cfg.Server.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("filegate started",
		"version", Version,
		"policy_version", a.gate.Policy().Decision.PolicyVersion,
		"store", cfg.Store.Backend,
		"cache", cfg.Cache.Backend,
		"audit", cfg.Audit.Enabled,
		"semantic", cfg.Semantic.Enabled,
	)

	select {
	case err := <-errCh:
		cancelBg()
		return cli.NewCommandError("serve", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	cancelBg()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("ops server shutdown: %w", err))
	}
	return nil
}

// pinger is implemented by storage backends that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

func opsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	if a.metrics != nil {
		mux.Handle(a.cfg.Telemetry.Metrics.Path, a.metrics.Handler())
	}

	checker := health.New(a.cfg.Telemetry.Health.CheckTimeout, Version)
	checker.RegisterCheck("fingerprint_store", a.store.Ping)
	checker.RegisterCheck("decision_cache", a.gate.Ping)
	if p, ok := a.audit.(pinger); ok {
		checker.RegisterOptionalCheck("audit_storage", p.Ping)
	}
	checker.Mount(mux, a.cfg.Telemetry.Health)
	return mux
}

func startWatcher(ctx context.Context, wg *sync.WaitGroup, g *gate.Gate, logger *slog.Logger) error {
	w, err := config.NewWatcher(cfgFile, 0, logger)
	if err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := w.Watch(ctx, func(next *config.Config) {
			p, err := gate.PolicyFromConfig(next)
			if err != nil {
				logger.Warn("reloaded config has an invalid policy", "error", err)
				return
			}
			if p.Decision.PolicyVersion == g.Policy().Decision.PolicyVersion {
				return
			}
			if err := g.SetPolicy(ctx, p); err != nil {
				logger.Error("policy reload failed", "error", err)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("config watcher stopped", "error", err)
		}
	}()
	return nil
}

func startFeedback(ctx context.Context, wg *sync.WaitGroup, a *app, logger *slog.Logger) error {
	applier, err := a.applier()
	if err != nil {
		return err
	}
	src, err := feedback.NewKafkaSource(a.cfg.Feedback.Kafka, applier)
	if err != nil {
		return fmt.Errorf("feedback consumer: %w", err)
	}
	a.onClose(src.Close)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("feedback consumer started",
			"topic", a.cfg.Feedback.Kafka.Topic,
			"group_id", a.cfg.Feedback.Kafka.GroupID,
		)
		if err := src.Run(ctx); err != nil {
			logger.Error("feedback consumer stopped", "error", err)
		}
	}()
	return nil
}

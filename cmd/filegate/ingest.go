package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/filegate/pkg/cli"
	"mercator-hq/filegate/pkg/fingerprint"
)

var ingestFlags struct {
	quiet bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Load fingerprints into the store",
	Long: `Load YAML fingerprint files into the configured fingerprint store.

Each file holds a "fingerprints:" list. Entries are upserted by content hash
and org scope, so re-running an ingest is safe.

Examples:
  filegate ingest corpus/known-bad.yaml corpus/known-good.yaml
  filegate ingest --config /etc/filegate/config.yaml fingerprints.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVarP(&ingestFlags.quiet, "quiet", "q", false, "do not show progress")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	a := newApp(cfg, logger)
	defer a.Close()
	if err := a.openStore(ctx); err != nil {
		return cli.NewCommandError("ingest", err)
	}

	var progress *cli.Progress
	if !ingestFlags.quiet {
		progress = cli.NewProgress(cmd.ErrOrStderr(), "files")
		progress.Start(int64(len(args)))
	}

	total := 0
	for _, path := range args {
		n, err := fingerprint.LoadFile(ctx, path, a.store)
		total += n
		if err != nil {
			if progress != nil {
				progress.Finish()
			}
			return cli.NewCommandError("ingest", fmt.Errorf("%s: %w", path, err))
		}
		logger.Debug("fingerprint file loaded", "path", path, "count", n)
		if progress != nil {
			progress.Add(1)
		}
	}
	if progress != nil {
		progress.Finish()
	}

	count, err := a.store.Count(ctx)
	if err != nil {
		return cli.NewCommandError("ingest", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Loaded %d fingerprints from %d files (%d in store)\n", total, len(args), count)
	return nil
}

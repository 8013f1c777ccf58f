package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/filegate/pkg/cli"
	"mercator-hq/filegate/pkg/config"
)

var validateFlags struct {
	print bool
}

var validateCmd = &cobra.Command{
	Use:   "validate [FILE]",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply FILEGATE_* environment overrides and
report every validation error found.

Examples:
  filegate validate config.yaml
  filegate validate --config /etc/filegate/config.yaml --print`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.print, "print", false, "print the effective configuration as YAML")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}
	out := cmd.OutOrStdout()

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		var verr config.ValidationError
		if !errors.As(err, &verr) {
			return cli.NewConfigError("", err.Error())
		}
		fmt.Fprintf(out, "✗ Configuration invalid (%d errors)\n", len(verr.Errors))
		for _, fe := range verr.Errors {
			fmt.Fprintf(out, "  - %s: %s\n", fe.Field, fe.Message)
		}
		return &cli.ExitError{Code: cli.ExitFailure}
	}

	return writeValidation(out, path, cfg, validateFlags.print)
}

func writeValidation(w io.Writer, path string, cfg *config.Config, dump bool) error {
	source := path
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(w, "✓ Configuration valid (%s)\n", source)
	fmt.Fprintf(w, "  policy version: %s\n", cfg.PolicyVersion())
	fmt.Fprintf(w, "  thresholds: warn %.2f, block %.2f\n", cfg.Decision.WarnThreshold, cfg.Decision.BlockThreshold)
	fmt.Fprintf(w, "  weights: fuzzy %.2f, semantic %.2f, size %.2f\n",
		cfg.Scoring.FuzzyWeight, cfg.Scoring.SemanticWeight, cfg.Scoring.SizeWeight)
	fmt.Fprintf(w, "  store: %s, cache: %s, audit: %s\n", cfg.Store.Backend, cfg.Cache.Backend, auditSummary(cfg))
	if !dump {
		return nil
	}

	redacted := *cfg
	if redacted.Cache.Redis.Password != "" {
		redacted.Cache.Redis.Password = "********"
	}
	if redacted.Store.Postgres.DSN != "" {
		redacted.Store.Postgres.DSN = "********"
	}
	fmt.Fprintln(w)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return err
	}
	return enc.Close()
}

func auditSummary(cfg *config.Config) string {
	if !cfg.Audit.Enabled {
		return "disabled"
	}
	return cfg.Audit.Backend
}

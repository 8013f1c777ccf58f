package main

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "filegate",
	Short: "Filegate - file download risk decisions",
	Long: `Filegate decides whether a downloaded file should be allowed, flagged for
review or blocked.

Each file is described by its content hash, an optional MinHash signature,
an optional embedding, its size and the organization it belongs to. Filegate
looks the file up in a shared fingerprint corpus by exact hash, fuzzy
signature and embedding similarity, fuses the results into one risk
confidence and maps it to ALLOW, WARN or BLOCK.

Without --config the built-in defaults apply; FILEGATE_* environment
variables override both.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

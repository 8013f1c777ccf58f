// Filegate decides whether a downloaded file should be allowed, flagged or
// blocked by comparing its fingerprints against a shared corpus.
//
// Usage:
//
//	# Check one file
//	filegate decide --hash 9f86d0... --org acme --size 1024
//
//	# Load corpus fingerprints
//	filegate ingest corpus.yaml
//
//	# Reclassify a file and drop its cached decisions
//	filegate feedback --hash 9f86d0... --classification malicious
//
//	# Run the operations endpoint, feedback consumer and audit retention
//	filegate serve --config /etc/filegate/config.yaml
//
//	# Inspect decisions
//	filegate audit query --outcome block --since 24h
package main

import (
	"errors"
	"fmt"
	"os"

	"mercator-hq/filegate/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *cli.ExitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}

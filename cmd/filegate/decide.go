package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/filegate/pkg/cli"
	"mercator-hq/filegate/pkg/gate"
	"mercator-hq/filegate/pkg/verdict"
)

var decideFlags struct {
	hash      string
	org       string
	size      int64
	requestID string
	fuzzy     string
	embedding string
	file      string
	batch     bool
	output    string
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide whether a file may be downloaded",
	Long: `Evaluate one file descriptor and print the decision.

The descriptor is given with flags or read from a JSON or YAML file
(--file, "-" for stdin). With --batch, stdin is read as JSON lines, one
descriptor per line, and one JSON decision is written per line.

The exit code reflects the outcome: 0 for ALLOW, 2 for WARN, 3 for BLOCK
and 1 for errors. In batch mode it reflects the most severe outcome.

Examples:
  # Exact hash only
  filegate decide --org acme --hash 9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08 --size 1024

  # With a fuzzy signature and embedding
  filegate decide --org acme --hash 9f86... --fuzzy 12,99,3 --embedding 0.1,0.9

  # From a file, as JSON
  filegate decide --file request.yaml -o json

  # Batch
  cat requests.jsonl | filegate decide --batch`,
	RunE: runDecide,
}

func init() {
	rootCmd.AddCommand(decideCmd)

	f := decideCmd.Flags()
	f.StringVar(&decideFlags.hash, "hash", "", "content hash (hex)")
	f.StringVar(&decideFlags.org, "org", "", "org scope")
	f.Int64Var(&decideFlags.size, "size", 0, "file size in bytes")
	f.StringVar(&decideFlags.requestID, "request-id", "", "caller correlation id")
	f.StringVar(&decideFlags.fuzzy, "fuzzy", "", "fuzzy signature as comma-separated integers")
	f.StringVar(&decideFlags.embedding, "embedding", "", "embedding as comma-separated floats")
	f.StringVarP(&decideFlags.file, "file", "f", "", "read the request from a JSON or YAML file (- for stdin)")
	f.BoolVar(&decideFlags.batch, "batch", false, "read JSON lines from stdin and write JSON lines")
	f.StringVarP(&decideFlags.output, "output", "o", "text", "output format (text, json, yaml)")
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var req verdict.Request
	if !decideFlags.batch {
		req, err = requestFromFlags(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}
	formatter, err := cli.NewFormatter(cli.OutputFormat(decideFlags.output))
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	a := newApp(cfg, logger)
	defer a.Close()
	if err := a.openGate(ctx); err != nil {
		return cli.NewCommandError("decide", err)
	}

	if decideFlags.batch {
		code, err := decideBatch(ctx, a.gate, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return cli.NewCommandError("decide", err)
		}
		if code != cli.ExitOK {
			return &cli.ExitError{Code: code}
		}
		return nil
	}

	resp, err := a.gate.Evaluate(ctx, req)
	if err != nil {
		var invalid *verdict.InvalidDescriptorError
		if errors.As(err, &invalid) {
			return cli.NewConfigError(invalid.Field, invalid.Error())
		}
		return cli.NewCommandError("decide", err)
	}
	if err := formatter.FormatTo(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if code := cli.OutcomeExitCode(resp.Outcome); code != cli.ExitOK {
		return &cli.ExitError{Code: code}
	}
	return nil
}

// requestFromFlags builds the request from --file or the descriptor flags.
// Flags given alongside --file override the file's values.
func requestFromFlags(stdin io.Reader) (verdict.Request, error) {
	var req verdict.Request
	if decideFlags.file != "" {
		r := stdin
		if decideFlags.file != "-" {
			f, err := os.Open(decideFlags.file)
			if err != nil {
				return req, cli.NewConfigError("file", err.Error())
			}
			defer f.Close()
			r = f
		}
		// YAML is a superset of JSON, so one decoder reads both.
		if err := yaml.NewDecoder(r).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, cli.NewConfigError("file", fmt.Sprintf("invalid request: %v", err))
		}
	}

	if decideFlags.hash != "" {
		req.ContentHash = decideFlags.hash
	}
	if decideFlags.org != "" {
		req.OrgScope = decideFlags.org
	}
	if decideFlags.size != 0 {
		req.SizeBytes = decideFlags.size
	}
	if decideFlags.requestID != "" {
		req.RequestID = decideFlags.requestID
	}
	if decideFlags.fuzzy != "" {
		sig, err := parseUint64List(decideFlags.fuzzy)
		if err != nil {
			return req, cli.NewConfigError("fuzzy", err.Error())
		}
		req.FuzzySignature = sig
	}
	if decideFlags.embedding != "" {
		vec, err := parseFloat32List(decideFlags.embedding)
		if err != nil {
			return req, cli.NewConfigError("embedding", err.Error())
		}
		req.Embedding = vec
	}
	return req, nil
}

// batchLine is one line of --batch output.
type batchLine struct {
	*gate.Response
	Line  int    `json:"line,omitempty"`
	Error string `json:"error,omitempty"`
}

// decideBatch evaluates JSON-lines requests from r. Bad lines produce an
// error line and do not stop the batch. It returns the exit code of the
// most severe outcome.
func decideBatch(ctx context.Context, g *gate.Gate, r io.Reader, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	code := cli.ExitOK
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return code, err
		}

		var req verdict.Request
		out := batchLine{Line: line}
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			out.Error = fmt.Sprintf("invalid request: %v", err)
		} else if resp, err := g.Evaluate(ctx, req); err != nil {
			out.Error = err.Error()
		} else {
			out.Response = resp
			code = max(code, cli.OutcomeExitCode(resp.Outcome))
		}
		if out.Error != "" {
			code = max(code, cli.ExitFailure)
		}
		if err := enc.Encode(out); err != nil {
			return code, err
		}
	}
	return code, sc.Err()
}

func parseUint64List(s string) ([]uint64, error) {
	parts := splitList(s)
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloat32List(s string) ([]float32, error) {
	parts := splitList(s)
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/audit/export"
	"mercator-hq/filegate/pkg/audit/query"
	"mercator-hq/filegate/pkg/audit/retention"
	"mercator-hq/filegate/pkg/cli"
	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/verdict"
)

// auditFilter holds the filter flags shared by the audit subcommands.
type auditFilter struct {
	since         time.Duration
	timeRange     string
	decisionID    string
	requestID     string
	hash          string
	org           string
	outcome       string
	reason        string
	source        string
	userAction    string
	minConfidence float64
	maxConfidence float64
	limit         int
	offset        int
	sortBy        string
	sortOrder     string
}

var auditFlags struct {
	filter auditFilter
	output string
	format string
	out    string
	pretty bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the decision audit trail",
	Long: `Query, export, summarize and prune decision audit records.

Subcommands:
  query   - List records matching filters
  export  - Stream matching records as JSON or CSV
  report  - Summarize outcomes and reasons
  prune   - Apply the retention policy once

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-10-01T00:00:00Z/2026-10-02T00:00:00Z"`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit records",
	Long: `Query audit records with filters.

Examples:
  # Blocks in the last hour
  filegate audit query --since 1h --outcome block

  # Everything for one hash in one org, as JSON
  filegate audit query --hash 9f86... --org acme -o json`,
	RunE: runAuditQuery,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records",
	Long: `Stream matching audit records to a file or stdout.

Examples:
  filegate audit export --format csv --out decisions.csv --since 24h
  filegate audit export --format json --pretty --org acme`,
	RunE: runAuditExport,
}

var auditReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize audit records",
	RunE:  runAuditReport,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete records outside the retention policy",
	RunE:  runAuditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditExportCmd, auditReportCmd, auditPruneCmd)

	for _, c := range []*cobra.Command{auditQueryCmd, auditExportCmd, auditReportCmd} {
		addFilterFlags(c, &auditFlags.filter)
	}

	auditQueryCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "text", "output format (text, json, yaml)")

	auditExportCmd.Flags().StringVar(&auditFlags.format, "format", "json", "export format (json, csv)")
	auditExportCmd.Flags().StringVar(&auditFlags.out, "out", "", "output file (default: stdout)")
	auditExportCmd.Flags().BoolVar(&auditFlags.pretty, "pretty", false, "indent JSON output")
}

func addFilterFlags(c *cobra.Command, f *auditFilter) {
	fs := c.Flags()
	fs.DurationVar(&f.since, "since", 0, "only records from the last duration (e.g. 1h)")
	fs.StringVar(&f.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	fs.StringVar(&f.decisionID, "decision-id", "", "filter by decision id")
	fs.StringVar(&f.requestID, "request-id", "", "filter by request id")
	fs.StringVar(&f.hash, "hash", "", "filter by content hash")
	fs.StringVar(&f.org, "org", "", "filter by org scope")
	fs.StringVar(&f.outcome, "outcome", "", "filter by outcome (allow, warn, block)")
	fs.StringVar(&f.reason, "reason", "", "filter by reason code")
	fs.StringVar(&f.source, "source", "", "filter by source (computed, cache)")
	fs.StringVar(&f.userAction, "user-action", "", "filter by user action (none, proceed, cancel)")
	fs.Float64Var(&f.minConfidence, "min-confidence", -1, "minimum confidence")
	fs.Float64Var(&f.maxConfidence, "max-confidence", -1, "maximum confidence")
	fs.IntVar(&f.limit, "limit", 0, "max results (default from config)")
	fs.IntVar(&f.offset, "offset", 0, "pagination offset")
	fs.StringVar(&f.sortBy, "sort", "", "sort field (recorded_at, decided_at, confidence, duration)")
	fs.StringVar(&f.sortOrder, "order", "", "sort order (asc, desc)")
}

// build turns the flags into a validated query.
func (f auditFilter) build(now time.Time, limits config.QueryConfig) (*audit.Query, error) {
	q := &audit.Query{
		DecisionID: f.decisionID,
		RequestID:  f.requestID,
		OrgScope:   strings.TrimSpace(f.org),
		Source:     strings.ToLower(f.source),
		Limit:      f.limit,
		Offset:     f.offset,
		SortBy:     f.sortBy,
		SortOrder:  strings.ToLower(f.sortOrder),
	}

	if f.since > 0 && f.timeRange != "" {
		return nil, cli.NewConfigError("since", "--since and --time-range are mutually exclusive")
	}
	if f.since > 0 {
		start := now.Add(-f.since)
		q.StartTime = &start
	}
	if f.timeRange != "" {
		start, end, err := parseTimeRange(f.timeRange)
		if err != nil {
			return nil, cli.NewConfigError("time-range", err.Error())
		}
		q.StartTime, q.EndTime = &start, &end
	}

	if f.hash != "" {
		h, err := verdict.NormalizeHash(f.hash)
		if err != nil {
			return nil, cli.NewConfigError("hash", err.Error())
		}
		q.ContentHash = h
	}
	if f.outcome != "" {
		o, err := verdict.ParseOutcome(f.outcome)
		if err != nil {
			return nil, cli.NewConfigError("outcome", err.Error())
		}
		q.Outcome = o
	}
	if f.reason != "" {
		r, err := verdict.ParseReasonCode(f.reason)
		if err != nil {
			return nil, cli.NewConfigError("reason", err.Error())
		}
		q.Reason = r
	}
	if f.userAction != "" {
		a, err := audit.ParseUserAction(f.userAction)
		if err != nil {
			return nil, cli.NewConfigError("user-action", err.Error())
		}
		q.UserAction = a
	}
	if f.minConfidence >= 0 {
		v := f.minConfidence
		q.MinConfidence = &v
	}
	if f.maxConfidence >= 0 {
		v := f.maxConfidence
		q.MaxConfidence = &v
	}

	query.ApplyDefaults(q, limits)
	if err := query.Validate(q, limits); err != nil {
		return nil, cli.NewConfigError("query", err.Error())
	}
	return q, nil
}

// parseTimeRange parses an RFC3339 "start/end" interval.
func parseTimeRange(s string) (time.Time, time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range format (expected: start/end)")
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[0]))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[1]))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	return start, end, nil
}

// openAuditOnly prepares an app with only audit storage open, regardless
// of audit.enabled.
func openAuditOnly(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	cfg.Audit.Enabled = true
	a := newApp(cfg, logger)
	if err := a.openAudit(); err != nil {
		return nil, cli.NewCommandError(cmd.Name(), err)
	}
	return a, nil
}

// recordList is the result of `audit query`.
type recordList struct {
	Total   int64           `json:"total" yaml:"total"`
	Records []*audit.Record `json:"records" yaml:"records"`
}

func (l recordList) WriteText(w io.Writer) error {
	if len(l.Records) == 0 {
		_, err := fmt.Fprintln(w, "No records found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tORG\tHASH\tOUTCOME\tREASON\tCONF\tSOURCE\tACTION")
	for _, r := range l.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			r.RecordedAt.Format(time.RFC3339),
			r.OrgScope,
			shortHash(r.ContentHash),
			r.Outcome,
			r.Reason,
			r.Confidence,
			r.Source,
			r.UserAction,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d of %d records\n", len(l.Records), l.Total)
	return err
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12] + "…"
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(auditFlags.output))
	if err != nil {
		return err
	}
	a, err := openAuditOnly(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := auditFlags.filter.build(time.Now(), a.cfg.Audit.Query)
	if err != nil {
		return err
	}
	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	records, err := a.audit.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	total, err := a.audit.Count(ctx, q)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	return formatter.FormatTo(cmd.OutOrStdout(), recordList{Total: total, Records: records})
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	exporter, err := export.New(auditFlags.format, auditFlags.pretty)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	a, err := openAuditOnly(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := auditFlags.filter.build(time.Now(), a.cfg.Audit.Query)
	if err != nil {
		return err
	}
	// An export without --limit takes every match, up to the configured cap.
	if auditFlags.filter.limit == 0 {
		q.Limit = a.cfg.Audit.Query.MaxLimit
	}

	var w io.Writer = cmd.OutOrStdout()
	if auditFlags.out != "" {
		f, err := os.Create(auditFlags.out)
		if err != nil {
			return cli.NewCommandError("audit export", fmt.Errorf("failed to create output file: %w", err))
		}
		defer f.Close()
		w = f
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()
	if err := exportRecords(ctx, a.audit, exporter, q, w); err != nil {
		return cli.NewCommandError("audit export", err)
	}
	if auditFlags.out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported to %s\n", auditFlags.out)
	}
	return nil
}

// exportRecords streams query results through exporter.
func exportRecords(ctx context.Context, s audit.Storage, exporter audit.Exporter, q *audit.Query, w io.Writer) error {
	records, errs, err := s.QueryStream(ctx, q)
	if err != nil {
		return err
	}
	if err := exporter.ExportStream(ctx, records, w); err != nil {
		// Drain so the producer can finish.
		for range records {
		}
		return err
	}
	return <-errs
}

// auditReport summarizes a set of records.
type auditReport struct {
	Start     *time.Time       `json:"start,omitempty" yaml:"start,omitempty"`
	End       *time.Time       `json:"end,omitempty" yaml:"end,omitempty"`
	Total     int              `json:"total" yaml:"total"`
	ByOutcome map[string]int   `json:"by_outcome" yaml:"by_outcome"`
	ByReason  map[string]int   `json:"by_reason" yaml:"by_reason"`
	ByOrg     map[string]int   `json:"by_org" yaml:"by_org"`
	ByAction  map[string]int   `json:"by_user_action" yaml:"by_user_action"`
}

func summarize(records []*audit.Record, q *audit.Query) auditReport {
	r := auditReport{
		Start:     q.StartTime,
		End:       q.EndTime,
		Total:     len(records),
		ByOutcome: map[string]int{},
		ByReason:  map[string]int{},
		ByOrg:     map[string]int{},
		ByAction:  map[string]int{},
	}
	for _, rec := range records {
		r.ByOutcome[rec.Outcome.String()]++
		r.ByReason[rec.Reason.String()]++
		r.ByOrg[rec.OrgScope]++
		r.ByAction[string(rec.UserAction)]++
	}
	return r
}

func (r auditReport) WriteText(w io.Writer) error {
	fmt.Fprintln(w, "Decision Audit Report")
	fmt.Fprintln(w, "=====================")
	if r.Start != nil {
		end := "now"
		if r.End != nil {
			end = r.End.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "Time Range: %s to %s\n", r.Start.Format(time.RFC3339), end)
	}
	fmt.Fprintf(w, "Total Decisions: %d\n", r.Total)
	for _, section := range []struct {
		title  string
		counts map[string]int
	}{
		{"By Outcome", r.ByOutcome},
		{"By Reason", r.ByReason},
		{"By Org", r.ByOrg},
		{"By User Action", r.ByAction},
	} {
		fmt.Fprintf(w, "\n%s:\n", section.title)
		keys := make([]string, 0, len(section.counts))
		for k := range section.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n := section.counts[k]
			fmt.Fprintf(w, "  %s: %d (%.0f%%)\n", k, n, float64(n)/float64(r.Total)*100)
		}
	}
	return nil
}

func runAuditReport(cmd *cobra.Command, args []string) error {
	a, err := openAuditOnly(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := auditFlags.filter.build(time.Now(), a.cfg.Audit.Query)
	if err != nil {
		return err
	}
	if auditFlags.filter.limit == 0 {
		q.Limit = a.cfg.Audit.Query.MaxLimit
	}
	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	records, err := a.audit.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("audit report", err)
	}
	return summarize(records, q).WriteText(cmd.OutOrStdout())
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	a, err := openAuditOnly(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	pruner := retention.NewPruner(a.audit, retention.FromConfig(a.cfg.Audit.Retention))
	n, err := pruner.Prune(ctx)
	if err != nil {
		return cli.NewCommandError("audit prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d records\n", n)
	return nil
}

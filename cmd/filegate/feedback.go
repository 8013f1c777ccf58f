package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/cli"
	"mercator-hq/filegate/pkg/feedback"
	"mercator-hq/filegate/pkg/verdict"
)

var feedbackFlags struct {
	hash           string
	org            string
	classification string
	actor          string
	note           string
	decisionID     string
	userAction     string
	output         string
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Apply an analyst classification override",
	Long: `Reclassify a content hash and drop cached decisions for it.

Without --org the override applies to every org that has the hash. When
--decision-id and --user-action are given, the audit record of that
decision is annotated with what the user did.

Examples:
  # Mark a hash malicious everywhere
  filegate feedback --hash 9f86... --classification malicious --actor alice

  # Record that the user went ahead after a warning
  filegate feedback --hash 9f86... --org acme --classification benign \
    --decision-id 3f0c... --user-action proceed`,
	RunE: runFeedback,
}

func init() {
	rootCmd.AddCommand(feedbackCmd)

	f := feedbackCmd.Flags()
	f.StringVar(&feedbackFlags.hash, "hash", "", "content hash (required)")
	f.StringVar(&feedbackFlags.org, "org", "", "limit the override to one org scope")
	f.StringVar(&feedbackFlags.classification, "classification", "", "malicious, benign or unknown (required)")
	f.StringVar(&feedbackFlags.actor, "actor", "", "who made the call")
	f.StringVar(&feedbackFlags.note, "note", "", "free-form note")
	f.StringVar(&feedbackFlags.decisionID, "decision-id", "", "decision the override responds to")
	f.StringVar(&feedbackFlags.userAction, "user-action", "", "none, proceed or cancel")
	f.StringVarP(&feedbackFlags.output, "output", "o", "text", "output format (text, json, yaml)")

	_ = feedbackCmd.MarkFlagRequired("hash")
	_ = feedbackCmd.MarkFlagRequired("classification")
}

// feedbackResult is what the command prints.
type feedbackResult struct {
	ContentHash    string                 `json:"content_hash" yaml:"content_hash"`
	OrgScope       string                 `json:"org_scope,omitempty" yaml:"org_scope,omitempty"`
	Classification verdict.Classification `json:"classification" yaml:"classification"`
	Reclassified   int                    `json:"reclassified" yaml:"reclassified"`
	Invalidated    int                    `json:"invalidated" yaml:"invalidated"`
	Annotated      int64                  `json:"annotated" yaml:"annotated"`
}

func (r feedbackResult) WriteText(w io.Writer) error {
	scope := r.OrgScope
	if scope == "" {
		scope = "all orgs"
	}
	_, err := fmt.Fprintf(w, "✓ %s marked %s in %s\n  fingerprints updated: %d\n  cached decisions dropped: %d\n  audit records annotated: %d\n",
		r.ContentHash, r.Classification, scope, r.Reclassified, r.Invalidated, r.Annotated)
	return err
}

func overrideFromFlags() (feedback.Override, error) {
	c, err := verdict.ParseClassification(feedbackFlags.classification)
	if err != nil {
		return feedback.Override{}, cli.NewConfigError("classification", err.Error())
	}
	o := feedback.Override{
		ContentHash:    feedbackFlags.hash,
		OrgScope:       feedbackFlags.org,
		Classification: c,
		Actor:          feedbackFlags.actor,
		Note:           feedbackFlags.note,
		DecisionID:     feedbackFlags.decisionID,
		UserAction:     audit.UserAction(feedbackFlags.userAction),
	}
	if err := o.Normalize(); err != nil {
		return o, cli.NewConfigError("", err.Error())
	}
	return o, nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	o, err := overrideFromFlags()
	if err != nil {
		return err
	}
	formatter, err := cli.NewFormatter(cli.OutputFormat(feedbackFlags.output))
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	a := newApp(cfg, logger)
	defer a.Close()
	if err := a.openStore(ctx); err != nil {
		return cli.NewCommandError("feedback", err)
	}
	if err := a.openCache(ctx); err != nil {
		return cli.NewCommandError("feedback", err)
	}
	if o.DecisionID != "" {
		if err := a.openAudit(); err != nil {
			return cli.NewCommandError("feedback", err)
		}
	}

	applier, err := a.applier()
	if err != nil {
		return cli.NewCommandError("feedback", err)
	}
	res, err := applier.Apply(ctx, o)
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidOverride) {
			return cli.NewConfigError("", err.Error())
		}
		return cli.NewCommandError("feedback", err)
	}

	return formatter.FormatTo(cmd.OutOrStdout(), feedbackResult{
		ContentHash:    o.ContentHash,
		OrgScope:       o.OrgScope,
		Classification: o.Classification,
		Reclassified:   res.Reclassified,
		Invalidated:    res.Invalidated,
		Annotated:      res.Annotated,
	})
}

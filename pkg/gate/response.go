package gate

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"mercator-hq/filegate/pkg/cache"
	"mercator-hq/filegate/pkg/verdict"
)

// Response is what a caller receives for one descriptor.
type Response struct {
	DecisionID            string             `json:"decision_id" yaml:"decision_id"`
	RequestID             string             `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Outcome               verdict.Outcome    `json:"outcome" yaml:"outcome"`
	Confidence            float64            `json:"confidence" yaml:"confidence"`
	Reason                verdict.ReasonCode `json:"reason" yaml:"reason"`
	Signals               []SignalView       `json:"signals" yaml:"signals"`
	MatchedFingerprintIDs []string           `json:"matched_fingerprint_ids,omitempty" yaml:"matched_fingerprint_ids,omitempty"`
	PolicyVersion         string             `json:"policy_version,omitempty" yaml:"policy_version,omitempty"`
	DecidedAt             time.Time          `json:"decided_at" yaml:"decided_at"`

	// Cached is true unless this call computed the decision itself.
	Cached bool         `json:"cached" yaml:"cached"`
	Source cache.Source `json:"source" yaml:"source"`

	Explanation string `json:"explanation" yaml:"explanation"`
}

// SignalView is the per-method evidence shown to callers. Score is nil
// when the method produced no usable signal.
type SignalView struct {
	Method         verdict.Method         `json:"method" yaml:"method"`
	Status         verdict.Status         `json:"status" yaml:"status"`
	Score          *float64               `json:"score,omitempty" yaml:"score,omitempty"`
	FingerprintID  string                 `json:"fingerprint_id,omitempty" yaml:"fingerprint_id,omitempty"`
	Classification verdict.Classification `json:"classification,omitempty" yaml:"classification,omitempty"`
	LatencyMs      float64                `json:"latency_ms" yaml:"latency_ms"`
	Error          string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

func newResponse(d verdict.Decision, src cache.Source, requestID, explanation string) *Response {
	views := make([]SignalView, 0, len(d.Signals))
	for _, s := range d.Signals {
		v := SignalView{
			Method:         s.Method,
			Status:         s.Status,
			FingerprintID:  s.Match.FingerprintID,
			Classification: s.Match.Classification,
			LatencyMs:      float64(s.Latency.Microseconds()) / 1000,
			Error:          s.Error,
		}
		if s.Present() {
			score := s.Score
			v.Score = &score
		}
		views = append(views, v)
	}
	return &Response{
		DecisionID:            d.ID,
		RequestID:             requestID,
		Outcome:               d.Outcome,
		Confidence:            d.Confidence,
		Reason:                d.Reason,
		Signals:               views,
		MatchedFingerprintIDs: d.MatchedFingerprintIDs,
		PolicyVersion:         d.PolicyVersion,
		DecidedAt:             d.DecidedAt,
		Cached:                src != cache.SourceComputed,
		Source:                src,
		Explanation:           explanation,
	}
}

// WriteText renders r for a terminal.
func (r *Response) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s  %s  confidence %.2f\n", r.Outcome, r.Reason, r.Confidence)
	fmt.Fprintf(w, "%s\n\n", r.Explanation)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tSTATUS\tSCORE\tFINGERPRINT\tLATENCY")
	for _, s := range r.Signals {
		score := "-"
		if s.Score != nil {
			score = fmt.Sprintf("%.3f", *s.Score)
		}
		fp := s.FingerprintID
		if fp == "" {
			fp = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1fms\n", s.Method, s.Status, score, fp, s.LatencyMs)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\ndecision %s  policy %s  source %s\n", r.DecisionID, r.PolicyVersion, r.Source)
	if len(r.MatchedFingerprintIDs) > 0 {
		fmt.Fprintf(w, "matched %s\n", strings.Join(r.MatchedFingerprintIDs, ", "))
	}
	return nil
}

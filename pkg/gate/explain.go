package gate

import (
	"fmt"
	"strings"

	"mercator-hq/filegate/pkg/decision"
	"mercator-hq/filegate/pkg/verdict"
)

// Explain renders a short, deterministic description of d for the person
// downloading the file. The same decision and thresholds always produce
// the same text.
func Explain(d verdict.Decision, t decision.Thresholds) string {
	var b strings.Builder

	switch d.Reason {
	case verdict.ReasonExactMatchMalicious:
		b.WriteString("File is identical to a known malicious file.")
	case verdict.ReasonExactMatchBenign:
		b.WriteString("File is identical to a known safe file.")
	case verdict.ReasonExactMatchUnclassified:
		b.WriteString("File is identical to a known file that has not been classified yet.")
	case verdict.ReasonSimilarityBlock:
		fmt.Fprintf(&b, "File is very similar to a known file (%s; risk %s, threshold %s).",
			scoreSummary(d), percent(d.Confidence), percent(t.Block))
	case verdict.ReasonSimilarityWarn:
		fmt.Fprintf(&b, "File has moderate similarity to a known file (%s; risk %s, threshold %s).",
			scoreSummary(d), percent(d.Confidence), percent(t.Warn))
	case verdict.ReasonSimilarityBelowThreshold:
		fmt.Fprintf(&b, "File similarity is low (%s).", scoreSummary(d))
	case verdict.ReasonNoMatch:
		b.WriteString("No similarity detected.")
	case verdict.ReasonBackendUnreachable:
		b.WriteString("The file could not be checked because similarity lookups are unavailable.")
	default:
		fmt.Fprintf(&b, "Unknown reason %s.", d.Reason)
	}

	b.WriteByte(' ')
	switch d.Outcome {
	case verdict.OutcomeAllow:
		b.WriteString("File is allowed.")
	case verdict.OutcomeWarn:
		b.WriteString("Please review before downloading.")
	case verdict.OutcomeBlock:
		b.WriteString("BLOCKED for safety.")
	default:
		fmt.Fprintf(&b, "Unknown outcome %s.", d.Outcome)
	}
	return b.String()
}

// scoreSummary lists the matched non-size signals in method order.
func scoreSummary(d verdict.Decision) string {
	var parts []string
	for _, s := range d.Signals {
		if !s.Matched() || s.Method == verdict.MethodSize || s.Method == verdict.MethodExact {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s match: %s", strings.ToLower(s.Method.String()), percent(s.Score)))
	}
	if len(parts) == 0 {
		return "no single strong match"
	}
	return strings.Join(parts, ", ")
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

package verdict

import (
	"time"
)

// Fingerprint is a corpus record describing a previously seen file.
type Fingerprint struct {
	ID             string         `json:"id" yaml:"id"`
	ContentHash    string         `json:"content_hash" yaml:"content_hash"`
	FuzzySignature []uint64       `json:"fuzzy_signature,omitempty" yaml:"fuzzy_signature"`
	Embedding      []float32      `json:"embedding,omitempty" yaml:"embedding"`
	SizeBytes      int64          `json:"size_bytes" yaml:"size_bytes"`
	Classification Classification `json:"classification" yaml:"classification"`
	OrgScope       string         `json:"org_scope" yaml:"org_scope"`
	FirstSeen      time.Time      `json:"first_seen" yaml:"first_seen"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"updated_at"`
}

// Ref returns a value copy of the fields a Signal needs.
func (f *Fingerprint) Ref() MatchRef {
	return MatchRef{
		FingerprintID:  f.ID,
		Classification: f.Classification,
		FirstSeen:      f.FirstSeen,
		SizeBytes:      f.SizeBytes,
	}
}

// MatchRef is a value copy of a matched fingerprint's identity.
type MatchRef struct {
	FingerprintID  string         `json:"fingerprint_id,omitempty"`
	Classification Classification `json:"classification,omitempty"`
	FirstSeen      time.Time      `json:"first_seen"`
	SizeBytes      int64          `json:"size_bytes,omitempty"`
}

// IsZero reports whether the ref names no fingerprint.
func (r MatchRef) IsZero() bool { return r.FingerprintID == "" }

// Candidate is a scored fingerprint returned by a similarity lookup.
type Candidate struct {
	Fingerprint Fingerprint
	Score       float64
}

// Neighbor is a semantic index hit. Distance is cosine distance in [0, 2].
type Neighbor struct {
	FingerprintID string
	Distance      float64
}

// Better reports whether a ranks ahead of b: higher score, then earlier
// first-seen, then lower fingerprint ID.
func Better(aScore float64, a MatchRef, bScore float64, b MatchRef) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	if !a.FirstSeen.Equal(b.FirstSeen) {
		return a.FirstSeen.Before(b.FirstSeen)
	}
	return a.FingerprintID < b.FingerprintID
}

// Signal is the outcome of one similarity method.
type Signal struct {
	Method  Method        `json:"method"`
	Status  Status        `json:"status"`
	Score   float64       `json:"score"`
	Match   MatchRef      `json:"match"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Present reports whether the signal carries a usable score.
func (s Signal) Present() bool { return s.Status == StatusOK }

// Matched reports whether the signal is present and names a fingerprint.
func (s Signal) Matched() bool { return s.Present() && !s.Match.IsZero() }

// Decision is the immutable result returned for a descriptor.
type Decision struct {
	ID                    string     `json:"id"`
	Outcome               Outcome    `json:"outcome"`
	Confidence            float64    `json:"confidence"`
	Reason                ReasonCode `json:"reason"`
	Signals               []Signal   `json:"signals"`
	MatchedFingerprintIDs []string   `json:"matched_fingerprint_ids,omitempty"`
	DecidedAt             time.Time  `json:"decided_at"`
	PolicyVersion         string     `json:"policy_version,omitempty"`
}

// Signal returns the signal for method m, if recorded.
func (d *Decision) Signal(m Method) (Signal, bool) {
	for _, s := range d.Signals {
		if s.Method == m {
			return s, true
		}
	}
	return Signal{}, false
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (d Decision) Clone() Decision {
	d.Signals = append([]Signal(nil), d.Signals...)
	d.MatchedFingerprintIDs = append([]string(nil), d.MatchedFingerprintIDs...)
	return d
}

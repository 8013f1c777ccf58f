package fingerprint

import (
	"encoding/binary"
	"hash/fnv"
	"sort"

	"mercator-hq/filegate/pkg/verdict"
)

// MinHashSimilarity estimates Jaccard similarity as the fraction of equal
// slots. Signatures of different lengths are incomparable and score 0.
func MinHashSimilarity(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var equal int
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}
	return float64(equal) / float64(len(a))
}

// Band is one LSH bucket of a signature.
type Band struct {
	Index  int
	Bucket int64
}

// Bands splits sig into rows-wide bands and hashes each one. Trailing slots
// that do not fill a band are ignored.
func Bands(sig []uint64, rows int) []Band {
	if rows <= 0 || len(sig) < rows {
		return nil
	}
	n := len(sig) / rows
	out := make([]Band, 0, n)
	buf := make([]byte, 8)
	for b := 0; b < n; b++ {
		h := fnv.New64a()
		binary.LittleEndian.PutUint64(buf, uint64(b))
		h.Write(buf)
		for _, v := range sig[b*rows : (b+1)*rows] {
			binary.LittleEndian.PutUint64(buf, v)
			h.Write(buf)
		}
		out = append(out, Band{Index: b, Bucket: int64(h.Sum64())})
	}
	return out
}

// MatchOptions bounds fuzzy candidate generation.
type MatchOptions struct {
	// MinScore drops candidates below this similarity.
	// Default: 0.5.
	MinScore float64

	// MaxCandidates caps the number of candidates returned.
	// Default: 10.
	MaxCandidates int

	// BandRows is the number of signature slots per LSH band.
	// Default: 4.
	BandRows int
}

// DefaultMatchOptions returns the default candidate bounds.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{MinScore: 0.5, MaxCandidates: 10, BandRows: 4}
}

// WithDefaults fills zero fields from DefaultMatchOptions.
func (o MatchOptions) WithDefaults() MatchOptions {
	d := DefaultMatchOptions()
	if o.MinScore <= 0 {
		o.MinScore = d.MinScore
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.BandRows <= 0 {
		o.BandRows = d.BandRows
	}
	return o
}

// RankCandidates scores fingerprints against sig, drops those below
// MinScore and returns the best MaxCandidates in tie-break order.
func RankCandidates(sig []uint64, fps []verdict.Fingerprint, opts MatchOptions) []verdict.Candidate {
	out := make([]verdict.Candidate, 0, len(fps))
	for _, fp := range fps {
		score := MinHashSimilarity(sig, fp.FuzzySignature)
		if score < opts.MinScore {
			continue
		}
		out = append(out, verdict.Candidate{Fingerprint: fp, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		return verdict.Better(out[i].Score, out[i].Fingerprint.Ref(), out[j].Score, out[j].Fingerprint.Ref())
	})
	if len(out) > opts.MaxCandidates {
		out = out[:opts.MaxCandidates]
	}
	return out
}

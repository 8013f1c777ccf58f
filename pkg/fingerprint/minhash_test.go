package fingerprint

import (
	"math"
	"testing"
	"time"

	"mercator-hq/filegate/pkg/verdict"
)

func TestMinHashSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []uint64
		want float64
	}{
		{"identical", []uint64{1, 2, 3, 4}, []uint64{1, 2, 3, 4}, 1},
		{"half", []uint64{1, 2, 3, 4}, []uint64{1, 2, 9, 9}, 0.5},
		{"disjoint", []uint64{1, 2}, []uint64{3, 4}, 0},
		{"length mismatch", []uint64{1, 2}, []uint64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinHashSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBandsShareBucketsForSharedRows(t *testing.T) {
	a := []uint64{1, 2, 3, 4, 5, 6, 7, 8}
	b := []uint64{1, 2, 3, 4, 0, 0, 0, 0}

	ba, bb := Bands(a, 4), Bands(b, 4)
	if len(ba) != 2 || len(bb) != 2 {
		t.Fatalf("expected 2 bands each, got %d and %d", len(ba), len(bb))
	}
	if ba[0] != bb[0] {
		t.Error("first band should collide")
	}
	if ba[1] == bb[1] {
		t.Error("second band should differ")
	}

	// Same rows in a different band position must not collide.
	c := []uint64{5, 6, 7, 8, 1, 2, 3, 4}
	if Bands(c, 4)[1].Bucket == ba[0].Bucket {
		t.Error("band index must be part of the bucket")
	}
}

func TestRankCandidates(t *testing.T) {
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sig := []uint64{1, 2, 3, 4}
	fps := []verdict.Fingerprint{
		{ID: "late", FuzzySignature: []uint64{1, 2, 3, 9}, FirstSeen: early.Add(time.Hour)},
		{ID: "early", FuzzySignature: []uint64{1, 2, 3, 8}, FirstSeen: early},
		{ID: "weak", FuzzySignature: []uint64{1, 9, 9, 9}, FirstSeen: early},
		{ID: "best", FuzzySignature: []uint64{1, 2, 3, 4}, FirstSeen: early.Add(2 * time.Hour)},
	}

	got := RankCandidates(sig, fps, MatchOptions{MinScore: 0.5, MaxCandidates: 2})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Fingerprint.ID != "best" || got[1].Fingerprint.ID != "early" {
		t.Errorf("order = %s, %s; want best, early", got[0].Fingerprint.ID, got[1].Fingerprint.ID)
	}
}

func TestCodecs(t *testing.T) {
	sig := []uint64{0, 1, math.MaxUint64}
	gotSig, err := DecodeSignature(EncodeSignature(sig))
	if err != nil {
		t.Fatalf("DecodeSignature: %v", err)
	}
	for i := range sig {
		if gotSig[i] != sig[i] {
			t.Fatalf("signature slot %d = %d, want %d", i, gotSig[i], sig[i])
		}
	}

	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated embedding blob")
	}
}

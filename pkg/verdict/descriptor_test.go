package verdict

import (
	"errors"
	"math"
	"strings"
	"testing"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestNewDescriptor(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		wantErr    bool
		errorField string
	}{
		{
			name: "valid minimal",
			req:  Request{ContentHash: testHash, SizeBytes: 10, OrgScope: "acme"},
		},
		{
			name: "valid with signals",
			req: Request{
				ContentHash:    strings.ToUpper(testHash),
				FuzzySignature: []uint64{1, 2, 3},
				Embedding:      []float32{0.1, 0.2},
				OrgScope:       " acme ",
			},
		},
		{
			name:       "missing hash",
			req:        Request{OrgScope: "acme"},
			wantErr:    true,
			errorField: "content_hash",
		},
		{
			name:       "short hash",
			req:        Request{ContentHash: "abc", OrgScope: "acme"},
			wantErr:    true,
			errorField: "content_hash",
		},
		{
			name:       "non hex hash",
			req:        Request{ContentHash: strings.Repeat("z", 64), OrgScope: "acme"},
			wantErr:    true,
			errorField: "content_hash",
		},
		{
			name:       "missing org",
			req:        Request{ContentHash: testHash, OrgScope: "  "},
			wantErr:    true,
			errorField: "org_scope",
		},
		{
			name:       "negative size",
			req:        Request{ContentHash: testHash, OrgScope: "acme", SizeBytes: -1},
			wantErr:    true,
			errorField: "size_bytes",
		},
		{
			name:       "nan embedding",
			req:        Request{ContentHash: testHash, OrgScope: "acme", Embedding: []float32{float32(math.NaN())}},
			wantErr:    true,
			errorField: "embedding",
		},
		{
			name:       "zero embedding",
			req:        Request{ContentHash: testHash, OrgScope: "acme", Embedding: []float32{0, 0}},
			wantErr:    true,
			errorField: "embedding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor(tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidDescriptor) {
					t.Errorf("expected ErrInvalidDescriptor, got %v", err)
				}
				var ide *InvalidDescriptorError
				if !errors.As(err, &ide) {
					t.Fatalf("expected *InvalidDescriptorError, got %T", err)
				}
				if ide.Field != tt.errorField {
					t.Errorf("field = %q, want %q", ide.Field, tt.errorField)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.ContentHash() != testHash {
				t.Errorf("hash = %q, want normalized %q", d.ContentHash(), testHash)
			}
			if d.OrgScope() != "acme" {
				t.Errorf("org = %q, want acme", d.OrgScope())
			}
		})
	}
}

func TestDescriptorCopiesInputs(t *testing.T) {
	sig := []uint64{1, 2, 3}
	emb := []float32{1, 2}
	d, err := NewDescriptor(Request{ContentHash: testHash, OrgScope: "acme", FuzzySignature: sig, Embedding: emb})
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}

	sig[0] = 99
	emb[0] = 99
	if d.FuzzySignature()[0] != 1 {
		t.Error("descriptor signature changed after caller mutation")
	}
	if d.Embedding()[0] != 1 {
		t.Error("descriptor embedding changed after caller mutation")
	}

	got := d.FuzzySignature()
	got[1] = 42
	if d.FuzzySignature()[1] != 2 {
		t.Error("accessor exposed internal slice")
	}
}

func TestDescriptorKey(t *testing.T) {
	d, err := NewDescriptor(Request{ContentHash: testHash, OrgScope: "acme"})
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	k := d.Key()
	if k.ContentHash != testHash || k.OrgScope != "acme" {
		t.Errorf("unexpected key %+v", k)
	}
	if d.HasEmbedding() || d.HasFuzzySignature() {
		t.Error("expected optional signals to be absent")
	}
}

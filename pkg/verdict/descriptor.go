package verdict

import (
	"math"
	"strings"
)

const (
	minHashLength = 32
	maxHashLength = 128
)

// Request is the inbound, unvalidated form of a file descriptor.
type Request struct {
	RequestID      string    `json:"request_id,omitempty" yaml:"request_id"`
	ContentHash    string    `json:"content_hash" yaml:"content_hash"`
	FuzzySignature []uint64  `json:"fuzzy_signature,omitempty" yaml:"fuzzy_signature"`
	Embedding      []float32 `json:"embedding,omitempty" yaml:"embedding"`
	SizeBytes      int64     `json:"size_bytes" yaml:"size_bytes"`
	OrgScope       string    `json:"org_scope" yaml:"org_scope"`
}

// Descriptor is a validated request. The zero value is not valid; build
// one with NewDescriptor.
type Descriptor struct {
	contentHash    string
	fuzzySignature []uint64
	embedding      []float32
	sizeBytes      int64
	orgScope       string
}

// NewDescriptor validates req and returns an immutable Descriptor.
// The returned error is always an *InvalidDescriptorError.
func NewDescriptor(req Request) (Descriptor, error) {
	hash, err := NormalizeHash(req.ContentHash)
	if err != nil {
		return Descriptor{}, err
	}

	org := strings.TrimSpace(req.OrgScope)
	if org == "" {
		return Descriptor{}, NewInvalidDescriptorError("org_scope", "is required")
	}

	if req.SizeBytes < 0 {
		return Descriptor{}, NewInvalidDescriptorError("size_bytes", "must be non-negative")
	}

	if len(req.Embedding) > 0 {
		var norm float64
		for _, v := range req.Embedding {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return Descriptor{}, NewInvalidDescriptorError("embedding", "contains NaN or Inf")
			}
			norm += f * f
		}
		if norm == 0 {
			return Descriptor{}, NewInvalidDescriptorError("embedding", "is a zero vector")
		}
	}

	return Descriptor{
		contentHash:    hash,
		fuzzySignature: append([]uint64(nil), req.FuzzySignature...),
		embedding:      append([]float32(nil), req.Embedding...),
		sizeBytes:      req.SizeBytes,
		orgScope:       org,
	}, nil
}

// NormalizeHash trims and lower-cases a hex content hash and checks it.
func NormalizeHash(h string) (string, error) {
	h = strings.ToLower(strings.TrimSpace(h))
	if h == "" {
		return "", NewInvalidDescriptorError("content_hash", "is required")
	}
	if len(h) < minHashLength || len(h) > maxHashLength {
		return "", NewInvalidDescriptorError("content_hash", "must be 32 to 128 hex characters")
	}
	for _, r := range h {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", NewInvalidDescriptorError("content_hash", "must be hexadecimal")
		}
	}
	return h, nil
}

func (d Descriptor) ContentHash() string { return d.contentHash }
func (d Descriptor) SizeBytes() int64    { return d.sizeBytes }
func (d Descriptor) OrgScope() string    { return d.orgScope }

// FuzzySignature returns a copy of the MinHash signature, or nil.
func (d Descriptor) FuzzySignature() []uint64 {
	if len(d.fuzzySignature) == 0 {
		return nil
	}
	return append([]uint64(nil), d.fuzzySignature...)
}

// Embedding returns a copy of the embedding vector, or nil.
func (d Descriptor) Embedding() []float32 {
	if len(d.embedding) == 0 {
		return nil
	}
	return append([]float32(nil), d.embedding...)
}

func (d Descriptor) HasFuzzySignature() bool { return len(d.fuzzySignature) > 0 }
func (d Descriptor) HasEmbedding() bool      { return len(d.embedding) > 0 }

// Key returns the cache key for this descriptor.
func (d Descriptor) Key() Key {
	return Key{ContentHash: d.contentHash, OrgScope: d.orgScope}
}

// Key identifies a cached decision.
type Key struct {
	ContentHash string `json:"content_hash"`
	OrgScope    string `json:"org_scope"`
}

func (k Key) String() string {
	return k.ContentHash + "/" + k.OrgScope
}

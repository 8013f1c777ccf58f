package fingerprint

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/filegate/pkg/verdict"
)

// File is the on-disk format accepted by LoadFile.
//
//	fingerprints:
//	  - content_hash: 9f86d0...
//	    org_scope: acme
//	    classification: MALICIOUS
//	    size_bytes: 1024
//	    fuzzy_signature: [1, 2, 3]
type File struct {
	Fingerprints []verdict.Fingerprint `yaml:"fingerprints"`
}

// Writer receives fingerprints from the loader.
type Writer interface {
	Put(ctx context.Context, fp *verdict.Fingerprint) error
}

// LoadFile reads a YAML fingerprint file and writes every entry to w.
// It returns the number of fingerprints written.
func LoadFile(ctx context.Context, path string, w Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open fingerprint file: %w", err)
	}
	defer f.Close()
	return Load(ctx, f, w)
}

// Load decodes a fingerprint document from r and writes it to w.
func Load(ctx context.Context, r io.Reader, w Writer) (int, error) {
	var doc File
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("failed to parse fingerprint file: %w", err)
	}

	for i := range doc.Fingerprints {
		fp := &doc.Fingerprints[i]
		hash, err := verdict.NormalizeHash(fp.ContentHash)
		if err != nil {
			return i, fmt.Errorf("fingerprint %d: %w", i, err)
		}
		fp.ContentHash = hash
		fp.OrgScope = strings.TrimSpace(fp.OrgScope)
		if fp.OrgScope == "" {
			return i, fmt.Errorf("fingerprint %d: org_scope is required", i)
		}
		if fp.Classification == 0 {
			fp.Classification = verdict.ClassUnknown
		}
		if err := w.Put(ctx, fp); err != nil {
			return i, fmt.Errorf("fingerprint %d: %w", i, err)
		}
	}
	return len(doc.Fingerprints), nil
}

package cache

import (
	"context"
	"time"

	"mercator-hq/filegate/pkg/verdict"
)

// Store is the backing store for cache entries.
type Store interface {
	// Get returns (nil, nil) when key is absent and a
	// *verdict.CacheCorruptError when the stored value cannot be decoded.
	Get(ctx context.Context, key verdict.Key) (*Entry, error)

	// Set stores e until e.ExpiresAt.
	Set(ctx context.Context, e *Entry) error

	Delete(ctx context.Context, key verdict.Key) error

	// DeleteHash removes the entries for hash in every org.
	DeleteHash(ctx context.Context, hash string) (int, error)

	// Purge removes every entry.
	Purge(ctx context.Context) (int, error)

	// Claim marks key as being computed by owner for ttl. It returns
	// false when another owner holds an unexpired claim.
	Claim(ctx context.Context, key verdict.Key, owner string, ttl time.Duration) (bool, error)

	// Release drops owner's claim on key.
	Release(ctx context.Context, key verdict.Key, owner string) error

	Ping(ctx context.Context) error
	Close() error
}

// sizer is implemented by stores that can report their entry count cheaply.
type sizer interface {
	Len() int
}

package cache

import (
	"errors"
	"time"

	"mercator-hq/filegate/pkg/verdict"
)

// Source says where a resolved decision came from.
type Source string

const (
	// SourceCache means a valid cache entry was served.
	SourceCache Source = "cache"
	// SourceComputed means this caller ran the computation.
	SourceComputed Source = "computed"
	// SourceCoalesced means this caller waited on another caller's computation.
	SourceCoalesced Source = "coalesced"
)

// Entry is a cached decision.
type Entry struct {
	Key       verdict.Key      `json:"key"`
	Decision  verdict.Decision `json:"decision"`
	StoredAt  time.Time        `json:"stored_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Valid reports whether the entry may still be served at now.
func (e *Entry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// check rejects entries that decoded but cannot be a real decision.
func (e *Entry) check(key verdict.Key) error {
	switch {
	case e.Key != key:
		return errors.New("entry key does not match lookup key")
	case e.Decision.ID == "":
		return errors.New("decision has no id")
	case e.Decision.Outcome == 0:
		return errors.New("decision has no outcome")
	case e.Decision.Reason == 0:
		return errors.New("decision has no reason")
	case e.ExpiresAt.IsZero():
		return errors.New("entry has no expiry")
	}
	return nil
}

package verdict

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSignalUnavailable matches any *SignalUnavailableError.
	ErrSignalUnavailable = errors.New("signal unavailable")

	// ErrBackendUnreachable matches any *BackendUnreachableError.
	ErrBackendUnreachable = errors.New("backend unreachable")

	// ErrInvalidDescriptor matches any *InvalidDescriptorError.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrCacheCorrupt matches any *CacheCorruptError.
	ErrCacheCorrupt = errors.New("cache entry corrupt")
)

// SignalUnavailableError reports that one similarity method failed or timed out.
type SignalUnavailableError struct {
	Method  Method
	Timeout bool
	Cause   error
}

func (e *SignalUnavailableError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s lookup timed out: %v", e.Method, e.Cause)
	}
	return fmt.Sprintf("%s lookup failed: %v", e.Method, e.Cause)
}

func (e *SignalUnavailableError) Unwrap() error { return e.Cause }

func (e *SignalUnavailableError) Is(target error) bool { return target == ErrSignalUnavailable }

// BackendUnreachableError reports that every issued lookup failed.
type BackendUnreachableError struct {
	Causes []error
}

func (e *BackendUnreachableError) Error() string {
	msgs := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("all lookups failed: %s", strings.Join(msgs, "; "))
}

func (e *BackendUnreachableError) Unwrap() []error { return e.Causes }

func (e *BackendUnreachableError) Is(target error) bool { return target == ErrBackendUnreachable }

// InvalidDescriptorError reports a malformed request field.
type InvalidDescriptorError struct {
	Field  string
	Reason string
}

// NewInvalidDescriptorError creates an InvalidDescriptorError.
func NewInvalidDescriptorError(field, reason string) *InvalidDescriptorError {
	return &InvalidDescriptorError{Field: field, Reason: reason}
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid descriptor: %s %s", e.Field, e.Reason)
}

func (e *InvalidDescriptorError) Is(target error) bool { return target == ErrInvalidDescriptor }

// CacheCorruptError reports an unreadable cache entry.
type CacheCorruptError struct {
	Key   Key
	Cause error
}

// NewCacheCorruptError creates a CacheCorruptError.
func NewCacheCorruptError(key Key, cause error) *CacheCorruptError {
	return &CacheCorruptError{Key: key, Cause: cause}
}

func (e *CacheCorruptError) Error() string {
	return fmt.Sprintf("cache entry %s corrupt: %v", e.Key, e.Cause)
}

func (e *CacheCorruptError) Unwrap() error { return e.Cause }

func (e *CacheCorruptError) Is(target error) bool { return target == ErrCacheCorrupt }

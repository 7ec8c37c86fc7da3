package entities

import (
	"errors"
	"fmt"
)

// TransientNetworkError reports a failed fetch (DNS, connection, HTTP status).
// Callers may retry.
type TransientNetworkError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a bundle whose fingerprint or signature does not
// match. It is fatal: a corrupted upstream bundle cannot self-heal.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
	Err      error // set for signature failures
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integrity check failed for %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// PathTraversalError reports an archive entry resolving outside the extraction root
type PathTraversalError struct {
	Entry  string
	Target string
	Root   string
}

func (e *PathTraversalError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("archive entry %q resolves to %s, outside extraction root %s", e.Entry, e.Target, e.Root)
	}
	return fmt.Sprintf("archive entry %q escapes extraction root %s", e.Entry, e.Root)
}

// IsTransient reports whether err wraps a TransientNetworkError
func IsTransient(err error) bool {
	var target *TransientNetworkError
	return errors.As(err, &target)
}

// IsIntegrity reports whether err wraps an IntegrityError
func IsIntegrity(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}

// IsPathTraversal reports whether err wraps a PathTraversalError
func IsPathTraversal(err error) bool {
	var target *PathTraversalError
	return errors.As(err, &target)
}

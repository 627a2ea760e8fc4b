package service

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a lookup for an id that does not exist. Handlers map it
// to 404 instead of a generic failure.
var ErrNotFound = errors.New("record not found")

// ValidationError rejects a request before any store mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError covers duplicate publish targets and wrong-origin discards.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// UpstreamError wraps a crawler, remote-platform or external-API failure.
// The upstream message is carried verbatim for diagnosis.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *UpstreamError) Unwrap() error { return e.Err }

// ConsistencyError records the window where a remote write succeeded but the
// local follow-up commit failed. The remote side is not rolled back; the
// error carries everything an operator needs to reconcile by hand.
type ConsistencyError struct {
	PID    uint
	NID    uint
	Remote string
	Err    error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("remote write %s succeeded for nid=%d but local update of pid=%d failed: %v",
		e.Remote, e.NID, e.PID, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

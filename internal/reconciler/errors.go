package reconciler

import (
	"errors"
	"fmt"
)

// ErrPassInProgress is returned by Sync when a reconciliation pass is
// already running. Overlapping passes are refused, never queued.
var ErrPassInProgress = errors.New("reconciliation pass already in progress")

// CommitError is a failure of the single transaction that persists a pass.
// Nothing from the pass was written.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit of reconciliation pass failed: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// ParseError is a malformed value in upstream data. It degrades the single
// field, never the record or the pass.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

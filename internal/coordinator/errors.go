package coordinator

import (
	"errors"
	"fmt"
)

// AdapterFailure records an adapter whose Fetch returned an error or
// panicked. The failure is confined to that adapter; sibling adapters and
// the rest of the run continue.
type AdapterFailure struct {
	// Adapter is the failing adapter's name.
	Adapter string

	// Err is the error returned by Fetch, or a synthesized error for a panic.
	Err error

	// Panic holds the recovered value when Fetch panicked.
	Panic any
}

// Error implements the error interface.
func (e *AdapterFailure) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("adapter %s panicked: %v", e.Adapter, e.Panic)
	}
	return fmt.Sprintf("adapter %s failed: %v", e.Adapter, e.Err)
}

// Unwrap returns the underlying error.
func (e *AdapterFailure) Unwrap() error {
	return e.Err
}

// MergeFailure records a group that could not be merged into its core table.
// Nothing from the failed merge was committed; the next cycle retries it.
type MergeFailure struct {
	CoreType  string
	MCVersion string
	Err       error
	Panic     any
}

// Error implements the error interface.
func (e *MergeFailure) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("merge %s/%s panicked: %v", e.CoreType, e.MCVersion, e.Panic)
	}
	return fmt.Sprintf("merge %s/%s: %v", e.CoreType, e.MCVersion, e.Err)
}

// Unwrap returns the underlying error.
func (e *MergeFailure) Unwrap() error {
	return e.Err
}

// IsAdapterFailure returns true if err is or wraps an *AdapterFailure.
// Uses errors.As to handle wrapped errors.
func IsAdapterFailure(err error) bool {
	var af *AdapterFailure
	return errors.As(err, &af)
}

// IsMergeFailure returns true if err is or wraps a *MergeFailure.
func IsMergeFailure(err error) bool {
	var mf *MergeFailure
	return errors.As(err, &mf)
}

// ErrAbandoned marks a merge that never started because its context ended
// first. Abandoned merges have no persistence side effects.
var ErrAbandoned = errors.New("merge abandoned before start")

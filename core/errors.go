package core

import (
	"errors"
	"fmt"
)

// ValidationError is a custom error type for validation failures.
type ValidationError struct {
	Message string
	Field   string // e.g., "metric", "tag_name", "tag_value"
	Value   string // The invalid value
}

type UnsupportedTypeError struct {
	Message string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type value: %s", e.Message)
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	// Use errors.As to check if the error (or any error in its chain) is a ValidationError.
	return errors.As(err, &validationError)
}

func IsUnsupportedError(err error) bool {
	var unsupportedError *UnsupportedTypeError
	return errors.As(err, &unsupportedError)
}

// Error taxonomy for the observation store. Write paths catch, roll the
// engine back to the pre-call version, and rethrow one of these; read
// paths never mutate and let cursor errors propagate to the caller.
var (
	// ErrStorageUnavailable means the underlying engine failed to open, the
	// disk is full, or the configured storage path is invalid. Fatal for
	// the store; the caller should not retry without operator action.
	ErrStorageUnavailable = errors.New("core: storage unavailable")

	// ErrUnknownStream means a write named a streamId absent from the
	// registry. Rejected before any mutation.
	ErrUnknownStream = errors.New("core: unknown stream")

	// ErrUnknownFoi means a write named a non-zero foiId absent from the
	// FoI store. Rejected before any mutation, mirroring ErrUnknownStream.
	ErrUnknownFoi = errors.New("core: unknown feature of interest")

	// ErrInvalidKey means the opaque id could not be decoded. get/put/remove
	// treat this as not-found; it never aborts the containing query.
	ErrInvalidKey = errors.New("core: invalid key")

	// ErrNotFound is returned by get/put/remove for a well-formed id that
	// names no record, and by InvalidKey-triggered lookups alike.
	ErrNotFound = errors.New("core: not found")

	// ErrTooBroad means the query planner's series cap was exceeded before
	// any page was read. The caller must refine the filter.
	ErrTooBroad = errors.New("core: query too broad, refine filter")

	// ErrConflict is reserved for future use; this layer is last-write-wins
	// and never raises it itself.
	ErrConflict = errors.New("core: conflict")

	// ErrTransient wraps a retryable engine-level failure. Upper layers may
	// retry the call.
	ErrTransient = errors.New("core: transient engine error")

	// ErrCorruption means a mismatch was detected between the three
	// observation indexes (e.g. a SeriesByFoi entry with no SeriesByStream
	// counterpart). Surfaced, never silently repaired.
	ErrCorruption = errors.New("core: index corruption detected")

	// ErrMixedBinWidth is returned by the statistics engine when
	// aggregateFois=true would sum histogram bins of different widths into
	// one bucket.
	ErrMixedBinWidth = errors.New("core: cannot aggregate histograms of differing bin width")

	// ErrStreamRetired means a write targeted a stream whose valid-time has
	// been closed. Retired streams are queryable but reject writes.
	ErrStreamRetired = errors.New("core: stream is retired")
)

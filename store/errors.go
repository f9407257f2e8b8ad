package store

import "errors"

var (
	// ErrUnavailable indicates the document store cannot be reached or
	// refused the connection. Surfaced to the caller, never silently
	// degraded.
	ErrUnavailable = errors.New("document store unavailable")

	// ErrInvalidField indicates a distinct-values request for a field
	// the detail documents do not carry.
	ErrInvalidField = errors.New("invalid field name")
)

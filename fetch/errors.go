package fetch

import (
	"errors"
	"fmt"
)

// ErrUnexpectedStatus is returned when the source responds with a
// non-2xx status code.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Error is a terminal fetch failure, surfaced after retries are
// exhausted. StatusCode is the last HTTP status seen, or zero when the
// failure never produced a response.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

package scrape

import "errors"

// ErrUnparseable is returned when a page cannot be parsed as HTML at
// all. Missing optional fields never produce this; partial extraction
// is normal.
var ErrUnparseable = errors.New("page not parseable")

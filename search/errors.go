package search

import "errors"

var (
	// ErrIndexUnavailable indicates the search engine could not be
	// reached or rejected a request outright.
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrNoPreferences is returned by Recommend when neither facet
	// preferences nor query text were supplied. The caller must provide
	// at least one signal; there is nothing to rank otherwise.
	ErrNoPreferences = errors.New("no preferences or query text supplied")
)

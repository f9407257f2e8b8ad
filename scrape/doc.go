// Package scrape turns raw catalog and detail page markup into domain
// records. Both parsers are pure functions of their input: they do no
// I/O and tolerate missing optional fields, since the source site's
// layout varies by item type.
package scrape

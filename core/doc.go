// Package core defines the domain records shared by every layer of the
// pipeline: the lightweight catalog entry, the rich detail record, and
// the search index projection, plus the sanitizers used when mapping
// scraped text into them.
package core

// Package store defines the repository contracts for the two-tier
// document cache: a catalog collection of lightweight list rows and a
// detail collection of rich records, both keyed by the stable item id.
// The cache exclusively owns persisted state; the search index is a
// derived projection of it.
package store

// Package search projects the document cache into an Elasticsearch
// index and serves the two query families over it. Both Search and
// Recommend run a strict-first, relaxed-fallback cascade of at most two
// queries; results carry the tier that produced them. The cache remains
// the source of truth and the index is rebuildable from it at any time.
package search

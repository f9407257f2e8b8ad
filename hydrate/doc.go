// Package hydrate fills the detail cache for catalog rows. Freshness is
// decided per record against a caller-supplied window; stale records
// are fetched through a bounded worker pool and written back in one
// batch, and individual fetch failures never fail the whole run.
package hydrate

package store

import (
	"context"
	"time"

	"github.com/animatch/animatch/core"
)

// CatalogRepository persists the lightweight catalog rows, one document
// per item id. All writes are idempotent merge upserts.
type CatalogRepository interface {
	// UpsertListEntries bulk-upserts catalog rows keyed by id. Entries
	// without an id are not written; their count is returned as skipped.
	// Upserts merge fields rather than replacing whole documents.
	UpsertListEntries(ctx context.Context, entries []core.ListEntry) (written, skipped int, err error)

	// ReadListWindow returns cached rows with rank >= offset+1, sorted
	// by rank ascending, at most limit. Pagination is rank-based, not
	// cursor-based, so sparse caches page correctly.
	ReadListWindow(ctx context.Context, offset, limit int) ([]core.ListEntry, error)

	// ReadListByIDs returns matching rows in the order of ids, omitting
	// ids with no cached row.
	ReadListByIDs(ctx context.Context, ids []int) ([]core.ListEntry, error)

	// CountList returns the number of cached catalog rows.
	CountList(ctx context.Context) (int64, error)
}

// DetailRepository persists the rich detail records, one document per
// item id, each stamped with the time it was fetched.
type DetailRepository interface {
	// UpsertDetail merge-upserts one detail record and stamps its
	// fetched_at with the current time, unconditionally.
	UpsertDetail(ctx context.Context, detail *core.Detail) error

	// UpsertDetails applies a batch of detail upserts as one bulk
	// write. Each record's fetched_at is stamped at write time.
	UpsertDetails(ctx context.Context, details []*core.Detail) error

	// ReadDetailsByIDs returns matching records in the order of ids,
	// omitting ids with no cached record.
	ReadDetailsByIDs(ctx context.Context, ids []int) ([]*core.Detail, error)

	// ReadAllDetails streams up to limit cached detail records;
	// limit <= 0 means all.
	ReadAllDetails(ctx context.Context, limit int) ([]*core.Detail, error)

	// CountDetails returns the number of cached detail records.
	CountDetails(ctx context.Context) (int64, error)

	// DistinctValues flattens the named field across all detail
	// documents into a deduplicated, sorted set of non-empty strings.
	DistinctValues(ctx context.Context, field string) ([]string, error)
}

// CatalogScanner streams catalog rows for index projection; limit <= 0
// means all. Kept separate so repository consumers that never project
// do not depend on it.
type CatalogScanner interface {
	ReadAllList(ctx context.Context, limit int) ([]core.ListEntry, error)
}

// Clock abstracts time for freshness stamping; production code uses
// time.Now, tests substitute fixed instants.
type Clock func() time.Time

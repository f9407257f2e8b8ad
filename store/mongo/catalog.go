package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/animatch/animatch/core"
	"github.com/animatch/animatch/store"
)

// CatalogRepository stores one document per catalog row in the
// anime_list collection, keyed by item id.
type CatalogRepository struct {
	col    *mongo.Collection
	logger *slog.Logger
}

var _ store.CatalogRepository = (*CatalogRepository)(nil)
var _ store.CatalogScanner = (*CatalogRepository)(nil)

// UpsertListEntries bulk-upserts catalog rows. Rows without an id are
// counted as skipped and not written. The write is unordered: one bad
// document does not block the rest.
func (r *CatalogRepository) UpsertListEntries(ctx context.Context, entries []core.ListEntry) (int, int, error) {
	models := make([]mongo.WriteModel, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if e.ID == 0 {
			skipped++
			continue
		}
		doc, err := mergeDoc(e)
		if err != nil {
			return 0, skipped, fmt.Errorf("encode list entry %d: %w", e.ID, err)
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": e.ID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	if len(models) == 0 {
		r.logger.Warn("nothing to upsert", "skipped", skipped)
		return 0, skipped, nil
	}

	res, err := r.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, skipped, fmt.Errorf("upsert list entries: %w", err)
	}
	written := int(res.MatchedCount) + len(res.UpsertedIDs)
	r.logger.Info("catalog upsert",
		"matched", res.MatchedCount, "modified", res.ModifiedCount,
		"upserted", len(res.UpsertedIDs), "skipped", skipped)
	return written, skipped, nil
}

// ReadListWindow reads rows with rank >= offset+1 sorted by rank.
// Rank-based paging stays correct when the cache is sparse; a cursor
// offset would return the wrong window.
func (r *CatalogRepository) ReadListWindow(ctx context.Context, offset, limit int) ([]core.ListEntry, error) {
	if offset < 0 {
		offset = 0
	}
	cur, err := r.col.Find(ctx,
		bson.M{"rank": bson.M{"$gte": offset + 1}},
		options.Find().SetSort(bson.D{{Key: "rank", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("read list window: %w", err)
	}
	var entries []core.ListEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode list window: %w", err)
	}
	return entries, nil
}

// ReadListByIDs returns rows in the order of ids, omitting misses.
func (r *CatalogRepository) ReadListByIDs(ctx context.Context, ids []int) ([]core.ListEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("read list by ids: %w", err)
	}
	var found []core.ListEntry
	if err := cur.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decode list by ids: %w", err)
	}

	byID := make(map[int]core.ListEntry, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	ordered := make([]core.ListEntry, 0, len(found))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

// ReadAllList streams catalog rows for index projection.
func (r *CatalogRepository) ReadAllList(ctx context.Context, limit int) ([]core.ListEntry, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("read all list: %w", err)
	}
	var entries []core.ListEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode all list: %w", err)
	}
	return entries, nil
}

// CountList returns the catalog collection size.
func (r *CatalogRepository) CountList(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count list: %w", err)
	}
	return n, nil
}

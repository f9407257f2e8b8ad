package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/animatch/animatch/core"
	"github.com/animatch/animatch/store"
)

// distinctFields are the detail document fields that may be enumerated
// through DistinctValues.
var distinctFields = map[string]struct{}{
	"genres": {}, "themes": {}, "studios": {}, "producers": {},
	"demographic": {}, "type": {}, "source": {}, "status": {},
}

// DetailRepository stores one document per detail record in the
// anime_details collection, keyed by item id.
type DetailRepository struct {
	col    *mongo.Collection
	logger *slog.Logger
	now    store.Clock
}

var _ store.DetailRepository = (*DetailRepository)(nil)

// UpsertDetail merge-upserts one record, stamping fetched_at with the
// current time unconditionally.
func (r *DetailRepository) UpsertDetail(ctx context.Context, detail *core.Detail) error {
	return r.UpsertDetails(ctx, []*core.Detail{detail})
}

// UpsertDetails applies a batch of upserts as one unordered bulk write.
func (r *DetailRepository) UpsertDetails(ctx context.Context, details []*core.Detail) error {
	models := make([]mongo.WriteModel, 0, len(details))
	stamp := r.now().UTC()
	for _, d := range details {
		if d == nil || d.ID == 0 {
			continue
		}
		doc, err := mergeDoc(*d)
		if err != nil {
			return fmt.Errorf("encode detail %d: %w", d.ID, err)
		}
		doc["fetched_at"] = stamp
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": d.ID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	if _, err := r.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert details: %w", err)
	}
	return nil
}

// ReadDetailsByIDs returns records in the order of ids, omitting misses.
func (r *DetailRepository) ReadDetailsByIDs(ctx context.Context, ids []int) ([]*core.Detail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("read details by ids: %w", err)
	}
	var found []*core.Detail
	if err := cur.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decode details by ids: %w", err)
	}

	byID := make(map[int]*core.Detail, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}
	ordered := make([]*core.Detail, 0, len(found))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			ordered = append(ordered, d)
		}
	}
	return ordered, nil
}

// ReadAllDetails streams detail records for index projection.
func (r *DetailRepository) ReadAllDetails(ctx context.Context, limit int) ([]*core.Detail, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("read all details: %w", err)
	}
	var details []*core.Detail
	if err := cur.All(ctx, &details); err != nil {
		return nil, fmt.Errorf("decode all details: %w", err)
	}
	return details, nil
}

// CountDetails returns the detail collection size.
func (r *DetailRepository) CountDetails(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count details: %w", err)
	}
	return n, nil
}

// DistinctValues enumerates the named field across all detail
// documents. List-valued fields arrive already flattened from the
// server; values are deduplicated, emptied of blanks and sorted.
func (r *DetailRepository) DistinctValues(ctx context.Context, field string) ([]string, error) {
	if _, ok := distinctFields[field]; !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidField, field)
	}

	raw, err := r.col.Distinct(ctx, field, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}

	seen := make(map[string]struct{})
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			if val != "" {
				seen[val] = struct{}{}
			}
		case primitive.A:
			for _, item := range val {
				if s, ok := item.(string); ok && s != "" {
					seen[s] = struct{}{}
				}
			}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

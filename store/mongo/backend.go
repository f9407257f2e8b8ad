package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/animatch/animatch/store"
)

const (
	listCollection   = "anime_list"
	detailCollection = "anime_details"
)

// Backend wraps a MongoDB client scoped to the cache database and hands
// out the repositories built on it.
type Backend struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
	now    store.Clock
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
	}
}

// WithClock substitutes the clock used to stamp fetched_at.
func WithClock(now store.Clock) BackendOption {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// Open connects to the document store and verifies the connection with
// a ping. A store that cannot be reached is an error here, never a
// silent fallback.
func Open(ctx context.Context, uri, dbName string, opts ...BackendOption) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	b := &Backend{
		client: client,
		db:     client.Database(dbName),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close disconnects the underlying client.
func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

// NewCatalogRepository returns the catalog-rows repository.
func (b *Backend) NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{col: b.db.Collection(listCollection), logger: b.logger}
}

// NewDetailRepository returns the detail-records repository.
func (b *Backend) NewDetailRepository() *DetailRepository {
	return &DetailRepository{col: b.db.Collection(detailCollection), logger: b.logger, now: b.now}
}

// mergeDoc converts a record into the $set payload of a merge upsert.
// The immutable _id is carried in the filter, not the update, and
// omitempty keeps absent fields out so earlier writes are never
// clobbered by a later partial upsert.
func mergeDoc(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "_id")
	return m, nil
}

package covercache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// ImageSource retrieves the raw bytes of a cover image URL. The fetch
// client satisfies this.
type ImageSource interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Image is a cached cover image.
type Image struct {
	Data        []byte
	ContentType string
	FetchedAt   time.Time
}

// Cache is a disk-backed TTL cache of cover images keyed by URL. Covers
// change rarely but are requested often, so entries simply expire and
// refetch rather than being invalidated.
type Cache struct {
	db     *badger.DB
	source ImageSource
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime. Default is 7 days.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock substitutes the clock used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// badgerLoggerAdapter routes badger's internal logging through slog.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open creates a Cache at path. An empty path opens an in-memory cache,
// which tests use.
func Open(path string, source ImageSource, opts ...Option) (*Cache, error) {
	c := &Cache{
		source: source,
		ttl:    7 * 24 * time.Hour,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	var dbOpts badger.Options
	if path == "" {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbOpts = badger.DefaultOptions(path)
	}
	dbOpts.Logger = &badgerLoggerAdapter{logger: c.logger}
	dbOpts.Compression = options.None

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open cover cache: %w", err)
	}
	c.db = db
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cover image for url, fetching and caching it on a
// miss. Expired entries behave exactly like misses.
func (c *Cache) Get(ctx context.Context, url string) (*Image, error) {
	if url == "" {
		return nil, errors.New("empty cover url")
	}

	var img *Image
	err := c.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(url))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeEntry(val)
			if err != nil {
				return err
			}
			img = decoded
			return nil
		})
	})
	switch {
	case err == nil:
		return img, nil
	case !errors.Is(err, badger.ErrKeyNotFound):
		return nil, fmt.Errorf("read cover cache: %w", err)
	}

	body, err := c.source.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	img = &Image{
		Data:        []byte(body),
		ContentType: http.DetectContentType([]byte(body)),
		FetchedAt:   c.now().UTC(),
	}

	payload := encodeEntry(img)
	err = c.db.Update(func(tx *badger.Txn) error {
		return tx.SetEntry(badger.NewEntry([]byte(url), payload).WithTTL(c.ttl))
	})
	if err != nil {
		// Serving the image matters more than caching it.
		c.logger.Warn("cover cache write failed", "url", url, "err", err)
	}
	return img, nil
}

// entry layout: uint16 content-type length, content-type bytes, int64
// unix-seconds fetch stamp, image bytes.
func encodeEntry(img *Image) []byte {
	ct := []byte(img.ContentType)
	buf := make([]byte, 0, 2+len(ct)+8+len(img.Data))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ct)))
	buf = append(buf, ct...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(img.FetchedAt.Unix()))
	buf = append(buf, img.Data...)
	return buf
}

func decodeEntry(val []byte) (*Image, error) {
	if len(val) < 2 {
		return nil, errors.New("cover cache entry truncated")
	}
	ctLen := int(binary.BigEndian.Uint16(val))
	if len(val) < 2+ctLen+8 {
		return nil, errors.New("cover cache entry truncated")
	}
	ct := string(val[2 : 2+ctLen])
	stamp := int64(binary.BigEndian.Uint64(val[2+ctLen : 2+ctLen+8]))
	data := make([]byte, len(val)-2-ctLen-8)
	copy(data, val[2+ctLen+8:])
	return &Image{
		Data:        data,
		ContentType: ct,
		FetchedAt:   time.Unix(stamp, 0).UTC(),
	}, nil
}

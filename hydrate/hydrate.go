package hydrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/animatch/animatch/core"
	"github.com/animatch/animatch/store"
)

// DetailSource produces a full detail record for one catalog item.
type DetailSource interface {
	FetchDetail(ctx context.Context, id int, url string) (*core.Detail, error)
}

// Hydrator fills the detail cache for a set of catalog rows. Cached
// records younger than the freshness window are served as-is; the rest
// are fetched concurrently and written back in a single batch.
type Hydrator struct {
	details    store.DetailRepository
	source     DetailSource
	maxWorkers int
	now        store.Clock
	logger     *slog.Logger
}

// Option configures a Hydrator.
type Option func(*Hydrator)

// WithMaxWorkers caps the fetch pool size. Default is 8; the pool never
// grows past the number of stale items anyway.
func WithMaxWorkers(n int) Option {
	return func(h *Hydrator) {
		if n > 0 {
			h.maxWorkers = n
		}
	}
}

// WithClock substitutes the clock used for freshness checks.
func WithClock(now store.Clock) Option {
	return func(h *Hydrator) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hydrator) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a Hydrator over the given detail cache and source.
func New(details store.DetailRepository, source DetailSource, opts ...Option) *Hydrator {
	h := &Hydrator{
		details:    details,
		source:     source,
		maxWorkers: 8,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hydrate returns detail records for entries, fetching the ones whose
// cached copy is missing or older than maxAge. Per-item fetch failures
// are logged and skipped, never fatal: the returned slice preserves the
// input order and simply omits items that still have no record. All
// fetched records land in the cache through one bulk write.
func (h *Hydrator) Hydrate(ctx context.Context, entries []core.ListEntry, maxAge time.Duration) ([]*core.Detail, error) {
	ids := make([]int, 0, len(entries))
	urlByID := make(map[int]string, len(entries))
	for _, e := range entries {
		if e.ID == 0 {
			continue
		}
		ids = append(ids, e.ID)
		urlByID[e.ID] = e.SourceURL
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cached, err := h.details.ReadDetailsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	freshAt := h.now()
	fresh := make(map[int]struct{}, len(cached))
	for _, d := range cached {
		if d.Fresh(freshAt, maxAge) {
			fresh[d.ID] = struct{}{}
		}
	}

	var stale []int
	for _, id := range ids {
		if _, ok := fresh[id]; !ok {
			stale = append(stale, id)
		}
	}
	h.logger.Info("hydrating details", "total", len(ids), "fresh", len(fresh), "stale", len(stale))

	if len(stale) > 0 {
		fetched, failed, err := h.fetchAll(ctx, stale, urlByID)
		if err != nil {
			return nil, err
		}
		if len(fetched) > 0 {
			if err := h.details.UpsertDetails(ctx, fetched); err != nil {
				return nil, err
			}
		}
		if failed > 0 {
			h.logger.Warn("some detail fetches failed", "failed", failed, "fetched", len(fetched))
		}
	}

	return h.details.ReadDetailsByIDs(ctx, ids)
}

// fetchAll pulls the stale records through a bounded worker pool.
func (h *Hydrator) fetchAll(ctx context.Context, stale []int, urlByID map[int]string) ([]*core.Detail, int, error) {
	size := h.maxWorkers
	if len(stale) < size {
		size = len(stale)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, 0, fmt.Errorf("create fetch pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		fetched []*core.Detail
		failed  int
		wg      sync.WaitGroup
	)
	for _, id := range stale {
		id := id
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			d, err := h.source.FetchDetail(ctx, id, urlByID[id])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				h.logger.Warn("detail fetch failed", "id", id, "err", err)
				return
			}
			fetched = append(fetched, d)
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			failed++
			mu.Unlock()
			h.logger.Error("detail fetch not scheduled", "id", id, "err", submitErr)
		}
	}
	wg.Wait()
	return fetched, failed, nil
}

// GetOrFetch returns the detail record for one item, fetching and
// caching it only when the cached copy is missing or older than maxAge.
func (h *Hydrator) GetOrFetch(ctx context.Context, id int, url string, maxAge time.Duration) (*core.Detail, error) {
	cached, err := h.details.ReadDetailsByIDs(ctx, []int{id})
	if err != nil {
		return nil, err
	}
	if len(cached) == 1 && cached[0].Fresh(h.now(), maxAge) {
		return cached[0], nil
	}

	d, err := h.source.FetchDetail(ctx, id, url)
	if err != nil {
		return nil, err
	}
	if err := h.details.UpsertDetail(ctx, d); err != nil {
		return nil, err
	}

	stored, err := h.details.ReadDetailsByIDs(ctx, []int{id})
	if err != nil {
		return nil, err
	}
	if len(stored) == 1 {
		return stored[0], nil
	}
	return d, nil
}

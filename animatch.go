package animatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/animatch/animatch/config"
	"github.com/animatch/animatch/covercache"
	"github.com/animatch/animatch/core"
	"github.com/animatch/animatch/fetch"
	"github.com/animatch/animatch/hydrate"
	"github.com/animatch/animatch/scrape"
	"github.com/animatch/animatch/search"
	"github.com/animatch/animatch/store"
	storemongo "github.com/animatch/animatch/store/mongo"
)

const (
	baseURL        = "https://myanimelist.net"
	topCatalogURL  = baseURL + "/topanime.php"
	detailURLShape = baseURL + "/anime/%d"
)

// App wires the whole pipeline: fetcher, scraper, document cache,
// hydrator, search index and cover cache.
type App struct {
	cfg      *config.Config
	fetcher  *fetch.Client
	backend  *storemongo.Backend
	catalog  store.CatalogRepository
	scanner  store.CatalogScanner
	details  store.DetailRepository
	hydrator *hydrate.Hydrator
	index    *search.Index
	covers   *covercache.Cache
	logger   *slog.Logger
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	catalog         store.CatalogRepository
	scanner         store.CatalogScanner
	details         store.DetailRepository
	searchTransport http.RoundTripper
	logger          *slog.Logger
}

// WithRepositories injects cache repositories directly, bypassing the
// document store connection. Tests run the full pipeline against the
// in-memory store this way.
func WithRepositories(catalog store.CatalogRepository, scanner store.CatalogScanner, details store.DetailRepository) AppOption {
	return func(o *appOptions) {
		o.catalog = catalog
		o.scanner = scanner
		o.details = details
	}
}

// WithSearchTransport substitutes the search engine HTTP transport.
func WithSearchTransport(rt http.RoundTripper) AppOption {
	return func(o *appOptions) {
		o.searchTransport = rt
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New assembles an App from the configuration. Unless repositories are
// injected, it connects to the document store and fails fast when the
// store is unreachable.
func New(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &appOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	app := &App{cfg: cfg, logger: options.logger}

	app.fetcher = fetch.NewClient(
		fetch.WithTimeout(cfg.HTTPTimeout),
		fetch.WithRetries(cfg.HTTPRetries),
		fetch.WithBackoff(cfg.HTTPBackoff),
		fetch.WithPacing(cfg.HTTPPacing),
		fetch.WithLogger(app.logger),
	)

	if options.catalog != nil && options.details != nil {
		app.catalog = options.catalog
		app.scanner = options.scanner
		app.details = options.details
	} else {
		backend, err := storemongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase,
			storemongo.WithLogger(app.logger))
		if err != nil {
			return nil, err
		}
		app.backend = backend
		catalogRepo := backend.NewCatalogRepository()
		app.catalog = catalogRepo
		app.scanner = catalogRepo
		app.details = backend.NewDetailRepository()
	}

	app.hydrator = hydrate.New(app.details, hydrate.NewPageSource(app.fetcher),
		hydrate.WithMaxWorkers(cfg.HydrateMaxWorkers),
		hydrate.WithLogger(app.logger))

	searchOpts := []search.Option{
		search.WithIndexName(cfg.IndexName),
		search.WithLogger(app.logger),
	}
	if options.searchTransport != nil {
		searchOpts = append(searchOpts, search.WithTransport(options.searchTransport))
	}
	index, err := search.New(cfg.ESURL, searchOpts...)
	if err != nil {
		app.closeBackend(ctx)
		return nil, err
	}
	app.index = index

	covers, err := covercache.Open(cfg.CoverCachePath, app.fetcher,
		covercache.WithTTL(cfg.CoverCacheTTL),
		covercache.WithLogger(app.logger))
	if err != nil {
		app.closeBackend(ctx)
		return nil, err
	}
	app.covers = covers

	return app, nil
}

func (a *App) closeBackend(ctx context.Context) {
	if a.backend != nil {
		if err := a.backend.Close(ctx); err != nil {
			a.logger.Error("error closing document store", "err", err)
		}
	}
}

// Close releases the store connection and the cover cache.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.covers != nil {
		if err := a.covers.Close(); err != nil {
			a.logger.Error("error closing cover cache", "err", err)
			firstErr = err
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(ctx); err != nil {
			a.logger.Error("error closing document store", "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FetchCatalogPage pulls one ranking page starting at offset, parses
// it with the configured category exclusions and upserts the rows into
// the cache. It returns the parsed rows.
func (a *App) FetchCatalogPage(ctx context.Context, offset int) ([]core.ListEntry, error) {
	url := fmt.Sprintf("%s?limit=%d", topCatalogURL, offset)
	markup, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	entries, err := scrape.ParseCatalogPage(markup, a.cfg.ExcludedCategories)
	if err != nil {
		return nil, err
	}
	written, skipped, err := a.catalog.UpsertListEntries(ctx, entries)
	if err != nil {
		return nil, err
	}
	a.logger.Info("catalog page cached", "offset", offset, "written", written, "skipped", skipped)
	return entries, nil
}

// ReadCatalogWindow reads cached rows with rank above offset, in rank
// order, up to limit.
func (a *App) ReadCatalogWindow(ctx context.Context, offset, limit int) ([]core.ListEntry, error) {
	return a.catalog.ReadListWindow(ctx, offset, limit)
}

// ReadCatalogByIDs returns cached catalog rows for ids, in input order,
// omitting ids with no cached row. Search hits carry only the indexed
// fields; callers enrich them through this read to recover cover image
// URLs and episode counts for rendering.
func (a *App) ReadCatalogByIDs(ctx context.Context, ids []int) ([]core.ListEntry, error) {
	return a.catalog.ReadListByIDs(ctx, ids)
}

// CatalogCount returns the number of cached catalog rows.
func (a *App) CatalogCount(ctx context.Context) (int64, error) {
	return a.catalog.CountList(ctx)
}

// DetailCount returns the number of cached detail records.
func (a *App) DetailCount(ctx context.Context) (int64, error) {
	return a.details.CountDetails(ctx)
}

// HydrateWindow reads a rank window from the cache and hydrates its
// detail records, fetching any that are missing or older than maxAge.
// The result matches the window's rank order.
func (a *App) HydrateWindow(ctx context.Context, offset, limit int, maxAge time.Duration) ([]*core.Detail, error) {
	entries, err := a.catalog.ReadListWindow(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return a.hydrator.Hydrate(ctx, entries, maxAge)
}

// HydrateEntries hydrates detail records for the given rows, preserving
// their order.
func (a *App) HydrateEntries(ctx context.Context, entries []core.ListEntry, maxAge time.Duration) ([]*core.Detail, error) {
	return a.hydrator.Hydrate(ctx, entries, maxAge)
}

// GetOrFetchDetail returns the detail record for one item, fetching it
// only when the cached copy is missing or older than maxAge. The page
// URL comes from the cached catalog row when present.
func (a *App) GetOrFetchDetail(ctx context.Context, id int, maxAge time.Duration) (*core.Detail, error) {
	url := fmt.Sprintf(detailURLShape, id)
	if rows, err := a.catalog.ReadListByIDs(ctx, []int{id}); err == nil && len(rows) == 1 && rows[0].SourceURL != "" {
		url = rows[0].SourceURL
	}
	return a.hydrator.GetOrFetch(ctx, id, url, maxAge)
}

// ProjectSource names which cache collection feeds a projection.
type ProjectSource string

const (
	// ProjectList projects the lightweight catalog rows.
	ProjectList ProjectSource = "list"
	// ProjectDetails projects the rich detail records.
	ProjectDetails ProjectSource = "details"
)

// ProjectToIndex ensures the search index exists and bulk-indexes
// documents from the named cache collection, up to limit (<= 0 means
// all). Excluded categories are dropped before indexing. It returns the
// number of documents indexed.
func (a *App) ProjectToIndex(ctx context.Context, source ProjectSource, limit int) (int, error) {
	if err := a.index.EnsureIndex(ctx); err != nil {
		return 0, err
	}

	var docs []core.IndexDoc
	switch source {
	case ProjectList:
		entries, err := a.scanner.ReadAllList(ctx, limit)
		if err != nil {
			return 0, err
		}
		for i := range entries {
			docs = append(docs, core.DocFromListEntry(&entries[i]))
		}
	case ProjectDetails:
		details, err := a.details.ReadAllDetails(ctx, limit)
		if err != nil {
			return 0, err
		}
		for _, d := range details {
			docs = append(docs, core.DocFromDetail(d))
		}
	default:
		return 0, fmt.Errorf("unknown projection source %q", source)
	}

	return a.index.BulkIndex(ctx, docs, a.cfg.ExcludedCategories)
}

// Search runs the two-tier free-text query. An empty excluded-category
// list falls back to the configured exclusions.
func (a *App) Search(ctx context.Context, p search.SearchParams) (*search.Result, error) {
	if p.ExcludedCategories == nil {
		p.ExcludedCategories = a.cfg.ExcludedCategories
	}
	return a.index.Search(ctx, p)
}

// Recommend runs the two-tier preference query. An empty
// excluded-category list falls back to the configured exclusions.
func (a *App) Recommend(ctx context.Context, p search.RecommendParams) (*search.Result, error) {
	if p.ExcludedCategories == nil {
		p.ExcludedCategories = a.cfg.ExcludedCategories
	}
	return a.index.Recommend(ctx, p)
}

// DistinctFacetValues enumerates the distinct values of a facet field
// across the cached detail records.
func (a *App) DistinctFacetValues(ctx context.Context, field string) ([]string, error) {
	return a.details.DistinctValues(ctx, field)
}

// CoverImage returns the cover image bytes for a URL, served from the
// cover cache when present.
func (a *App) CoverImage(ctx context.Context, url string) (*covercache.Image, error) {
	return a.covers.Get(ctx, url)
}

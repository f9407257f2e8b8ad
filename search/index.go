package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/animatch/animatch/core"
)

// DefaultIndexName is the index holding the projected catalog.
const DefaultIndexName = "anime_index"

// maxResultWindow caps an unbounded query at the engine's default
// from+size window.
const maxResultWindow = 10000

// indexMappings mirrors the document projection: text fields for the
// titles and synopsis, keywords for the facets, and typed numerics.
const indexMappings = `{
  "mappings": {
    "properties": {
      "mal_id": {"type": "integer"},
      "title": {"type": "text"},
      "title_english": {"type": "text"},
      "title_japanese": {"type": "text"},
      "synopsis": {"type": "text"},
      "type": {"type": "keyword"},
      "source": {"type": "keyword"},
      "genres": {"type": "keyword"},
      "themes": {"type": "keyword"},
      "studios": {"type": "keyword"},
      "demographic": {"type": "keyword"},
      "score": {"type": "float"},
      "rank": {"type": "integer"},
      "popularity": {"type": "integer"},
      "members": {"type": "integer"},
      "scored_by": {"type": "integer"},
      "url": {"type": "keyword"},
      "details_fetched_at": {"type": "date"}
    }
  }
}`

// Index wraps the Elasticsearch client with the catalog's index
// operations: schema management, bulk projection and the two-tier
// queries.
type Index struct {
	es     *elasticsearch.Client
	name   string
	logger *slog.Logger
}

// Option configures an Index.
type Option func(*settings)

type settings struct {
	name      string
	transport http.RoundTripper
	logger    *slog.Logger
}

// WithIndexName overrides the index name. Default is DefaultIndexName.
func WithIndexName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithTransport substitutes the HTTP transport. Tests use this to run
// queries against a canned responder.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) {
		s.transport = rt
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an Index client pointed at the given URL.
func New(url string, opts ...Option) (*Index, error) {
	s := settings{name: DefaultIndexName, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Transport: s.transport,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return &Index{es: es, name: s.name, logger: s.logger}, nil
}

// Name returns the index name.
func (x *Index) Name() string { return x.name }

// EnsureIndex creates the index with its mappings if it does not exist.
// Calling it against an existing index is a no-op.
func (x *Index) EnsureIndex(ctx context.Context) error {
	res, err := x.es.Indices.Exists([]string{x.name},
		x.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("%w: exists check returned %s", ErrIndexUnavailable, res.Status())
	}

	created, err := x.es.Indices.Create(x.name,
		x.es.Indices.Create.WithBody(strings.NewReader(indexMappings)),
		x.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer created.Body.Close()
	if created.IsError() {
		body, _ := io.ReadAll(created.Body)
		return fmt.Errorf("%w: create index [%s]: %s", ErrIndexUnavailable, created.Status(), body)
	}
	x.logger.Info("index created", "index", x.name)
	return nil
}

// BulkIndex writes documents into the index as one bulk request with a
// synchronous refresh, so a query issued right after sees them.
// Documents without an id or with an excluded category are dropped.
// Re-indexing an id overwrites the previous document in place.
func (x *Index) BulkIndex(ctx context.Context, docs []core.IndexDoc, excludedCategories []string) (int, error) {
	excluded := make(map[string]struct{}, len(excludedCategories))
	for _, c := range excludedCategories {
		excluded[c] = struct{}{}
	}

	var buf bytes.Buffer
	count := 0
	for _, doc := range docs {
		if doc.ID == 0 {
			continue
		}
		if _, skip := excluded[doc.Category]; skip {
			continue
		}
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":"%d"}}`, x.name, doc.ID)
		buf.WriteString(meta)
		buf.WriteByte('\n')
		src, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("encode document %d: %w", doc.ID, err)
		}
		buf.Write(src)
		buf.WriteByte('\n')
		count++
	}
	if count == 0 {
		return 0, nil
	}

	res, err := x.es.Bulk(bytes.NewReader(buf.Bytes()),
		x.es.Bulk.WithContext(ctx),
		x.es.Bulk.WithRefresh("true"))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("%w: bulk [%s]: %s", ErrIndexUnavailable, res.Status(), body)
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err == nil && bulkResp.Errors {
		x.logger.Warn("bulk response reported item errors", "index", x.name)
	}

	x.logger.Info("bulk indexed", "index", x.name, "count", count)
	return count, nil
}

package animatch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animatch/animatch/config"
	"github.com/animatch/animatch/core"
	"github.com/animatch/animatch/search"
	"github.com/animatch/animatch/store/memory"
)

// scriptedES answers Elasticsearch calls with canned bodies and records
// what was sent.
type scriptedES struct {
	mu       sync.Mutex
	requests []*capturedCall
	handler  func(method, path, body string) (int, string)
}

type capturedCall struct {
	Method string
	Path   string
	Body   string
}

func (s *scriptedES) RoundTrip(r *http.Request) (*http.Response, error) {
	var body string
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		r.Body.Close()
		body = string(raw)
	}
	s.mu.Lock()
	s.requests = append(s.requests, &capturedCall{Method: r.Method, Path: r.URL.Path, Body: body})
	s.mu.Unlock()

	status, resp := s.handler(r.Method, r.URL.Path, body)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(resp)),
		Request:    r,
	}, nil
}

func (s *scriptedES) captured() []*capturedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*capturedCall(nil), s.requests...)
}

func floatp(v float64) *float64 { return &v }

func newTestApp(t *testing.T, es *scriptedES) (*App, *memory.Store) {
	t.Helper()
	repo := memory.New()
	app, err := New(context.Background(), config.Default(),
		WithRepositories(repo, repo, repo),
		WithSearchTransport(es))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app, repo
}

func TestProjectToIndexFromDetails(t *testing.T) {
	ctx := context.Background()
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		if method == http.MethodHead {
			return http.StatusNotFound, ""
		}
		return http.StatusOK, `{"acknowledged":true,"errors":false}`
	}}
	app, repo := newTestApp(t, es)

	require.NoError(t, repo.UpsertDetails(ctx, []*core.Detail{
		{ID: 1, Title: "Kept", Category: "TV", Score: floatp(8.5)},
		{ID: 2, Title: "Dropped", Category: "Music"},
	}))

	count, err := app.ProjectToIndex(ctx, ProjectDetails, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	calls := es.captured()
	// Exists check, index create, then the bulk write.
	require.Len(t, calls, 3)
	assert.Equal(t, http.MethodPut, calls[1].Method)
	assert.Contains(t, calls[2].Path, "_bulk")
	assert.Contains(t, calls[2].Body, `"title":"Kept"`)
	assert.NotContains(t, calls[2].Body, "Dropped")
}

func TestProjectToIndexFromList(t *testing.T) {
	ctx := context.Background()
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		return http.StatusOK, `{"acknowledged":true,"errors":false}`
	}}
	app, repo := newTestApp(t, es)

	rank := 1
	_, _, err := repo.UpsertListEntries(ctx, []core.ListEntry{
		{ID: 30, Rank: &rank, Title: "Only Row", Category: "TV"},
	})
	require.NoError(t, err)

	count, err := app.ProjectToIndex(ctx, ProjectList, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProjectToIndexUnknownSource(t *testing.T) {
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		return http.StatusOK, "{}"
	}}
	app, _ := newTestApp(t, es)

	_, err := app.ProjectToIndex(context.Background(), ProjectSource("covers"), 0)
	assert.Error(t, err)
}

func TestSearchAppliesConfiguredExclusions(t *testing.T) {
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[{"_score":1.0,"_source":{"mal_id":1,"title":"Hit"}}]}}`
	}}
	app, _ := newTestApp(t, es)

	res, err := app.Search(context.Background(), search.SearchParams{Query: "hit"})
	require.NoError(t, err)
	assert.Equal(t, search.TierStrict, res.Tier)

	calls := es.captured()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Body, `"terms":{"type":["Music","PV","CM"]}`)
}

func TestRecommendRequiresSignal(t *testing.T) {
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		return http.StatusOK, "{}"
	}}
	app, _ := newTestApp(t, es)

	_, err := app.Recommend(context.Background(), search.RecommendParams{Size: 10})
	assert.ErrorIs(t, err, search.ErrNoPreferences)
}

func TestDistinctFacetValues(t *testing.T) {
	ctx := context.Background()
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		return http.StatusOK, "{}"
	}}
	app, repo := newTestApp(t, es)

	require.NoError(t, repo.UpsertDetails(ctx, []*core.Detail{
		{ID: 1, Themes: []string{"Isekai", "Military"}},
		{ID: 2, Themes: []string{"Isekai"}},
	}))

	themes, err := app.DistinctFacetValues(ctx, "themes")
	require.NoError(t, err)
	assert.Equal(t, []string{"Isekai", "Military"}, themes)
}

func TestReadCatalogByIDsEnrichesSearchHits(t *testing.T) {
	ctx := context.Background()
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[{"_score":2.0,"_source":{"mal_id":52991,"title":"Sousou no Frieren"}},{"_score":1.0,"_source":{"mal_id":5114,"title":"Fullmetal Alchemist: Brotherhood"}}]}}`
	}}
	app, repo := newTestApp(t, es)

	r1, r2 := 1, 2
	_, _, err := repo.UpsertListEntries(ctx, []core.ListEntry{
		{ID: 5114, Rank: &r2, Title: "Fullmetal Alchemist: Brotherhood",
			CoverImageURL: "https://cdn.example.com/images/anime/1208/94745.jpg",
			EpisodeCount:  "64"},
		{ID: 52991, Rank: &r1, Title: "Sousou no Frieren",
			CoverImageURL: "https://cdn.example.com/images/anime/1015/138006.jpg",
			EpisodeCount:  "28"},
	})
	require.NoError(t, err)

	res, err := app.Search(ctx, search.SearchParams{Query: "frieren"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)

	// The index carries neither cover URL nor episode count; the cache
	// read recovers both, in hit order.
	ids := make([]int, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	rows, err := app.ReadCatalogByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 52991, rows[0].ID)
	assert.Equal(t, "https://cdn.example.com/images/anime/1015/138006.jpg", rows[0].CoverImageURL)
	assert.Equal(t, "28", rows[0].EpisodeCount)
	assert.Equal(t, 5114, rows[1].ID)
	assert.Equal(t, "64", rows[1].EpisodeCount)
}

func TestReadCatalogByIDsOmitsMisses(t *testing.T) {
	ctx := context.Background()
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		return http.StatusOK, "{}"
	}}
	app, repo := newTestApp(t, es)

	r := 1
	_, _, err := repo.UpsertListEntries(ctx, []core.ListEntry{
		{ID: 1, Rank: &r, Title: "Cached"},
	})
	require.NoError(t, err)

	rows, err := app.ReadCatalogByIDs(ctx, []int{99, 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].ID)
}

func TestReadCatalogWindow(t *testing.T) {
	ctx := context.Background()
	es := &scriptedES{handler: func(method, path, body string) (int, string) {
		return http.StatusOK, "{}"
	}}
	app, repo := newTestApp(t, es)

	var entries []core.ListEntry
	for rank := 1; rank <= 60; rank++ {
		r := rank
		entries = append(entries, core.ListEntry{ID: rank, Rank: &r, Title: "x"})
	}
	_, _, err := repo.UpsertListEntries(ctx, entries)
	require.NoError(t, err)

	window, err := app.ReadCatalogWindow(ctx, 50, 10)
	require.NoError(t, err)
	require.Len(t, window, 10)
	assert.Equal(t, 51, *window[0].Rank)
}

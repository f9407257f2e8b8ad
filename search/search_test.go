package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animatch/animatch/core"
)

// capturedRequest keeps what the client actually sent.
type capturedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeES responds to Elasticsearch API calls from a script of canned
// bodies, recording every request so tests can assert which queries ran.
type fakeES struct {
	mu       sync.Mutex
	requests []capturedRequest
	handler  func(req capturedRequest) (int, string)
}

func (f *fakeES) RoundTrip(r *http.Request) (*http.Response, error) {
	var body string
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		r.Body.Close()
		body = string(raw)
	}
	req := capturedRequest{Method: r.Method, Path: r.URL.Path, Body: body}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	status, resp := f.handler(req)
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

func (f *fakeES) captured() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

func (f *fakeES) searchCalls() []capturedRequest {
	var calls []capturedRequest
	for _, r := range f.captured() {
		if strings.HasSuffix(r.Path, "/_search") {
			calls = append(calls, r)
		}
	}
	return calls
}

func newTestIndex(t *testing.T, handler func(req capturedRequest) (int, string)) (*Index, *fakeES) {
	t.Helper()
	fake := &fakeES{handler: handler}
	idx, err := New("http://elasticsearch.invalid:9200", WithTransport(fake))
	require.NoError(t, err)
	return idx, fake
}

func hitsBody(docs ...core.IndexDoc) string {
	var parts []string
	for i, d := range docs {
		parts = append(parts, fmt.Sprintf(
			`{"_score":%g,"_source":{"mal_id":%d,"title":%q,"type":%q}}`,
			float64(10-i), d.ID, d.Title, d.Category))
	}
	return `{"hits":{"hits":[` + strings.Join(parts, ",") + `]}}`
}

const emptyHits = `{"hits":{"hits":[]}}`

func TestSearchStrictTier(t *testing.T) {
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		return http.StatusOK, hitsBody(core.IndexDoc{ID: 16498, Title: "Shingeki no Kyojin", Category: "TV"})
	})

	res, err := idx.Search(context.Background(), SearchParams{Query: "attack on titan", Size: 5})
	require.NoError(t, err)
	assert.Equal(t, TierStrict, res.Tier)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 16498, res.Hits[0].ID)
	assert.Equal(t, 10.0, res.Hits[0].Relevance)

	// A non-empty strict tier must not trigger the fuzzy query.
	calls := fake.searchCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Body, `"operator":"and"`)
	assert.Contains(t, calls[0].Body, `"title^5"`)
	assert.NotContains(t, calls[0].Body, "fuzziness")
}

func TestSearchFallsBackToFuzzyOnlyWhenStrictEmpty(t *testing.T) {
	searches := 0
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		if !strings.HasSuffix(req.Path, "/_search") {
			return http.StatusOK, "{}"
		}
		searches++
		if searches == 1 {
			return http.StatusOK, emptyHits
		}
		return http.StatusOK, hitsBody(core.IndexDoc{ID: 1, Title: "Cowboy Bebop", Category: "TV"})
	})

	res, err := idx.Search(context.Background(), SearchParams{Query: "cowbyo bebop"})
	require.NoError(t, err)
	assert.Equal(t, TierRelaxed, res.Tier)
	require.Len(t, res.Hits, 1)

	calls := fake.searchCalls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Body, `"fuzziness":"AUTO"`)
	assert.Contains(t, calls[1].Body, `"minimum_should_match":1`)
}

func TestSearchEmptyQueryIsFilteredMatchAll(t *testing.T) {
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		return http.StatusOK, hitsBody(core.IndexDoc{ID: 5, Title: "Monster", Category: "TV"})
	})

	res, err := idx.Search(context.Background(), SearchParams{
		Query:              "   ",
		MinScore:           8.0,
		ExcludedCategories: []string{"Music", "PV", "CM"},
	})
	require.NoError(t, err)
	assert.Equal(t, TierStrict, res.Tier)

	calls := fake.searchCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Body, `"match_all"`)
	assert.Contains(t, calls[0].Body, `"gte":8`)
	assert.Contains(t, calls[0].Body, `"terms":{"type":["Music","PV","CM"]}`)
}

func TestRecommendRequiresSomeSignal(t *testing.T) {
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		return http.StatusOK, emptyHits
	})

	_, err := idx.Recommend(context.Background(), RecommendParams{Size: 10})
	assert.ErrorIs(t, err, ErrNoPreferences)
	assert.Empty(t, fake.captured())
}

func TestRecommendStrictTierBoosts(t *testing.T) {
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		return http.StatusOK, hitsBody(core.IndexDoc{ID: 9, Title: "Mushoku Tensei", Category: "TV"})
	})

	res, err := idx.Recommend(context.Background(), RecommendParams{
		Genres:  []string{"Fantasy"},
		Themes:  []string{"Isekai"},
		Studios: []string{"Bones"},
		Size:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, TierStrict, res.Tier)

	calls := fake.searchCalls()
	require.Len(t, calls, 1)
	body := calls[0].Body
	assert.Contains(t, body, `"themes":{"boost":3,"value":"Isekai"}`)
	assert.Contains(t, body, `"genres":{"boost":2,"value":"Fantasy"}`)
	assert.Contains(t, body, `"studios":{"boost":1.2,"value":"Bones"}`)
	assert.Contains(t, body, `"minimum_should_match":1`)
	// No query text means the mandatory clause is match-all.
	assert.Contains(t, body, `"match_all"`)
}

func TestRecommendUnboundedProbesThenReissues(t *testing.T) {
	searches := 0
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		if strings.HasSuffix(req.Path, "/_count") {
			return http.StatusOK, `{"count":4321}`
		}
		searches++
		return http.StatusOK, hitsBody(core.IndexDoc{ID: 1, Title: "A", Category: "TV"})
	})

	res, err := idx.Recommend(context.Background(), RecommendParams{
		Themes: []string{"Isekai"},
		Size:   0,
	})
	require.NoError(t, err)
	assert.Equal(t, TierStrict, res.Tier)

	calls := fake.captured()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Body, `"size":20`)
	assert.True(t, strings.HasSuffix(calls[1].Path, "/_count"))
	assert.Contains(t, calls[2].Body, `"size":4321`)
}

func TestRecommendUnboundedCapsAtResultWindow(t *testing.T) {
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		if strings.HasSuffix(req.Path, "/_count") {
			return http.StatusOK, `{"count":25000}`
		}
		return http.StatusOK, hitsBody(core.IndexDoc{ID: 1, Title: "A", Category: "TV"})
	})

	_, err := idx.Recommend(context.Background(), RecommendParams{Themes: []string{"Isekai"}})
	require.NoError(t, err)

	calls := fake.captured()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[2].Body, `"size":10000`)
}

func TestRecommendRelaxedTierDropsMinimumShouldMatch(t *testing.T) {
	searches := 0
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		if !strings.HasSuffix(req.Path, "/_search") {
			return http.StatusOK, "{}"
		}
		searches++
		if searches == 1 {
			return http.StatusOK, emptyHits
		}
		return http.StatusOK, hitsBody(core.IndexDoc{ID: 2, Title: "B", Category: "TV"})
	})

	res, err := idx.Recommend(context.Background(), RecommendParams{
		Genres: []string{"Horror"},
		Size:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, TierRelaxed, res.Tier)

	calls := fake.searchCalls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Body, `"minimum_should_match":1`)
	assert.Contains(t, calls[1].Body, `"minimum_should_match":0`)
}

func TestRecommendRelaxedUnboundedEmptyCountShortCircuits(t *testing.T) {
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		if strings.HasSuffix(req.Path, "/_count") {
			return http.StatusOK, `{"count":0}`
		}
		return http.StatusOK, emptyHits
	})

	res, err := idx.Recommend(context.Background(), RecommendParams{Themes: []string{"Nothing"}})
	require.NoError(t, err)
	assert.Equal(t, TierRelaxed, res.Tier)
	assert.Empty(t, res.Hits)

	// Probe search, strict fell through empty, relaxed count said zero:
	// no relaxed search is issued.
	calls := fake.captured()
	require.Len(t, calls, 2)
	assert.True(t, strings.HasSuffix(calls[1].Path, "/_count"))
}

func TestEnsureIndex(t *testing.T) {
	t.Run("creates missing index with mappings", func(t *testing.T) {
		idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
			if req.Method == http.MethodHead {
				return http.StatusNotFound, ""
			}
			return http.StatusOK, `{"acknowledged":true}`
		})
		require.NoError(t, idx.EnsureIndex(context.Background()))

		calls := fake.captured()
		require.Len(t, calls, 2)
		assert.Equal(t, http.MethodPut, calls[1].Method)
		assert.Contains(t, calls[1].Body, `"details_fetched_at": {"type": "date"}`)
	})

	t.Run("existing index is a no-op", func(t *testing.T) {
		idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
			return http.StatusOK, ""
		})
		require.NoError(t, idx.EnsureIndex(context.Background()))
		require.Len(t, fake.captured(), 1)
	})
}

func TestBulkIndex(t *testing.T) {
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		return http.StatusOK, `{"errors":false,"items":[]}`
	})

	docs := []core.IndexDoc{
		{ID: 1, Title: "Kept", Category: "TV"},
		{ID: 2, Title: "Filtered", Category: "Music"},
		{Title: "No id", Category: "TV"},
	}
	count, err := idx.BulkIndex(context.Background(), docs, []string{"Music", "PV", "CM"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	calls := fake.captured()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Path, "_bulk")
	assert.Contains(t, calls[0].Body, `"_id":"1"`)
	assert.NotContains(t, calls[0].Body, "Filtered")
	assert.NotContains(t, calls[0].Body, "No id")
}

func TestBulkIndexNothingToDo(t *testing.T) {
	idx, fake := newTestIndex(t, func(req capturedRequest) (int, string) {
		return http.StatusOK, "{}"
	})
	count, err := idx.BulkIndex(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, fake.captured())
}

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/animatch/animatch/core"
)

// Tier identifies which stage of the strict-then-relaxed cascade
// produced a result set.
type Tier int

const (
	// TierStrict is the first attempt: all mandatory clauses must match.
	TierStrict Tier = iota + 1
	// TierRelaxed is the fallback, run only when the strict tier came
	// back empty. It is never used to supplement strict hits.
	TierRelaxed
)

func (t Tier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierRelaxed:
		return "relaxed"
	default:
		return "unknown"
	}
}

// Result is a tier-tagged hit list, so callers can tell whether the
// strict query matched or the engine had to fall back.
type Result struct {
	Tier Tier
	Hits []core.ScoredDoc
}

// defaultSize bounds a query that did not ask for a specific size. It
// also serves as the probe size on the unbounded path.
const defaultSize = 20

// SearchParams drives a free-text search.
type SearchParams struct {
	Query              string
	Size               int
	MinScore           float64
	ExcludedCategories []string
}

// RecommendParams drives a preference-weighted recommendation.
// Size <= 0 means unbounded: return every match up to the engine's
// result window.
type RecommendParams struct {
	Genres             []string
	Themes             []string
	Studios            []string
	QueryText          string
	Size               int
	MinScore           float64
	ExcludedCategories []string
}

// sortClause orders hits by relevance first, cached community score
// second. Documents without a score sort last, not first.
var sortClause = []any{
	"_score",
	map[string]any{"score": map[string]any{"order": "desc", "missing": "_last"}},
}

func scoreFilters(minScore float64) []any {
	if minScore <= 0 {
		return []any{}
	}
	return []any{
		map[string]any{"range": map[string]any{"score": map[string]any{"gte": minScore}}},
	}
}

func categoryMustNot(excluded []string) []any {
	if len(excluded) == 0 {
		return []any{}
	}
	return []any{
		map[string]any{"terms": map[string]any{"type": excluded}},
	}
}

// Search runs the free-text query. An empty query is a filtered
// match-all. A non-empty query requires every term to match in the
// strict tier; only when that returns nothing does the fuzzy tier run,
// with phrase boosts on the title fields and per-term spelling
// tolerance.
func (x *Index) Search(ctx context.Context, p SearchParams) (*Result, error) {
	size := p.Size
	if size <= 0 {
		size = defaultSize
	}
	filters := scoreFilters(p.MinScore)
	mustNot := categoryMustNot(p.ExcludedCategories)

	query := strings.TrimSpace(p.Query)
	if query == "" {
		body := map[string]any{
			"size": size,
			"query": map[string]any{
				"bool": map[string]any{
					"must":     []any{map[string]any{"match_all": map[string]any{}}},
					"filter":   filters,
					"must_not": mustNot,
				},
			},
			"sort": sortClause,
		}
		hits, err := x.runSearch(ctx, body)
		if err != nil {
			return nil, err
		}
		return &Result{Tier: TierStrict, Hits: hits}, nil
	}

	strictBody := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":    query,
							"fields":   []string{"title^5", "title_english^4", "title_japanese^4", "synopsis"},
							"type":     "best_fields",
							"operator": "and",
						},
					},
				},
				"filter":   filters,
				"must_not": mustNot,
			},
		},
		"sort": sortClause,
	}
	hits, err := x.runSearch(ctx, strictBody)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		return &Result{Tier: TierStrict, Hits: hits}, nil
	}

	fuzzyBody := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"match_phrase": map[string]any{"title": map[string]any{"query": query, "boost": 10.0}}},
					map[string]any{"match_phrase": map[string]any{"title_english": map[string]any{"query": query, "boost": 8.0}}},
					map[string]any{"match_phrase": map[string]any{"title_japanese": map[string]any{"query": query, "boost": 8.0}}},
					map[string]any{
						"multi_match": map[string]any{
							"query":     query,
							"fields":    []string{"title^4", "title_english^3", "title_japanese^3", "synopsis"},
							"type":      "best_fields",
							"fuzziness": "AUTO",
						},
					},
				},
				"minimum_should_match": 1,
				"filter":               filters,
				"must_not":             mustNot,
			},
		},
		"sort": sortClause,
	}
	hits, err = x.runSearch(ctx, fuzzyBody)
	if err != nil {
		return nil, err
	}
	return &Result{Tier: TierRelaxed, Hits: hits}, nil
}

// Recommend ranks the catalog against facet preferences and optional
// free text. Preference weight order is themes over genres over free
// text over studios. The strict tier demands at least one preference
// clause match; the relaxed tier drops that demand and keeps only the
// mandatory free-text clause (or match-all). An unbounded size runs a
// bounded probe first and reissues at the true match count when the
// probe window was too small.
func (x *Index) Recommend(ctx context.Context, p RecommendParams) (*Result, error) {
	queryText := strings.TrimSpace(p.QueryText)
	if queryText == "" && len(p.Genres) == 0 && len(p.Themes) == 0 && len(p.Studios) == 0 {
		return nil, ErrNoPreferences
	}

	var should []any
	if queryText != "" {
		should = append(should,
			map[string]any{"match_phrase": map[string]any{"title": map[string]any{"query": queryText, "boost": 8.0}}},
			map[string]any{"match_phrase": map[string]any{"title_english": map[string]any{"query": queryText, "boost": 6.0}}},
			map[string]any{
				"multi_match": map[string]any{
					"query":    queryText,
					"fields":   []string{"title^4", "title_english^3", "title_japanese^3", "synopsis"},
					"type":     "best_fields",
					"operator": "and",
					"boost":    2.5,
				},
			},
		)
	}
	for _, genre := range p.Genres {
		should = append(should, map[string]any{"term": map[string]any{"genres": map[string]any{"value": genre, "boost": 2.0}}})
	}
	for _, theme := range p.Themes {
		should = append(should, map[string]any{"term": map[string]any{"themes": map[string]any{"value": theme, "boost": 3.0}}})
	}
	for _, studio := range p.Studios {
		should = append(should, map[string]any{"term": map[string]any{"studios": map[string]any{"value": studio, "boost": 1.2}}})
	}

	var must []any
	if queryText != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":    queryText,
				"fields":   []string{"title^5", "title_english^4", "title_japanese^4", "synopsis"},
				"type":     "best_fields",
				"operator": "and",
			},
		})
	} else {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}

	filters := scoreFilters(p.MinScore)
	mustNot := categoryMustNot(p.ExcludedCategories)
	unbounded := p.Size <= 0
	size := p.Size
	if unbounded {
		size = defaultSize
	}

	strictQuery := map[string]any{
		"bool": map[string]any{
			"must":                 must,
			"should":               should,
			"minimum_should_match": 1,
			"filter":               filters,
			"must_not":             mustNot,
		},
	}
	hits, err := x.runSearch(ctx, map[string]any{
		"size": size, "query": strictQuery, "sort": sortClause,
	})
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		if unbounded {
			hits, err = x.reissueUnbounded(ctx, strictQuery, hits)
			if err != nil {
				return nil, err
			}
		}
		return &Result{Tier: TierStrict, Hits: hits}, nil
	}

	relaxedQuery := map[string]any{
		"bool": map[string]any{
			"must":                 must,
			"should":               should,
			"minimum_should_match": 0,
			"filter":               filters,
			"must_not":             mustNot,
		},
	}
	relaxedSize := size
	if unbounded {
		total, err := x.runCount(ctx, relaxedQuery)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			return &Result{Tier: TierRelaxed}, nil
		}
		if total < maxResultWindow {
			relaxedSize = total
		} else {
			relaxedSize = maxResultWindow
		}
	}
	hits, err = x.runSearch(ctx, map[string]any{
		"size": relaxedSize, "query": relaxedQuery, "sort": sortClause,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Tier: TierRelaxed, Hits: hits}, nil
}

// reissueUnbounded widens a probe result to the full match count when
// the count exceeds the probe window, capped at the result window.
func (x *Index) reissueUnbounded(ctx context.Context, query map[string]any, probeHits []core.ScoredDoc) ([]core.ScoredDoc, error) {
	total, err := x.runCount(ctx, query)
	if err != nil {
		return nil, err
	}
	if total <= defaultSize {
		return probeHits, nil
	}
	size := total
	if size > maxResultWindow {
		size = maxResultWindow
	}
	return x.runSearch(ctx, map[string]any{
		"size": size, "query": query, "sort": sortClause,
	})
}

func (x *Index) runSearch(ctx context.Context, body map[string]any) ([]core.ScoredDoc, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := x.es.Search(
		x.es.Search.WithContext(ctx),
		x.es.Search.WithIndex(x.name),
		x.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("%w: search [%s]: %s", ErrIndexUnavailable, res.Status(), raw)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  *float64      `json:"_score"`
				Source core.IndexDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]core.ScoredDoc, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		doc := core.ScoredDoc{IndexDoc: h.Source}
		if h.Score != nil {
			doc.Relevance = *h.Score
		}
		hits = append(hits, doc)
	}
	return hits, nil
}

func (x *Index) runCount(ctx context.Context, query map[string]any) (int, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]any{"query": query}); err != nil {
		return 0, fmt.Errorf("encode count query: %w", err)
	}

	res, err := x.es.Count(
		x.es.Count.WithContext(ctx),
		x.es.Count.WithIndex(x.name),
		x.es.Count.WithBody(&buf),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("%w: count [%s]: %s", ErrIndexUnavailable, res.Status(), raw)
	}

	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return parsed.Count, nil
}

package core

import "time"

// Category is the media category vocabulary used by the source catalog.
// Items whose category text matches none of these are left uncategorized.
var Categories = []string{"TV", "Movie", "OVA", "ONA", "Special", "Music", "PV", "CM"}

// KnownCategory reports whether s is part of the fixed category vocabulary.
func KnownCategory(s string) bool {
	for _, c := range Categories {
		if c == s {
			return true
		}
	}
	return false
}

// ListEntry is a lightweight catalog row scraped from a ranking page.
// Optional numeric fields are pointers so an absent value survives the
// round trip through the cache without turning into a zero.
type ListEntry struct {
	ID            int      `bson:"_id" json:"mal_id"`
	Rank          *int     `bson:"rank,omitempty" json:"rank"`
	Title         string   `bson:"title,omitempty" json:"title"`
	SourceURL     string   `bson:"url,omitempty" json:"url"`
	Score         *float64 `bson:"score,omitempty" json:"score"`
	CoverImageURL string   `bson:"image_url,omitempty" json:"image_url"`
	Category      string   `bson:"type,omitempty" json:"type"`
	EpisodeCount  string   `bson:"episodes,omitempty" json:"episodes"` // source renders "?" for unknown
}

// Detail is the rich record scraped from a single item's detail page.
// Every field except ID is optional: the source page layout varies by
// item type and partial extraction is normal.
type Detail struct {
	ID            int    `bson:"_id" json:"mal_id"`
	Title         string `bson:"title,omitempty" json:"title"`
	TitleEnglish  string `bson:"title_english,omitempty" json:"title_english"`
	TitleJapanese string `bson:"title_japanese,omitempty" json:"title_japanese"`
	SourceURL     string `bson:"url,omitempty" json:"url"`
	Synopsis      string `bson:"synopsis,omitempty" json:"synopsis"`

	Category       string `bson:"type,omitempty" json:"type"`
	EpisodeCount   string `bson:"episodes,omitempty" json:"episodes"`
	Status         string `bson:"status,omitempty" json:"status"`
	Aired          string `bson:"aired,omitempty" json:"aired"`
	Premiered      string `bson:"premiered,omitempty" json:"premiered"`
	Broadcast      string `bson:"broadcast,omitempty" json:"broadcast"`
	SourceMaterial string `bson:"source,omitempty" json:"source"`
	Duration       string `bson:"duration,omitempty" json:"duration"`
	ContentRating  string `bson:"rating,omitempty" json:"rating"`

	Genres      []string `bson:"genres,omitempty" json:"genres"`
	Themes      []string `bson:"themes,omitempty" json:"themes"`
	Studios     []string `bson:"studios,omitempty" json:"studios"`
	Producers   []string `bson:"producers,omitempty" json:"producers"`
	Demographic []string `bson:"demographic,omitempty" json:"demographic"`

	Score          *float64 `bson:"score,omitempty" json:"score"`
	ScoredBy       *int     `bson:"scored_by,omitempty" json:"scored_by"`
	Rank           *int     `bson:"rank,omitempty" json:"rank"`
	PopularityRank *int     `bson:"popularity,omitempty" json:"popularity"`
	MemberCount    *int     `bson:"members,omitempty" json:"members"`

	// FetchedAt governs staleness. It is stamped by the store at write
	// time, never by the scraper.
	FetchedAt time.Time `bson:"fetched_at,omitempty" json:"fetched_at"`
}

// Fresh reports whether the detail record was fetched within maxAge of now.
// A zero FetchedAt is always stale.
func (d *Detail) Fresh(now time.Time, maxAge time.Duration) bool {
	if d == nil || d.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(d.FetchedAt) < maxAge
}

// IndexDoc is the union projection indexed for search. One document per
// item id; list-sourced documents leave the detail-only fields empty.
type IndexDoc struct {
	ID            int      `json:"mal_id"`
	Title         string   `json:"title,omitempty"`
	TitleEnglish  string   `json:"title_english,omitempty"`
	TitleJapanese string   `json:"title_japanese,omitempty"`
	Synopsis      string   `json:"synopsis,omitempty"`
	Category      string   `json:"type,omitempty"`
	Source        string   `json:"source,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Themes        []string `json:"themes,omitempty"`
	Studios       []string `json:"studios,omitempty"`
	Demographic   []string `json:"demographic,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	Rank          *int     `json:"rank,omitempty"`
	Popularity    *int     `json:"popularity,omitempty"`
	Members       *int     `json:"members,omitempty"`
	ScoredBy      *int     `json:"scored_by,omitempty"`
	SourceURL     string   `json:"url,omitempty"`
	FetchedAt     string   `json:"details_fetched_at,omitempty"`
}

// DocFromDetail projects a cached detail record into its index shape.
func DocFromDetail(d *Detail) IndexDoc {
	doc := IndexDoc{
		ID:            d.ID,
		Title:         d.Title,
		TitleEnglish:  d.TitleEnglish,
		TitleJapanese: d.TitleJapanese,
		Synopsis:      d.Synopsis,
		Category:      d.Category,
		Source:        d.SourceMaterial,
		Genres:        CleanStrings(d.Genres),
		Themes:        CleanStrings(d.Themes),
		Studios:       CleanStrings(d.Studios),
		Demographic:   CleanStrings(d.Demographic),
		Score:         d.Score,
		Rank:          d.Rank,
		Popularity:    d.PopularityRank,
		Members:       d.MemberCount,
		ScoredBy:      d.ScoredBy,
		SourceURL:     d.SourceURL,
	}
	if !d.FetchedAt.IsZero() {
		doc.FetchedAt = d.FetchedAt.UTC().Format(time.RFC3339)
	}
	return doc
}

// DocFromListEntry projects a catalog row into its index shape.
// Detail-only fields stay empty until the item is hydrated.
func DocFromListEntry(e *ListEntry) IndexDoc {
	return IndexDoc{
		ID:        e.ID,
		Title:     e.Title,
		Category:  e.Category,
		Score:     e.Score,
		Rank:      e.Rank,
		SourceURL: e.SourceURL,
	}
}

// ScoredDoc is an index document paired with its query relevance score.
type ScoredDoc struct {
	IndexDoc
	Relevance float64 `json:"es_score"`
}

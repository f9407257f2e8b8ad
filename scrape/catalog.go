package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/animatch/animatch/core"
)

// ParseCatalogPage extracts one ListEntry per ranking row of a catalog
// page. Rows without a resolvable title link are skipped silently; rows
// whose category is in excludedCategories are dropped entirely. Only a
// document that cannot be parsed as HTML at all is an error.
func ParseCatalogPage(markup string, excludedCategories []string) ([]core.ListEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	excluded := newStringSet(excludedCategories)
	var entries []core.ListEntry

	doc.Find(".ranking-list").Each(func(_ int, row *goquery.Selection) {
		titleLink := row.Find("h3.anime_ranking_h3 a").First()
		if titleLink.Length() == 0 {
			return
		}
		title := strings.TrimSpace(titleLink.Text())
		if title == "" {
			return
		}
		url, _ := titleLink.Attr("href")

		entry := core.ListEntry{
			ID:        SeriesIDFromURL(url),
			Title:     title,
			SourceURL: url,
			Rank:      core.SafeInt(row.Find("td.rank").First().Text()),
		}

		if scoreText := strings.TrimSpace(row.Find("span.score-label").First().Text()); scoreText != "" && scoreText != "N/A" {
			entry.Score = core.SafeFloat(scoreText)
		}

		if img := row.Find("img").First(); img.Length() > 0 {
			// deferred-loading thumbnails carry the real URL in data-src
			src, ok := img.Attr("data-src")
			if !ok || src == "" {
				src, _ = img.Attr("src")
			}
			entry.CoverImageURL = upgradeImageURL(src)
		}

		if info := flatText(row.Find("div.information").First()); info != "" {
			// example: "TV (64 eps)"
			if m := categoryRe.FindStringSubmatch(info); m != nil {
				entry.Category = m[1]
			}
			if m := episodesRe.FindStringSubmatch(info); m != nil {
				entry.EpisodeCount = m[1]
			}
		}

		if excluded.contains(entry.Category) {
			return
		}
		entries = append(entries, entry)
	})

	return entries, nil
}

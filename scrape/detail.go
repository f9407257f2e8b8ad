package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/animatch/animatch/core"
)

// ParseDetailPage extracts the rich record from a single item's detail
// page. Every field is optional: a missing node yields an empty value,
// never an error, because the page layout varies by item type. Label
// matching in the info panel is prefix-based and case-sensitive.
func ParseDetailPage(markup, sourceURL string) (*core.Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	d := &core.Detail{
		ID:        SeriesIDFromURL(sourceURL),
		SourceURL: sourceURL,
	}

	d.Title = strings.TrimSpace(doc.Find("h1.title-name strong").First().Text())
	d.TitleEnglish = strings.TrimSpace(doc.Find("p.title-english").First().Text())
	d.Synopsis = flatText(doc.Find("p[itemprop='description']").First())

	doc.Find("div.spaceit_pad").Each(func(_ int, block *goquery.Selection) {
		text := flatText(block)
		switch {
		case strings.HasPrefix(text, "Type:"):
			d.Category = labelValue(text, "Type:")
		case strings.HasPrefix(text, "Episodes:"):
			d.EpisodeCount = labelValue(text, "Episodes:")
		case strings.HasPrefix(text, "Status:"):
			d.Status = labelValue(text, "Status:")
		case strings.HasPrefix(text, "Aired:"):
			d.Aired = labelValue(text, "Aired:")
		case strings.HasPrefix(text, "Premiered:"):
			d.Premiered = labelValue(text, "Premiered:")
		case strings.HasPrefix(text, "Broadcast:"):
			d.Broadcast = labelValue(text, "Broadcast:")
		case strings.HasPrefix(text, "Producers:"):
			d.Producers = core.CleanStrings(linkTexts(block))
		case strings.HasPrefix(text, "Studios:"):
			d.Studios = core.CleanStrings(linkTexts(block))
		case strings.HasPrefix(text, "Source:"):
			d.SourceMaterial = labelValue(text, "Source:")
		case strings.HasPrefix(text, "Genres:"):
			d.Genres = core.CleanStrings(linkTexts(block))
		case strings.HasPrefix(text, "Themes:"):
			d.Themes = core.CleanStrings(linkTexts(block))
		case strings.HasPrefix(text, "Theme:"):
			d.Themes = core.CleanStrings(linkTexts(block))
		case strings.HasPrefix(text, "Demographic:"):
			d.Demographic = core.CleanStrings(linkTexts(block))
		case strings.HasPrefix(text, "Duration:"):
			d.Duration = labelValue(text, "Duration:")
		case strings.HasPrefix(text, "Rating:"):
			d.ContentRating = labelValue(text, "Rating:")
		case strings.HasPrefix(text, "Japanese:"):
			d.TitleJapanese = labelValue(text, "Japanese:")
		}
	})

	if scoreText := strings.TrimSpace(doc.Find("div.score-label").First().Text()); scoreText != "" {
		d.Score = core.SafeFloat(scoreText)
	}
	if scoredBy := strings.TrimSpace(doc.Find("span[itemprop='ratingCount']").First().Text()); scoredBy != "" {
		d.ScoredBy = core.SafeInt(scoredBy)
	}

	if stats := doc.Find("div.stats-block").First(); stats.Length() > 0 {
		for _, line := range strings.Split(stats.Text(), "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Ranked"):
				d.Rank = core.SafeInt(line)
			case strings.HasPrefix(line, "Popularity"):
				d.PopularityRank = core.SafeInt(line)
			case strings.HasPrefix(line, "Members"):
				d.MemberCount = core.SafeInt(line)
			}
		}
	}

	return d, nil
}

func labelValue(text, label string) string {
	return strings.TrimSpace(strings.TrimPrefix(text, label))
}

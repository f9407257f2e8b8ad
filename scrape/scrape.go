package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/animatch/animatch/core"
)

var (
	seriesIDRe = regexp.MustCompile(`/anime/(\d+)`)
	resizeRe   = regexp.MustCompile(`/r/\d+x\d+/`)
	categoryRe = regexp.MustCompile(`^(` + strings.Join(core.Categories, "|") + `)\b`)
	episodesRe = regexp.MustCompile(`\((\d+|\?)\s*eps\)`)
)

// SeriesIDFromURL extracts the stable item id from a detail page URL.
// Returns zero when the URL does not point at an item page.
func SeriesIDFromURL(url string) int {
	m := seriesIDRe.FindStringSubmatch(url)
	if m == nil {
		return 0
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return id
}

// upgradeImageURL strips the resize path segment that the ranking pages
// put in front of deferred-loading thumbnails, recovering the original
// resolution ("/r/50x70/images/..." -> "/images/...").
func upgradeImageURL(url string) string {
	return resizeRe.ReplaceAllString(url, "/")
}

// flatText collapses a selection's text into single-space-separated form.
func flatText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// linkTexts collects the trimmed text of every hyperlink in the selection.
func linkTexts(s *goquery.Selection) []string {
	var out []string
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		if t := strings.TrimSpace(a.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

type stringSet map[string]struct{}

func newStringSet(values []string) stringSet {
	set := make(stringSet, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func (s stringSet) contains(v string) bool {
	_, ok := s[v]
	return ok
}

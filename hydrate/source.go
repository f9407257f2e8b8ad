package hydrate

import (
	"context"

	"github.com/animatch/animatch/core"
	"github.com/animatch/animatch/scrape"
)

// PageFetcher retrieves the markup of one page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PageSource is the live DetailSource: it fetches an item's page and
// parses it into a detail record.
type PageSource struct {
	fetcher PageFetcher
}

var _ DetailSource = (*PageSource)(nil)

// NewPageSource wraps a page fetcher into a DetailSource.
func NewPageSource(fetcher PageFetcher) *PageSource {
	return &PageSource{fetcher: fetcher}
}

// FetchDetail downloads and parses the detail page for one item. The
// caller's id wins over whatever id the page URL carries.
func (s *PageSource) FetchDetail(ctx context.Context, id int, url string) (*core.Detail, error) {
	markup, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	detail, err := scrape.ParseDetailPage(markup, url)
	if err != nil {
		return nil, err
	}
	if id != 0 {
		detail.ID = id
	}
	return detail, nil
}

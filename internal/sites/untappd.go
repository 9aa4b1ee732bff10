package sites

import (
	"context"
	"net/url"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

const untappdBase = "https://untappd.com"

// Untappd reads beer ratings from untappd.com search results.
type Untappd struct{}

func (Untappd) Name() string { return "untappd" }

func (Untappd) SearchURL(term string) string {
	return untappdBase + "/search?q=" + url.QueryEscape(term)
}

func (Untappd) ReadySelector() string { return "span.num" }

// Extract reads the first result's rating and beer link.
func (Untappd) Extract(ctx context.Context, page enrich.Page) (enrich.Result, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return enrich.Result{}, err
	}
	num := doc.Find("span.num").First()
	if num.Length() == 0 {
		return enrich.Result{}, enrich.ErrNoRating
	}
	rating, err := parseRating(num.Text())
	if err != nil {
		return enrich.Result{}, err
	}
	href, _ := doc.Find("p.name a").First().Attr("href")
	return enrich.Result{Rating: rating, Link: absolute(untappdBase, href)}, nil
}

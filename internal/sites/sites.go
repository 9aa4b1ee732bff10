// Package sites holds the rating site adapters used by the enricher. Each
// adapter builds search URLs and reads a rating and a canonical link from
// the rendered search page.
package sites

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

var nonNumeric = regexp.MustCompile(`[^0-9,.]+`)

// New returns the adapter registered under name.
func New(name string) (enrich.Site, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "untappd":
		return Untappd{}, nil
	case "vivino":
		return Vivino{}, nil
	default:
		return nil, fmt.Errorf("unknown site %q (known: %s)", name, strings.Join(Names(), ", "))
	}
}

// Names lists the registered adapters.
func Names() []string {
	names := []string{"untappd", "vivino"}
	sort.Strings(names)
	return names
}

// parseRating reads numbers such as "(3.677)", "4,1" or "4.2 avg".
func parseRating(text string) (float64, error) {
	cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(text), "")
	cleaned = strings.Replace(cleaned, ",", ".", 1)
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return 0, fmt.Errorf("rating text %q: %w", text, enrich.ErrNoRating)
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("rating text %q: %w", text, enrich.ErrNoRating)
	}
	return value, nil
}

func document(ctx context.Context, page enrich.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

func absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return base + href
}

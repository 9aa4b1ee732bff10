package sites

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

const vivinoBase = "https://www.vivino.com"

// Vivino reads wine ratings from vivino.com. Results depend on the shipping
// destination, so it also negotiates the session locale.
type Vivino struct{}

func (Vivino) Name() string { return "vivino" }

func (Vivino) SearchURL(term string) string {
	return vivinoBase + "/search/wines?q=" + url.QueryEscape(term)
}

func (Vivino) ReadySelector() string { return ".card.card-lg" }

// Extract reads the top card's average rating and wine link.
func (Vivino) Extract(ctx context.Context, page enrich.Page) (enrich.Result, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return enrich.Result{}, err
	}
	card := doc.Find(".card.card-lg").First()
	if card.Length() == 0 {
		return enrich.Result{}, enrich.ErrNoRating
	}
	avg := card.Find(".average__number").First()
	if avg.Length() == 0 {
		return enrich.Result{}, enrich.ErrNoRating
	}
	rating, err := parseRating(avg.Text())
	if err != nil {
		return enrich.Result{}, err
	}
	href, _ := card.Find(`a[data-cartitemsource="text-search"]`).First().Attr("href")
	return enrich.Result{Rating: rating, Link: absolute(vivinoBase, href)}, nil
}

func (Vivino) HomeURL() string { return vivinoBase + "/" }

const probeShipToJS = `(function(c, s) {
  var cc = (window.__PRELOADED_COUNTRY_CODE__ || "").toLowerCase();
  var sc = (window.__PRELOADED_STATE_CODE__ || "").toLowerCase();
  return c.toLowerCase() === cc && s.toLowerCase() === sc;
})(%s, %s)`

const setShipToJS = `(async function(c, s) {
  var meta = document.querySelector('[name="csrf-token"]');
  if (!meta || !meta.content) return false;
  var res = await fetch('https://www.vivino.com/api/ship_to/', {
    method: 'PUT',
    headers: {'content-type': 'application/json', 'x-csrf-token': meta.content},
    body: JSON.stringify({country_code: c, state_code: s})
  });
  if (res.status !== 200) return false;
  var body = await res.json();
  var ship = (body && body.ship_to) || {};
  return (ship.country_code || "").toLowerCase() === c.toLowerCase() &&
    (ship.state_code || "").toLowerCase() === s.toLowerCase();
})(%s, %s)`

// ProbeLocale compares the page's preloaded ship-to codes with want.
func (Vivino) ProbeLocale(ctx context.Context, page enrich.Page, want enrich.Locale) (bool, error) {
	expr, err := bindArgs(probeShipToJS, want)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := page.Evaluate(ctx, expr, &ok); err != nil {
		return false, fmt.Errorf("probe ship-to: %w", err)
	}
	return ok, nil
}

// SetLocale updates the ship-to destination through the site's API.
func (Vivino) SetLocale(ctx context.Context, page enrich.Page, want enrich.Locale) error {
	expr, err := bindArgs(setShipToJS, want)
	if err != nil {
		return err
	}
	var ok bool
	if err := page.Evaluate(ctx, expr, &ok); err != nil {
		return fmt.Errorf("set ship-to: %w", err)
	}
	if !ok {
		return fmt.Errorf("set ship-to %s/%s: %w", want.Country, want.State, enrich.ErrLocaleUnconfirmed)
	}
	return nil
}

func bindArgs(tmpl string, want enrich.Locale) (string, error) {
	country, err := json.Marshal(want.Country)
	if err != nil {
		return "", fmt.Errorf("encode country: %w", err)
	}
	state, err := json.Marshal(want.State)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return fmt.Sprintf(tmpl, country, state), nil
}

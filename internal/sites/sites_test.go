package sites_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
	"github.com/JakeFAU/rating-enricher/internal/sites"
)

type htmlPage struct {
	html      string
	evalValue any
	evalErr   error
	exprs     []string
}

func (p *htmlPage) Navigate(context.Context, string) error  { return nil }
func (p *htmlPage) WaitReady(context.Context, string) error { return nil }
func (p *htmlPage) HTML(context.Context) (string, error)    { return p.html, nil }
func (p *htmlPage) Scroll(context.Context, int) error       { return nil }
func (p *htmlPage) Close() error                            { return nil }

func (p *htmlPage) Evaluate(_ context.Context, expr string, out any) error {
	p.exprs = append(p.exprs, expr)
	if p.evalErr != nil {
		return p.evalErr
	}
	raw, err := json.Marshal(p.evalValue)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func TestNew(t *testing.T) {
	site, err := sites.New("Vivino")
	require.NoError(t, err)
	assert.Equal(t, "vivino", site.Name())

	site, err = sites.New(" untappd ")
	require.NoError(t, err)
	assert.Equal(t, "untappd", site.Name())

	_, err = sites.New("ratebeer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "untappd")
	assert.Equal(t, []string{"untappd", "vivino"}, sites.Names())
}

func TestSearchURLEscapesTerm(t *testing.T) {
	assert.Equal(t, "https://untappd.com/search?q=Nils+Oscar+God+Lager",
		sites.Untappd{}.SearchURL("Nils Oscar God Lager"))
	assert.Equal(t, "https://www.vivino.com/search/wines?q=Ch%C3%A2teau+%26+Fils",
		sites.Vivino{}.SearchURL("Château & Fils"))
}

func TestUntappdExtract(t *testing.T) {
	page := &htmlPage{html: `<html><body>
		<div class="beer-item">
		  <p class="name"><a href="/b/nils-oscar-god-lager/12345">God Lager</a></p>
		  <span class="num">(3.48)</span>
		</div>
		<div class="beer-item"><span class="num">(2.10)</span></div>
	</body></html>`}

	res, err := sites.Untappd{}.Extract(context.Background(), page)
	require.NoError(t, err)
	assert.InDelta(t, 3.48, res.Rating, 1e-9)
	assert.Equal(t, "https://untappd.com/b/nils-oscar-god-lager/12345", res.Link)
}

func TestUntappdExtractNoResults(t *testing.T) {
	page := &htmlPage{html: `<html><body><p>No results</p></body></html>`}
	_, err := sites.Untappd{}.Extract(context.Background(), page)
	assert.ErrorIs(t, err, enrich.ErrNoRating)

	page = &htmlPage{html: `<span class="num">(N/A)</span>`}
	_, err = sites.Untappd{}.Extract(context.Background(), page)
	assert.ErrorIs(t, err, enrich.ErrNoRating)
}

func TestVivinoExtract(t *testing.T) {
	page := &htmlPage{html: `<div class="card card-lg">
		<a data-cartitemsource="text-search" href="/w/1234?year=2019">Barolo</a>
		<div class="average__number">4,1</div>
	</div>
	<div class="card card-lg"><div class="average__number">3,0</div></div>`}

	res, err := sites.Vivino{}.Extract(context.Background(), page)
	require.NoError(t, err)
	assert.InDelta(t, 4.1, res.Rating, 1e-9)
	assert.Equal(t, "https://www.vivino.com/w/1234?year=2019", res.Link)
}

func TestVivinoExtractMissingAverage(t *testing.T) {
	page := &htmlPage{html: `<div class="card card-lg"><a data-cartitemsource="text-search" href="/w/1">x</a></div>`}
	_, err := sites.Vivino{}.Extract(context.Background(), page)
	assert.ErrorIs(t, err, enrich.ErrNoRating)
}

func TestVivinoProbeLocale(t *testing.T) {
	page := &htmlPage{evalValue: true}
	ok, err := sites.Vivino{}.ProbeLocale(context.Background(), page, enrich.Locale{Country: "US", State: "FL"})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, page.exprs, 1)
	assert.Contains(t, page.exprs[0], `("US", "FL")`)
	assert.Contains(t, page.exprs[0], "__PRELOADED_COUNTRY_CODE__")
}

func TestVivinoSetLocale(t *testing.T) {
	want := enrich.Locale{Country: "US", State: "FL"}

	page := &htmlPage{evalValue: true}
	require.NoError(t, sites.Vivino{}.SetLocale(context.Background(), page, want))
	assert.True(t, strings.Contains(page.exprs[0], "/api/ship_to/"))

	page = &htmlPage{evalValue: false}
	err := sites.Vivino{}.SetLocale(context.Background(), page, want)
	assert.ErrorIs(t, err, enrich.ErrLocaleUnconfirmed)

	boom := errors.New("target closed")
	page = &htmlPage{evalErr: boom}
	err = sites.Vivino{}.SetLocale(context.Background(), page, want)
	assert.ErrorIs(t, err, boom)
}

func TestVivinoIsLocaleNegotiator(t *testing.T) {
	site, err := sites.New("vivino")
	require.NoError(t, err)
	neg, ok := site.(enrich.LocaleNegotiator)
	require.True(t, ok)
	assert.Equal(t, "https://www.vivino.com/", neg.HomeURL())

	untappd, err := sites.New("untappd")
	require.NoError(t, err)
	_, ok = untappd.(enrich.LocaleNegotiator)
	assert.False(t, ok)
}

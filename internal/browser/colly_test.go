package browser

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

const searchPage = `<html><body>
<div class="beer-item"><p class="name"><a href="/b/nils-oscar-god-lager/123">God Lager</a></p>
<span class="num">(3.61)</span></div></body></html>`

func newMockedLauncher(t *testing.T) (*CollyLauncher, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	return NewCollyLauncher(CollyConfig{NavTimeout: time.Second, Transport: transport}, nil), transport
}

func TestCollyPageNavigateAndWait(t *testing.T) {
	t.Parallel()

	launcher, transport := newMockedLauncher(t)
	var gotUA, gotLang string
	transport.RegisterResponder(http.MethodGet, "https://ratings.test/search",
		func(req *http.Request) (*http.Response, error) {
			gotUA = req.Header.Get("User-Agent")
			gotLang = req.Header.Get("Accept-Language")
			return httpmock.NewStringResponse(http.StatusOK, searchPage), nil
		})

	session, err := launcher.Launch(context.Background(), enrich.Identity{
		UserAgent:      "Mozilla/5.0 test",
		AcceptLanguage: "en-US,en;q=0.9",
	})
	require.NoError(t, err)
	defer session.Close()

	page, err := session.NewPage(context.Background())
	require.NoError(t, err)
	defer page.Close()

	require.NoError(t, page.Navigate(context.Background(), "https://ratings.test/search?q=god+lager"))
	require.Equal(t, "Mozilla/5.0 test", gotUA)
	require.Equal(t, "en-US,en;q=0.9", gotLang)

	require.NoError(t, page.WaitReady(context.Background(), "span.num"))
	require.Error(t, page.WaitReady(context.Background(), ".card.card-lg"))

	html, err := page.HTML(context.Background())
	require.NoError(t, err)
	require.Contains(t, html, "God Lager")

	require.NoError(t, page.Scroll(context.Background(), 300))
	require.ErrorIs(t, page.Evaluate(context.Background(), "1+1", nil), ErrUnsupported)
}

func TestCollyPageNavigateErrors(t *testing.T) {
	t.Parallel()

	launcher, transport := newMockedLauncher(t)
	transport.RegisterResponder(http.MethodGet, "https://ratings.test/missing",
		httpmock.NewStringResponder(http.StatusNotFound, "nope"))
	transport.RegisterResponder(http.MethodGet, "https://ratings.test/down",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	session, err := launcher.Launch(context.Background(), enrich.Identity{})
	require.NoError(t, err)
	page, err := session.NewPage(context.Background())
	require.NoError(t, err)

	require.Error(t, page.Navigate(context.Background(), "https://ratings.test/missing"))
	require.Error(t, page.Navigate(context.Background(), "https://ratings.test/down"))
	require.Error(t, page.WaitReady(context.Background(), "body"))

	_, err = page.HTML(context.Background())
	require.Error(t, err)
}

func TestCollyPageNavigateCanceled(t *testing.T) {
	t.Parallel()

	launcher, transport := newMockedLauncher(t)
	transport.RegisterResponder(http.MethodGet, "https://ratings.test/slow",
		func(*http.Request) (*http.Response, error) {
			time.Sleep(200 * time.Millisecond)
			return httpmock.NewStringResponse(http.StatusOK, "<html></html>"), nil
		})
	session, err := launcher.Launch(context.Background(), enrich.Identity{})
	require.NoError(t, err)
	page, err := session.NewPage(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, page.Navigate(ctx, "https://ratings.test/slow"), context.Canceled)
}

func TestHostLimiterDisabled(t *testing.T) {
	t.Parallel()

	var h *hostLimiter
	require.NoError(t, h.wait(context.Background(), "https://ratings.test/"))
	require.NoError(t, newHostLimiter(0).wait(context.Background(), "::bad"))
}

func TestHostLimiterWaits(t *testing.T) {
	t.Parallel()

	h := newHostLimiter(1000)
	for range 3 {
		require.NoError(t, h.wait(context.Background(), "https://ratings.test/a"))
	}
	require.Error(t, h.wait(context.Background(), "://bad url"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := newHostLimiter(0.001)
	require.NoError(t, slow.wait(context.Background(), "https://slow.test/"))
	require.Error(t, slow.wait(ctx, "https://slow.test/"))
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()
	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()
	require.Eventually(t, func() bool { return child.Err() != nil }, time.Second, 5*time.Millisecond)
}

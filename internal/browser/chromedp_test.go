package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

func TestResourceAllowList(t *testing.T) {
	t.Parallel()

	require.Nil(t, resourceAllowList(nil))
	allowed := resourceAllowList([]string{"Document", " xhr ", "image"})
	require.True(t, allowed["document"])
	require.True(t, allowed["xhr"])
	require.True(t, allowed["image"])
	require.False(t, allowed["font"])
}

func TestChromedpLauncherDefaults(t *testing.T) {
	t.Parallel()

	l := NewChromedpLauncher(ChromedpConfig{}, nil)
	require.Equal(t, DefaultNavTimeout, l.cfg.NavTimeout)
	require.Equal(t, DefaultReadyTimeout, l.cfg.ReadyTimeout)
	require.Nil(t, l.allowed)

	opts := l.allocatorOptions(enrich.Identity{UserAgent: "ua", Viewport: enrich.Viewport{Width: 1400, Height: 900}})
	require.Greater(t, len(opts), 4)
}

func TestChromedpSessionRendersPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<!doctype html><html><body><script>
setTimeout(function(){ document.body.innerHTML = '<div class="card">%s</div>'; }, 50);
</script></body></html>`, r.Header.Get("Accept-Language"))
	}))
	defer srv.Close()

	launcher := NewChromedpLauncher(ChromedpConfig{
		Headless:         true,
		NavTimeout:       10 * time.Second,
		ReadyTimeout:     5 * time.Second,
		AllowedResources: []string{"document", "script"},
	}, nil)
	session, err := launcher.Launch(context.Background(), enrich.Identity{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) enricher-test",
		Viewport:       enrich.Viewport{Width: 1366, Height: 768},
		AcceptLanguage: "sv-SE",
	})
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer session.Close()

	page, err := session.NewPage(context.Background())
	if err != nil {
		t.Skipf("tab unavailable: %v", err)
	}
	defer page.Close()

	if err := page.Navigate(context.Background(), srv.URL); err != nil {
		t.Skipf("navigate failed: %v", err)
	}
	require.NoError(t, page.WaitReady(context.Background(), ".card"))

	var ua string
	require.NoError(t, page.Evaluate(context.Background(), "navigator.userAgent", &ua))
	require.Contains(t, ua, "enricher-test")

	var width int
	require.NoError(t, page.Evaluate(context.Background(), "Promise.resolve(window.innerWidth)", &width))
	require.Positive(t, width)

	html, err := page.HTML(context.Background())
	require.NoError(t, err)
	require.Contains(t, html, "sv-SE")
	require.NoError(t, page.Scroll(context.Background(), 200))
}

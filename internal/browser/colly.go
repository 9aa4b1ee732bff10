package browser

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

// CollyConfig controls static HTTP sessions.
type CollyConfig struct {
	NavTimeout time.Duration
	DomainQPS  float64
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// CollyLauncher serves sessions that fetch pages without running scripts.
// Pages of one session share a cookie jar.
type CollyLauncher struct {
	cfg     CollyConfig
	limiter *hostLimiter
	logger  *zap.Logger
}

// NewCollyLauncher builds a static launcher.
func NewCollyLauncher(cfg CollyConfig, logger *zap.Logger) *CollyLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.NavTimeout = orDefault(cfg.NavTimeout, DefaultNavTimeout)
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}
	return &CollyLauncher{cfg: cfg, limiter: newHostLimiter(cfg.DomainQPS), logger: logger}
}

// Launch builds a collector carrying the identity.
func (l *CollyLauncher) Launch(_ context.Context, id enrich.Identity) (enrich.Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(l.cfg.Transport)
	c.SetCookieJar(jar)
	c.SetRequestTimeout(l.cfg.NavTimeout)
	if id.UserAgent != "" {
		c.UserAgent = id.UserAgent
	}
	return &collySession{launcher: l, base: c, id: id}, nil
}

type collySession struct {
	launcher *CollyLauncher
	base     *colly.Collector
	id       enrich.Identity
}

func (s *collySession) NewPage(context.Context) (enrich.Page, error) {
	return &collyPage{session: s}, nil
}

func (s *collySession) Close() error {
	return nil
}

type collyPage struct {
	session *collySession

	mu   sync.Mutex
	body []byte
	doc  *goquery.Document
}

func (p *collyPage) Navigate(ctx context.Context, rawURL string) error {
	if err := p.session.launcher.limiter.wait(ctx, rawURL); err != nil {
		return err
	}
	collector := p.session.base.Clone()
	var (
		body     []byte
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		if lang := p.session.id.AcceptLanguage; lang != "" {
			r.Headers.Set("Accept-Language", lang)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})
	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	p.mu.Lock()
	p.body = body
	p.doc = doc
	p.mu.Unlock()
	return nil
}

func runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// WaitReady checks the selector against the fetched document; static pages
// never change after load.
func (p *collyPage) WaitReady(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return fmt.Errorf("wait for %q: no document loaded", selector)
	}
	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("wait for %q: selector not found", selector)
	}
	return nil
}

func (p *collyPage) Evaluate(context.Context, string, any) error {
	return fmt.Errorf("evaluate: %w", ErrUnsupported)
}

func (p *collyPage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.body == nil {
		return "", fmt.Errorf("read html: no document loaded")
	}
	return string(p.body), nil
}

func (p *collyPage) Scroll(context.Context, int) error {
	return nil
}

func (p *collyPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = nil
	p.doc = nil
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

package enrich

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// recordingSleeper returns immediately and remembers requested delays.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *recordingSleeper) Total() time.Duration {
	var total time.Duration
	for _, d := range s.Delays() {
		total += d
	}
	return total
}

// fakeSite resolves terms from a table. Terms listed in notReady fail the
// readiness wait; everything else extracts from ratings or returns ErrNoRating.
type fakeSite struct {
	ratings  map[string]float64
	notReady map[string]bool
	panicOn  string
}

func (s *fakeSite) Name() string { return "fake" }

func (s *fakeSite) SearchURL(term string) string {
	return "https://ratings.test/search?q=" + url.QueryEscape(term)
}

func (s *fakeSite) ReadySelector() string { return ".card" }

func (s *fakeSite) Extract(_ context.Context, page Page) (Result, error) {
	term := page.(*fakePage).term()
	if s.panicOn != "" && term == s.panicOn {
		panic("extractor blew up")
	}
	rating, ok := s.ratings[term]
	if !ok {
		return Result{}, ErrNoRating
	}
	return Result{Rating: rating, Link: "https://ratings.test/item/" + url.PathEscape(term)}, nil
}

type fakePage struct {
	session *fakeSession
	mu      sync.Mutex
	current string
	closed  bool
	scrolls int
}

func (p *fakePage) term() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, err := url.Parse(p.current)
	if err != nil {
		return ""
	}
	return u.Query().Get("q")
}

func (p *fakePage) Navigate(_ context.Context, target string) error {
	p.session.navigations.Add(1)
	if p.session.navigateErr != nil {
		return p.session.navigateErr
	}
	p.mu.Lock()
	p.current = target
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitReady(context.Context, string) error {
	if p.session.site != nil && p.session.site.notReady[p.term()] {
		return errors.New("selector .card not found")
	}
	return nil
}

func (p *fakePage) Evaluate(context.Context, string, any) error { return nil }

func (p *fakePage) HTML(context.Context) (string, error) { return "<html></html>", nil }

func (p *fakePage) Scroll(context.Context, int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.session.pagesClosed.Add(1)
	return nil
}

type fakeSession struct {
	id          int
	site        *fakeSite
	navigateErr error
	pageErr     error

	navigations atomic.Int64
	pagesOpened atomic.Int64
	pagesClosed atomic.Int64
	closed      atomic.Bool
	identity    Identity
}

func (s *fakeSession) NewPage(context.Context) (Page, error) {
	if s.closed.Load() {
		return nil, errors.New("session closed")
	}
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	s.pagesOpened.Add(1)
	return &fakePage{session: s}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeLauncher struct {
	site   *fakeSite
	failOn map[int]bool

	mu       sync.Mutex
	sessions []*fakeSession
	launches int
}

func (l *fakeLauncher) Launch(_ context.Context, id Identity) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.launches
	l.launches++
	for _, prev := range l.sessions {
		if !prev.closed.Load() {
			return nil, errors.New("previous session still open")
		}
	}
	if l.failOn[n] {
		return nil, errors.New("chrome failed to start")
	}
	s := &fakeSession{id: n, site: l.site, identity: id}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *fakeLauncher) Sessions() []*fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeSession(nil), l.sessions...)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]Result
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]Result{}}
}

func (c *memoryCache) Get(_ context.Context, term string) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[strings.ToLower(term)]
	return r, ok, nil
}

func (c *memoryCache) Put(_ context.Context, term string, res Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[strings.ToLower(term)] = res
	return nil
}

func zeroPacing() Pacing {
	return Pacing{
		InterItem:  Window{Min: time.Millisecond, Max: time.Millisecond},
		LongBreak:  Window{Min: time.Second, Max: time.Second},
		InterChunk: Window{Min: time.Minute, Max: time.Minute},
	}
}

package enrich

import (
	"context"
	"errors"
)

// ErrNoRating is returned by Site.Extract when the page holds no usable rating.
var ErrNoRating = errors.New("no rating on page")

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Identity is the fingerprint a Session presents for its whole lifetime.
type Identity struct {
	UserAgent      string
	Viewport       Viewport
	AcceptLanguage string
}

// Launcher starts isolated browser instances.
type Launcher interface {
	Launch(ctx context.Context, id Identity) (Session, error)
}

// Session is one browser instance. Pages opened from the same Session share
// its cookies and identity. Close releases the underlying process.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until selector matches or the driver's ready timeout passes.
	WaitReady(ctx context.Context, selector string) error
	// Evaluate runs a JavaScript expression, awaiting promises, and decodes
	// the result into out.
	Evaluate(ctx context.Context, expr string, out any) error
	HTML(ctx context.Context) (string, error)
	Scroll(ctx context.Context, dy int) error
	Close() error
}

// Result is a rating read from a site.
type Result struct {
	Rating float64 `json:"rating"`
	Link   string  `json:"link"`
}

// Site knows how to look an item up on one rating site.
type Site interface {
	Name() string
	// SearchURL returns the lookup URL with term query-escaped.
	SearchURL(term string) string
	ReadySelector() string
	Extract(ctx context.Context, page Page) (Result, error)
}

// Locale is a shipping destination.
type Locale struct {
	Country string
	State   string
}

// LocaleNegotiator is implemented by sites whose results depend on a
// shipping destination.
type LocaleNegotiator interface {
	HomeURL() string
	ProbeLocale(ctx context.Context, page Page, want Locale) (bool, error)
	SetLocale(ctx context.Context, page Page, want Locale) error
}

// Cache stores resolved results by search term.
type Cache interface {
	Get(ctx context.Context, term string) (Result, bool, error)
	Put(ctx context.Context, term string, res Result) error
}

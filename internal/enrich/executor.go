package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/catalog"
)

// State is the terminal state of an item lookup.
type State string

// Terminal states.
const (
	StateResolved   State = "resolved"
	StateUnresolved State = "unresolved"
)

// Via names the path that produced a rating.
type Via string

// Lookup paths.
const (
	ViaNone     Via = ""
	ViaPrimary  Via = "primary"
	ViaFallback Via = "fallback"
	ViaCache    Via = "cache"
)

// ErrEmptyTerm marks items without a usable name.
var ErrEmptyTerm = errors.New("empty search term")

// Outcome summarizes one item lookup. It is transient and never persisted.
type Outcome struct {
	State    State
	Via      Via
	Attempts int
	// FallbackUsed is true when the alternate term was tried.
	FallbackUsed bool
	Rating       *float64
	Link         string
	Err          error
	Dur          time.Duration
}

// Executor resolves one item against a Site.
type Executor struct {
	Site    Site
	Retry   Retry
	Pacing  Pacing
	Sleeper Sleeper
	// Cache is optional.
	Cache Cache
	// Scroll enables humanized scrolling before extraction.
	Scroll bool
	Logger *zap.Logger
}

// Execute looks item up and writes the result into it. It never returns an
// error: failures of any kind, panics included, end in StateUnresolved.
func (e *Executor) Execute(ctx context.Context, session Session, item *catalog.Item) (out Outcome) {
	start := time.Now()
	logger := e.logger().With(zap.String("term", item.SearchTerm))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("item lookup panicked", zap.Any("panic", r))
			item.SetResult(nil, "")
			out = Outcome{State: StateUnresolved, Attempts: out.Attempts, Err: fmt.Errorf("panic: %v", r)}
		}
		out.Dur = time.Since(start)
	}()

	if item.SearchTerm == "" {
		item.SetResult(nil, "")
		return Outcome{State: StateUnresolved, Err: ErrEmptyTerm}
	}

	if res, ok := e.cached(ctx, item.SearchTerm, logger); ok {
		rating := res.Rating
		item.SetResult(&rating, res.Link)
		return Outcome{State: StateResolved, Via: ViaCache, Rating: &rating, Link: res.Link}
	}

	page, err := session.NewPage(ctx)
	if err != nil {
		logger.Warn("open page failed", zap.Error(err))
		item.SetResult(nil, "")
		return Outcome{State: StateUnresolved, Err: fmt.Errorf("open page: %w", err)}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Debug("close page failed", zap.Error(cerr))
		}
	}()

	res, attempts, err := e.lookup(ctx, page, item.SearchTerm, logger)
	out.Attempts = attempts
	if err == nil {
		return e.resolve(ctx, item, res, ViaPrimary, out, logger)
	}
	out.Err = err
	logger.Debug("primary lookup unresolved", zap.Error(err))

	alt, changed := Alternate(item.SearchTerm)
	if !changed || ctx.Err() != nil {
		item.SetResult(nil, "")
		out.State = StateUnresolved
		return out
	}
	out.FallbackUsed = true
	e.sleeper().Sleep(ctx, e.Pacing.FallbackDelay())
	logger.Debug("trying alternate term", zap.String("alternate", alt))

	res, attempts, err = e.lookup(ctx, page, alt, logger)
	out.Attempts += attempts
	if err == nil {
		out.Err = nil
		return e.resolve(ctx, item, res, ViaFallback, out, logger)
	}
	out.Err = err
	item.SetResult(nil, "")
	out.State = StateUnresolved
	return out
}

func (e *Executor) resolve(ctx context.Context, item *catalog.Item, res Result, via Via, out Outcome, logger *zap.Logger) Outcome {
	rating := res.Rating
	item.SetResult(&rating, res.Link)
	out.State = StateResolved
	out.Via = via
	out.Rating = &rating
	out.Link = res.Link
	if e.Cache != nil {
		if err := e.Cache.Put(ctx, item.SearchTerm, res); err != nil {
			logger.Warn("cache put failed", zap.Error(err))
		}
	}
	return out
}

// lookup navigates to the search page for term under the retry policy and
// extracts a rating in [0,5]. It returns the attempts spent navigating.
func (e *Executor) lookup(ctx context.Context, page Page, term string, logger *zap.Logger) (Result, int, error) {
	target := e.Site.SearchURL(term)
	attempts, err := e.Retry.Do(ctx, "lookup "+term, func(ctx context.Context, attempt int) error {
		if err := page.Navigate(ctx, target); err != nil {
			logger.Debug("navigate failed", zap.Int("attempt", attempt), zap.Error(err))
			return fmt.Errorf("navigate: %w", err)
		}
		if err := page.WaitReady(ctx, e.Site.ReadySelector()); err != nil {
			logger.Debug("page not ready", zap.Int("attempt", attempt), zap.Error(err))
			return fmt.Errorf("wait ready: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, attempts, err
	}
	if e.Scroll {
		e.humanize(ctx, page)
	}
	res, err := e.Site.Extract(ctx, page)
	if err != nil {
		return Result{}, attempts, fmt.Errorf("extract: %w", err)
	}
	if res.Rating < 0 || res.Rating > 5 {
		logger.Warn("rating out of range", zap.Float64("rating", res.Rating), zap.String("url", target))
		return Result{}, attempts, fmt.Errorf("rating %.2f out of range: %w", res.Rating, ErrNoRating)
	}
	return res, attempts, nil
}

func (e *Executor) humanize(ctx context.Context, page Page) {
	for _, dy := range e.Pacing.ScrollPlan() {
		if err := page.Scroll(ctx, dy); err != nil {
			return
		}
		e.sleeper().Sleep(ctx, e.Pacing.ScrollPause())
	}
}

func (e *Executor) cached(ctx context.Context, term string, logger *zap.Logger) (Result, bool) {
	if e.Cache == nil {
		return Result{}, false
	}
	res, ok, err := e.Cache.Get(ctx, term)
	if err != nil {
		logger.Warn("cache get failed", zap.Error(err))
		return Result{}, false
	}
	if !ok || res.Rating < 0 || res.Rating > 5 {
		return Result{}, false
	}
	return res, true
}

func (e *Executor) sleeper() Sleeper {
	if e.Sleeper != nil {
		return e.Sleeper
	}
	return timerSleeper{}
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

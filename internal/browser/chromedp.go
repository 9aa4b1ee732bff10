package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

// ChromedpConfig controls headless Chrome sessions.
type ChromedpConfig struct {
	Headless     bool
	ExecPath     string
	NavTimeout   time.Duration
	ReadyTimeout time.Duration
	// AllowedResources lists resource types (document, script, stylesheet,
	// xhr, fetch, image, ...) allowed through. Empty disables filtering.
	AllowedResources []string
	// DomainQPS caps navigations per host; zero disables the cap.
	DomainQPS float64
}

// ChromedpLauncher starts one Chrome process per session.
type ChromedpLauncher struct {
	cfg     ChromedpConfig
	allowed map[string]bool
	limiter *hostLimiter
	logger  *zap.Logger
}

// NewChromedpLauncher builds a launcher. No browser starts until Launch.
func NewChromedpLauncher(cfg ChromedpConfig, logger *zap.Logger) *ChromedpLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.NavTimeout = orDefault(cfg.NavTimeout, DefaultNavTimeout)
	cfg.ReadyTimeout = orDefault(cfg.ReadyTimeout, DefaultReadyTimeout)
	return &ChromedpLauncher{
		cfg:     cfg,
		allowed: resourceAllowList(cfg.AllowedResources),
		limiter: newHostLimiter(cfg.DomainQPS),
		logger:  logger,
	}
}

func resourceAllowList(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(names))
	for _, name := range names {
		allowed[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return allowed
}

func (l *ChromedpLauncher) allocatorOptions(id enrich.Identity) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
	)
	if id.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(id.UserAgent))
	}
	if id.Viewport.Width > 0 && id.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(id.Viewport.Width, id.Viewport.Height))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Launch starts a browser with the given identity and waits until it answers.
func (l *ChromedpLauncher) Launch(ctx context.Context, id enrich.Identity) (enrich.Session, error) {
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(id)...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	stopForward := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stopForward()
	if err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &chromedpSession{
		launcher:        l,
		id:              id,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
	}, nil
}

type chromedpSession struct {
	launcher        *ChromedpLauncher
	id              enrich.Identity
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	closeOnce       sync.Once
}

// NewPage opens a tab carrying the session identity and request filter.
func (s *chromedpSession) NewPage(ctx context.Context) (enrich.Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	if s.launcher.allowed != nil {
		s.interceptRequests(tabCtx)
	}

	setupCtx, cancelSetup := context.WithTimeout(tabCtx, s.launcher.cfg.NavTimeout)
	defer cancelSetup()
	stopForward := forwardCancel(ctx, cancelSetup)
	defer stopForward()

	if err := chromedp.Run(setupCtx, s.setupTasks()); err != nil {
		cancelTab()
		return nil, fmt.Errorf("tab setup: %w", err)
	}
	return &chromedpPage{session: s, tabCtx: tabCtx, cancel: cancelTab}, nil
}

func (s *chromedpSession) setupTasks() chromedp.Tasks {
	tasks := chromedp.Tasks{network.Enable()}
	if s.id.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(s.id.UserAgent)
		if s.id.AcceptLanguage != "" {
			ua = ua.WithAcceptLanguage(s.id.AcceptLanguage)
		}
		tasks = append(tasks, ua)
	}
	if s.id.AcceptLanguage != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": s.id.AcceptLanguage}))
	}
	if s.id.Viewport.Width > 0 && s.id.Viewport.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(s.id.Viewport.Width), int64(s.id.Viewport.Height), 1, false))
	}
	if s.launcher.allowed != nil {
		tasks = append(tasks, fetch.Enable())
	}
	return tasks
}

// interceptRequests continues allow-listed resource types and fails the rest.
func (s *chromedpSession) interceptRequests(tabCtx context.Context) {
	allowed := s.launcher.allowed
	logger := s.launcher.logger
	chromedp.ListenTarget(tabCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(tabCtx, c.Target)
			var err error
			if allowed[strings.ToLower(string(paused.ResourceType))] {
				err = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
			} else {
				err = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			}
			if err != nil && tabCtx.Err() == nil {
				logger.Debug("request interception failed",
					zap.String("resource_type", string(paused.ResourceType)),
					zap.Error(err))
			}
		}()
	})
}

// Close shuts the browser down and releases the allocator.
func (s *chromedpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.browserCtx)
		s.browserCancel()
		s.allocatorCancel()
	})
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

type chromedpPage struct {
	session *chromedpSession
	tabCtx  context.Context
	cancel  context.CancelFunc
}

func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancelTask := context.WithTimeout(p.tabCtx, timeout)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()
	return chromedp.Run(taskCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, rawURL string) error {
	if err := p.session.launcher.limiter.wait(ctx, rawURL); err != nil {
		return err
	}
	if err := p.run(ctx, p.session.launcher.cfg.NavTimeout, chromedp.Navigate(rawURL)); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return nil
}

func (p *chromedpPage) WaitReady(ctx context.Context, selector string) error {
	if err := p.run(ctx, p.session.launcher.cfg.ReadyTimeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, expr string, out any) error {
	awaitPromise := func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}
	if err := p.run(ctx, p.session.launcher.cfg.NavTimeout, chromedp.Evaluate(expr, out, awaitPromise)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.session.launcher.cfg.ReadyTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (p *chromedpPage) Scroll(ctx context.Context, dy int) error {
	expr := fmt.Sprintf("window.scrollBy({top: %d, behavior: 'smooth'})", dy)
	if err := p.run(ctx, p.session.launcher.cfg.ReadyTimeout, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Close closes the tab.
func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

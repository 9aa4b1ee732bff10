package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnsupported is returned by drivers for capabilities they cannot offer.
var ErrUnsupported = errors.New("operation not supported by driver")

// Default timeouts applied when the config leaves them unset.
const (
	DefaultNavTimeout   = 15 * time.Second
	DefaultReadyTimeout = 5 * time.Second
)

// hostLimiter caps navigations per host across all sessions of a launcher.
type hostLimiter struct {
	qps      float64
	limiters sync.Map
}

func newHostLimiter(qps float64) *hostLimiter {
	return &hostLimiter{qps: qps}
}

func (h *hostLimiter) wait(ctx context.Context, rawURL string) error {
	if h == nil || h.qps <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse navigation url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := h.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(h.qps), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait host limiter: %w", err)
	}
	return nil
}

// forwardCancel calls cancel when parent ends. The returned func stops watching.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

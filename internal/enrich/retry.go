package enrich

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// ErrRetriesExhausted is matched by every ExhaustedError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError reports an operation that failed on every attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

// Unwrap exposes both the sentinel and the last attempt's error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

// Retry wraps an operation with bounded exponential backoff. The delay before
// retry k (k >= 1) is Base * 2^k. No delay follows the final attempt.
type Retry struct {
	MaxAttempts int
	Base        time.Duration
	// Jitter adds up to half the computed delay on top of it.
	Jitter  bool
	Sleeper Sleeper
}

// DefaultRetry returns three attempts with a one second base.
func DefaultRetry() Retry {
	return Retry{MaxAttempts: 3, Base: time.Second}
}

// Backoff returns the wait before retry k.
func (r Retry) Backoff(k int) time.Duration {
	if k < 1 {
		return 0
	}
	delay := r.Base << k
	if r.Jitter {
		delay += randomJitter(delay / 2)
	}
	return delay
}

// Do runs fn until it succeeds, ctx ends, or MaxAttempts is reached. It
// returns the number of attempts made.
func (r Retry) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := max(r.MaxAttempts, 1)
	sleeper := r.Sleeper
	if sleeper == nil {
		sleeper = timerSleeper{}
	}
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			sleeper.Sleep(ctx, r.Backoff(attempt-1))
		}
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			return attempt - 1, &ExhaustedError{Op: op, Attempts: attempt - 1, Last: last}
		}
		last = fn(ctx, attempt)
		if last == nil {
			return attempt, nil
		}
	}
	return maxAttempts, &ExhaustedError{Op: op, Attempts: maxAttempts, Last: last}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

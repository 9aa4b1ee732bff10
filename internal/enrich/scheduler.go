package enrich

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs per-item work under a fixed concurrency limit and paces
// completions. It is tolerant of partial failure: every job runs to
// completion regardless of what its siblings do.
type Scheduler struct {
	Concurrency int
	// LongBreakEvery adds a long break after the inter-item delay of every
	// Nth completion. Zero disables long breaks.
	LongBreakEvery int
	Pacing         Pacing
	Sleeper        Sleeper
	Logger         *zap.Logger
}

// Run invokes perItem for indexes 0..n-1 and returns once all have returned.
// A panicking perItem is recovered and logged. The pacing delay after each
// completion holds the job's slot, so it also throttles admission.
func (s *Scheduler) Run(ctx context.Context, n int, perItem func(ctx context.Context, idx int)) {
	if n <= 0 {
		return
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleeper := s.Sleeper
	if sleeper == nil {
		sleeper = timerSleeper{}
	}
	var g errgroup.Group
	g.SetLimit(max(s.Concurrency, 1))
	var completed atomic.Int64
	for idx := range n {
		if ctx.Err() != nil {
			logger.Warn("scheduler stopped before admitting all items",
				zap.Int("admitted", idx), zap.Int("total", n), zap.Error(ctx.Err()))
			break
		}
		g.Go(func() error {
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("item task panicked", zap.Int("index", idx), zap.Any("panic", r))
					}
				}()
				perItem(ctx, idx)
			}()
			done := completed.Add(1)
			sleeper.Sleep(ctx, s.Pacing.InterItemDelay())
			if s.LongBreakEvery > 0 && done%int64(s.LongBreakEvery) == 0 {
				delay := s.Pacing.LongBreakDelay()
				logger.Debug("taking long break", zap.Int64("completed", done), zap.Duration("delay", delay))
				sleeper.Sleep(ctx, delay)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// RunBounded is a convenience wrapper over Scheduler.Run for a job slice.
func RunBounded[T any](ctx context.Context, s *Scheduler, jobs []T, perItem func(ctx context.Context, idx int, job T)) {
	s.Run(ctx, len(jobs), func(ctx context.Context, idx int) {
		perItem(ctx, idx, jobs[idx])
	})
}

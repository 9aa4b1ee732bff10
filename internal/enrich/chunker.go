package enrich

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ChunkSpan locates a chunk inside the worker's range.
type ChunkSpan struct {
	Index  int
	Offset int
	Len    int
}

// ChunkHooks observes chunk lifecycle. Nil fields are skipped.
type ChunkHooks struct {
	OnStart        func(span ChunkSpan, id Identity)
	OnDone         func(span ChunkSpan, dur time.Duration)
	OnSessionError func(span ChunkSpan, err error)
}

// Chunker processes a worker range chunk by chunk, one fresh Session per
// chunk. Chunks run strictly in order; chunk k+1 starts only after chunk k's
// handler returned and its Session was closed.
type Chunker struct {
	Launcher   Launcher
	Identities IdentityPool
	// Negotiator and Locale enable per-session locale setup.
	Negotiator LocaleNegotiator
	Locale     Locale
	Retry      Retry
	Pacing     Pacing
	Sleeper    Sleeper
	Hooks      ChunkHooks
	Logger     *zap.Logger
}

// RunChunks splits n items into chunks of chunkSize and calls handler for each
// with a dedicated Session. A chunk whose Session cannot be launched is skipped
// and reported through Hooks.OnSessionError. It returns the number of skipped
// chunks.
func (c *Chunker) RunChunks(
	ctx context.Context,
	n, chunkSize int,
	handler func(ctx context.Context, session Session, span ChunkSpan),
) int {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleeper := c.Sleeper
	if sleeper == nil {
		sleeper = timerSleeper{}
	}
	if chunkSize < 1 {
		chunkSize = 1
	}
	skipped := 0
	index := 0
	for offset := 0; offset < n; offset += chunkSize {
		if ctx.Err() != nil {
			logger.Warn("run cancelled; remaining chunks skipped", zap.Int("next_chunk", index))
			return skipped + (n-offset+chunkSize-1)/chunkSize
		}
		span := ChunkSpan{Index: index, Offset: offset, Len: min(chunkSize, n-offset)}
		if err := c.runChunk(ctx, span, handler, logger); err != nil {
			skipped++
			logger.Error("chunk skipped", zap.Int("chunk", span.Index), zap.Int("offset", span.Offset), zap.Error(err))
			if c.Hooks.OnSessionError != nil {
				c.Hooks.OnSessionError(span, err)
			}
		}
		index++
		if offset+chunkSize < n {
			delay := c.Pacing.InterChunkDelay()
			logger.Info("pausing between chunks", zap.Duration("delay", delay))
			sleeper.Sleep(ctx, delay)
		}
	}
	return skipped
}

func (c *Chunker) runChunk(
	ctx context.Context,
	span ChunkSpan,
	handler func(ctx context.Context, session Session, span ChunkSpan),
	logger *zap.Logger,
) error {
	start := time.Now()
	id := c.Identities.Draw()
	logger = logger.With(zap.Int("chunk", span.Index))
	logger.Info("launching session",
		zap.Int("offset", span.Offset),
		zap.Int("items", span.Len),
		zap.String("user_agent", id.UserAgent),
		zap.Int("viewport_width", id.Viewport.Width),
		zap.Int("viewport_height", id.Viewport.Height),
	)
	session, err := c.Launcher.Launch(ctx, id)
	if err != nil {
		return fmt.Errorf("launch session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("close session failed", zap.Error(cerr))
		}
		logger.Info("session closed", zap.Duration("dur", time.Since(start)))
	}()
	if c.Hooks.OnStart != nil {
		c.Hooks.OnStart(span, id)
	}

	if c.Negotiator != nil {
		if err := NegotiateLocale(ctx, session, c.Negotiator, c.Locale, c.Retry, logger); err != nil {
			logger.Warn("locale negotiation failed; continuing", zap.Error(err))
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("chunk handler panicked", zap.Any("panic", r))
			}
		}()
		handler(ctx, session, span)
	}()

	if c.Hooks.OnDone != nil {
		c.Hooks.OnDone(span, time.Since(start))
	}
	return nil
}

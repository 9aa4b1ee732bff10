package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/progress"
)

// LogSink writes run and chunk milestones as structured logs. Item events
// are logged at debug since the runner already logs each item.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("worker_id", evt.WorkerID),
			zap.Int("chunk", evt.Chunk),
		}
		switch evt.Stage {
		case progress.StageItemDone:
			fields = append(fields,
				zap.Int("item", evt.Item),
				zap.String("outcome", evt.Outcome),
				zap.String("via", evt.Via),
				zap.Int("attempts", evt.Attempts),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Debug("progress event", fields...)
			continue
		case progress.StageSessionError:
			fields = append(fields, zap.String("note", evt.Note))
			s.logger.Warn("progress event", fields...)
			continue
		}
		fields = append(fields, zap.Int("items", evt.Items), zap.Duration("dur", evt.Dur))
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}

package enrich

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/catalog"
	"github.com/JakeFAU/rating-enricher/internal/progress"
)

// Plan selects the slice of the catalog a run enriches.
type Plan struct {
	WorkerID     int
	TotalWorkers int
	// Start and End override the computed partition when both are >= 0.
	Start     int
	End       int
	ChunkSize int
}

// Partitioned reports whether the run writes a worker-scoped artifact.
func (p Plan) Partitioned() bool {
	return p.TotalWorkers > 1 || (p.Start >= 0 && p.End >= 0)
}

// Resolve computes the worker range for total items.
func (p Plan) Resolve(total int) (WorkerRange, error) {
	if p.Start >= 0 || p.End >= 0 {
		if p.Start < 0 || p.End < 0 {
			return WorkerRange{}, fmt.Errorf("%w: explicit range needs both start and end", ErrInvalidPartition)
		}
		return ExplicitRange(total, p.Start, p.End)
	}
	return Partition(total, p.WorkerID, p.TotalWorkers)
}

// Record is one item's persisted lookup result.
type Record struct {
	RunID      uuid.UUID
	WorkerID   int
	Index      int
	Term       string
	Rating     *float64
	Link       string
	State      State
	Via        Via
	Attempts   int
	RecordedAt time.Time
}

// ArtifactWriter persists the enriched slice.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, doc *catalog.Document, items []*catalog.Item, partition *catalog.PartitionInfo) (string, error)
}

// Recorder persists per-item results.
type Recorder interface {
	RecordResults(ctx context.Context, records []Record) error
}

// Notifier announces a finished worker run.
type Notifier interface {
	NotifyDone(ctx context.Context, summary Summary) error
}

// Summary describes a finished run.
type Summary struct {
	RunID         string         `json:"run_id"`
	WorkerID      int            `json:"worker_id"`
	TotalWorkers  int            `json:"total_workers"`
	Start         int            `json:"start"`
	End           int            `json:"end"`
	Items         int            `json:"items"`
	Resolved      int            `json:"resolved"`
	Unresolved    int            `json:"unresolved"`
	ByVia         map[string]int `json:"by_via"`
	SkippedChunks int            `json:"skipped_chunks"`
	Artifact      string         `json:"artifact"`
	Partitioned   bool           `json:"partitioned"`
	Duration      time.Duration  `json:"duration_ns"`
}

// Runner wires the pipeline for one worker: partition, chunk, schedule,
// execute, then write the artifact.
type Runner struct {
	Chunker   *Chunker
	Scheduler *Scheduler
	Executor  *Executor
	Artifacts ArtifactWriter
	// Recorder and Notifier are optional.
	Recorder Recorder
	Notifier Notifier
	Progress progress.Emitter
	Logger   *zap.Logger
}

// Run enriches the plan's slice of doc. Only invalid plans and artifact
// write failures return an error; item failures are reported in the Summary.
func (r *Runner) Run(ctx context.Context, runID uuid.UUID, doc *catalog.Document, plan Plan) (Summary, error) {
	started := time.Now()
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := r.Progress
	if emitter == nil {
		emitter = progress.Discard
	}
	rng, err := plan.Resolve(len(doc.Items))
	if err != nil {
		return Summary{}, err
	}
	logger = logger.With(zap.String("run_id", runID.String()), zap.Int("worker_id", plan.WorkerID))
	items := doc.Items[rng.Start:rng.End]
	total := len(items)
	logger.Info("worker range",
		zap.Int("start", rng.Start),
		zap.Int("end", rng.End),
		zap.Int("items", total),
		zap.Int("catalog_items", len(doc.Items)),
	)

	rid := progress.UUIDToBytes(runID)
	emit := func(evt progress.Event) {
		evt.RunID = rid
		evt.TS = time.Now().UTC()
		evt.WorkerID = plan.WorkerID
		emitter.Emit(evt)
	}
	emit(progress.Event{Stage: progress.StageRunStart, Items: total})

	summary := Summary{
		RunID:        runID.String(),
		WorkerID:     plan.WorkerID,
		TotalWorkers: plan.TotalWorkers,
		Start:        rng.Start,
		End:          rng.End,
		Items:        total,
		ByVia:        map[string]int{},
		Partitioned:  plan.Partitioned(),
	}
	outcomes := make([]Outcome, total)
	processed := make([]bool, total)

	chunker := *r.Chunker
	userHooks := chunker.Hooks
	chunker.Hooks = ChunkHooks{
		OnStart: func(span ChunkSpan, id Identity) {
			emit(progress.Event{Stage: progress.StageChunkStart, Chunk: span.Index, Items: span.Len})
			if userHooks.OnStart != nil {
				userHooks.OnStart(span, id)
			}
		},
		OnDone: func(span ChunkSpan, dur time.Duration) {
			emit(progress.Event{Stage: progress.StageChunkDone, Chunk: span.Index, Items: span.Len, Dur: dur})
			if userHooks.OnDone != nil {
				userHooks.OnDone(span, dur)
			}
		},
		OnSessionError: func(span ChunkSpan, err error) {
			emit(progress.Event{Stage: progress.StageSessionError, Chunk: span.Index, Items: span.Len, Note: err.Error()})
			if userHooks.OnSessionError != nil {
				userHooks.OnSessionError(span, err)
			}
		},
	}

	var done atomic.Int64
	summary.SkippedChunks = chunker.RunChunks(ctx, total, plan.ChunkSize, func(ctx context.Context, session Session, span ChunkSpan) {
		chunk := items[span.Offset : span.Offset+span.Len]
		RunBounded(ctx, r.Scheduler, chunk, func(ctx context.Context, idx int, item *catalog.Item) {
			pos := span.Offset + idx
			out := r.Executor.Execute(ctx, session, item)
			outcomes[pos] = out
			processed[pos] = true

			n := done.Add(1)
			fields := []zap.Field{
				zap.String("term", item.SearchTerm),
				zap.String("outcome", string(out.State)),
				zap.Int("attempts", out.Attempts),
				zap.Duration("dur", out.Dur),
			}
			if out.State == StateResolved {
				fields = append(fields, zap.String("via", string(out.Via)), zap.Float64("rating", *out.Rating), zap.String("rating_link", out.Link))
			} else if out.Err != nil {
				fields = append(fields, zap.Error(out.Err))
			}
			logger.Info(fmt.Sprintf("(%d/%d) item done", n, total), fields...)
			emit(progress.Event{
				Stage:    progress.StageItemDone,
				Chunk:    span.Index,
				Item:     pos,
				Outcome:  string(out.State),
				Via:      string(out.Via),
				Attempts: out.Attempts,
				Dur:      out.Dur,
			})
		})
	})

	records := make([]Record, 0, total)
	now := time.Now().UTC()
	for pos, out := range outcomes {
		if !processed[pos] {
			// skipped chunk or cancelled run: no rating from this run
			items[pos].SetResult(nil, "")
			summary.Unresolved++
			continue
		}
		if out.State == StateResolved {
			summary.Resolved++
			summary.ByVia[string(out.Via)]++
		} else {
			summary.Unresolved++
		}
		records = append(records, Record{
			RunID:      runID,
			WorkerID:   plan.WorkerID,
			Index:      rng.Start + pos,
			Term:       items[pos].SearchTerm,
			Rating:     out.Rating,
			Link:       out.Link,
			State:      out.State,
			Via:        out.Via,
			Attempts:   out.Attempts,
			RecordedAt: now,
		})
	}

	var partition *catalog.PartitionInfo
	if summary.Partitioned {
		partition = &catalog.PartitionInfo{
			WorkerID:     plan.WorkerID,
			TotalWorkers: plan.TotalWorkers,
			Start:        rng.Start,
			End:          rng.End,
		}
	}
	// The artifact is written even when ctx was cancelled.
	writeCtx := context.WithoutCancel(ctx)
	uri, err := r.Artifacts.WriteArtifact(writeCtx, doc, items, partition)
	if err != nil {
		return summary, fmt.Errorf("write artifact: %w", err)
	}
	summary.Artifact = uri
	logger.Info("artifact written", zap.String("uri", uri), zap.Int("items", total))

	if r.Recorder != nil && len(records) > 0 {
		if err := r.Recorder.RecordResults(writeCtx, records); err != nil {
			logger.Warn("record results failed", zap.Error(err))
		}
	}
	summary.Duration = time.Since(started)
	if r.Notifier != nil {
		if err := r.Notifier.NotifyDone(writeCtx, summary); err != nil {
			logger.Warn("completion notification failed", zap.Error(err))
		}
	}
	emit(progress.Event{Stage: progress.StageRunDone, Items: total, Dur: summary.Duration})
	logger.Info("run finished",
		zap.Int("resolved", summary.Resolved),
		zap.Int("unresolved", summary.Unresolved),
		zap.Int("skipped_chunks", summary.SkippedChunks),
		zap.Duration("dur", summary.Duration),
	)
	return summary, nil
}

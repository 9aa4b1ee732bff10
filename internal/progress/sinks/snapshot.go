package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/rating-enricher/internal/progress"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	RunID         string         `json:"run_id,omitempty"`
	WorkerID      int            `json:"worker_id"`
	Items         int            `json:"items"`
	Processed     int            `json:"processed"`
	Resolved      int            `json:"resolved"`
	Unresolved    int            `json:"unresolved"`
	ByVia         map[string]int `json:"by_via"`
	Chunk         int            `json:"chunk"`
	SessionErrors int            `json:"session_errors"`
	StartedAt     time.Time      `json:"started_at,omitempty"`
	FinishedAt    time.Time      `json:"finished_at,omitempty"`
	LastUpdate    time.Time      `json:"last_update,omitempty"`
	Done          bool           `json:"done"`
}

// SnapshotSink keeps running counters in memory.
type SnapshotSink struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewSnapshotSink returns an empty snapshot sink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{snap: Snapshot{ByVia: map[string]int{}}}
}

// Consume folds batch into the snapshot.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.snap.LastUpdate = evt.TS
		switch evt.Stage {
		case progress.StageRunStart:
			s.snap.RunID = evt.RunUUID().String()
			s.snap.WorkerID = evt.WorkerID
			s.snap.Items = evt.Items
			s.snap.StartedAt = evt.TS
		case progress.StageChunkStart:
			s.snap.Chunk = evt.Chunk
		case progress.StageSessionError:
			s.snap.SessionErrors++
		case progress.StageItemDone:
			s.snap.Processed++
			if evt.Outcome == "resolved" {
				s.snap.Resolved++
				s.snap.ByVia[evt.Via]++
			} else {
				s.snap.Unresolved++
			}
		case progress.StageRunDone:
			s.snap.Done = true
			s.snap.FinishedAt = evt.TS
		}
	}
	return nil
}

// Snapshot returns a copy of the current counters.
func (s *SnapshotSink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.ByVia = make(map[string]int, len(s.snap.ByVia))
	for k, v := range s.snap.ByVia {
		out.ByVia[k] = v
	}
	return out
}

// Close implements progress.Sink.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}

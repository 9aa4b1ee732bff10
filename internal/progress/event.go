package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event records.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageChunkStart   Stage = "CHUNK_START"
	StageChunkDone    Stage = "CHUNK_DONE"
	StageSessionError Stage = "SESSION_ERROR"
	StageItemDone     Stage = "ITEM_DONE"
	StageRunDone      Stage = "RUN_DONE"
)

// Event captures one enrichment milestone.
type Event struct {
	// RunID identifies the run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS       time.Time
	Stage    Stage
	WorkerID int
	// Chunk is the zero-based chunk index within the worker's range.
	Chunk int
	// Item is the zero-based index into the worker's range.
	Item int
	// Items carries the number of items the run or chunk covers.
	Items int
	// Outcome is "resolved" or "unresolved" on item events.
	Outcome string
	// Via is the lookup path that resolved the item.
	Via      string
	Attempts int
	Dur      time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageChunkStart, StageChunkDone, StageSessionError:
	case StageItemDone:
		if e.Outcome == "" {
			return errors.New("item done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

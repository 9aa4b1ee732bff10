package enrich

import (
	"errors"
	"fmt"
)

// ErrInvalidPartition reports bad worker arguments.
var ErrInvalidPartition = errors.New("invalid partition")

// WorkerRange is a half-open index range [Start, End) into the global list.
type WorkerRange struct {
	Start int
	End   int
}

// Len returns the number of items in the range.
func (r WorkerRange) Len() int {
	return r.End - r.Start
}

// Partition computes the contiguous range owned by workerID. Ranges for
// workers 0..totalWorkers-1 tile [0,total) with sizes differing by at most one.
func Partition(total, workerID, totalWorkers int) (WorkerRange, error) {
	if totalWorkers < 1 {
		return WorkerRange{}, fmt.Errorf("%w: total workers %d < 1", ErrInvalidPartition, totalWorkers)
	}
	if workerID < 0 || workerID >= totalWorkers {
		return WorkerRange{}, fmt.Errorf("%w: worker id %d outside [0,%d)", ErrInvalidPartition, workerID, totalWorkers)
	}
	if total < 0 {
		return WorkerRange{}, fmt.Errorf("%w: negative item count %d", ErrInvalidPartition, total)
	}
	return WorkerRange{
		Start: workerID * total / totalWorkers,
		End:   (workerID + 1) * total / totalWorkers,
	}, nil
}

// ExplicitRange validates a caller supplied range against the list length.
func ExplicitRange(total, start, end int) (WorkerRange, error) {
	if start < 0 || end < start || end > total {
		return WorkerRange{}, fmt.Errorf("%w: range [%d,%d) outside [0,%d)", ErrInvalidPartition, start, end, total)
	}
	return WorkerRange{Start: start, End: end}, nil
}

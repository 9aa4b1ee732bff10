package enrich

import (
	"context"
	"math/rand/v2"
	"time"
)

// Window is an inclusive [Min, Max] duration range.
type Window struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// IntRange is an inclusive [Min, Max] integer range.
type IntRange struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// Pacing computes randomized delays. It holds no mutable state and is safe
// to share across goroutines.
type Pacing struct {
	InterItem      Window
	LongBreak      Window
	InterChunk     Window
	Fallback       Window
	ScrollDelay    Window
	ScrollSteps    IntRange
	ScrollDistance IntRange

	// Int63n overrides the random source; nil uses math/rand/v2.
	Int63n func(n int64) int64
}

// DefaultPacing returns the windows used when nothing is configured.
func DefaultPacing() Pacing {
	return Pacing{
		InterItem:      Window{Min: time.Second, Max: 2 * time.Second},
		LongBreak:      Window{Min: 5 * time.Second, Max: 15 * time.Second},
		InterChunk:     Window{Min: 5 * time.Second, Max: 10 * time.Second},
		Fallback:       Window{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
		ScrollDelay:    Window{Min: 300 * time.Millisecond, Max: 800 * time.Millisecond},
		ScrollSteps:    IntRange{Min: 2, Max: 5},
		ScrollDistance: IntRange{Min: 200, Max: 600},
	}
}

// InterItemDelay is applied after every completed item.
func (p Pacing) InterItemDelay() time.Duration { return p.pick(p.InterItem) }

// LongBreakDelay is applied after every Nth completed item.
func (p Pacing) LongBreakDelay() time.Duration { return p.pick(p.LongBreak) }

// InterChunkDelay is applied between chunks.
func (p Pacing) InterChunkDelay() time.Duration { return p.pick(p.InterChunk) }

// FallbackDelay is applied before the alternate term lookup.
func (p Pacing) FallbackDelay() time.Duration { return p.pick(p.Fallback) }

// ScrollPause is applied between scroll steps.
func (p Pacing) ScrollPause() time.Duration { return p.pick(p.ScrollDelay) }

// ScrollPlan returns the distances of a humanized scroll sequence.
func (p Pacing) ScrollPlan() []int {
	steps := p.pickInt(p.ScrollSteps)
	if steps <= 0 {
		return nil
	}
	plan := make([]int, steps)
	for i := range plan {
		plan[i] = p.pickInt(p.ScrollDistance)
	}
	return plan
}

func (p Pacing) pick(w Window) time.Duration {
	if w.Max <= w.Min {
		return max(w.Min, 0)
	}
	return w.Min + time.Duration(p.int63n(int64(w.Max-w.Min)+1))
}

func (p Pacing) pickInt(r IntRange) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + int(p.int63n(int64(r.Max-r.Min)+1))
}

func (p Pacing) int63n(n int64) int64 {
	if p.Int63n != nil {
		return p.Int63n(n)
	}
	return rand.Int64N(n)
}

// Sleeper pauses for a duration or until ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

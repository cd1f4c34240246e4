// Package pace inserts randomized pauses between requests so a scrape run
// looks like a person browsing rather than a crawler.
package pace

import (
	"context"
	"math/rand/v2"
	"time"
)

// Range is an inclusive [Min, Max] pause window.
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Default windows.
var (
	PreRun  = Range{Min: 3 * time.Second, Max: 8 * time.Second}
	PostRun = Range{Min: 5 * time.Second, Max: 12 * time.Second}
	Product = Range{Min: 100 * time.Millisecond, Max: 500 * time.Millisecond}
	Family  = Range{Min: 2 * time.Second, Max: 4 * time.Second}
)

// OrDefault returns def when r is unset.
func (r Range) OrDefault(def Range) Range {
	if r.Min <= 0 && r.Max <= 0 {
		return def
	}
	return r
}

// Pick returns a uniformly random duration in the window. A window with
// Max < Min collapses to Min.
func (r Range) Pick() time.Duration {
	if r.Max <= r.Min {
		return max(r.Min, 0)
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

// Pacer pauses between steps of a run.
type Pacer interface {
	// Pause sleeps for a duration drawn from r. It returns ctx.Err() if the
	// run is cancelled first.
	Pause(ctx context.Context, r Range) error
}

// Jitter is the production Pacer.
type Jitter struct{}

func (Jitter) Pause(ctx context.Context, r Range) error {
	d := r.Pick()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// None never sleeps. Used by tests and one-shot debugging runs.
type None struct{}

func (None) Pause(ctx context.Context, _ Range) error { return ctx.Err() }

package runctl

import (
	"context"
	"sync"
	"time"
)

// Run is one active scrape of a site.
type Run struct {
	ID        string
	SiteID    string
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	gate chan struct{} // non-nil while paused; closed on resume
}

// Context is the run's cancellation token. It is done once the run is
// stopped or has ended.
func (r *Run) Context() context.Context { return r.ctx }

// WaitIfPaused blocks while the run is paused. It returns the context error
// if the run was stopped, nil otherwise.
func (r *Run) WaitIfPaused() error {
	for {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		r.mu.Lock()
		gate := r.gate
		r.mu.Unlock()
		if gate == nil {
			return nil
		}
		select {
		case <-gate:
		case <-r.ctx.Done():
			return r.ctx.Err()
		}
	}
}

// Paused reports whether the pause gate is closed.
func (r *Run) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gate != nil
}

func (r *Run) pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate == nil {
		r.gate = make(chan struct{})
	}
}

func (r *Run) resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

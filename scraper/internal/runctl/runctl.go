// CLAUDE:SUMMARY Per-site run state machine: exclusive start, pause/resume gate, cooperative stop via context cancellation.
// Package runctl tracks the run state of every site and hands each run a
// cancellation context plus a pause gate.
//
//	Idle|Completed|Error|Stopped --Start--> Running
//	Running --Pause--> Paused --Resume--> Running
//	Running|Paused --Stop--> Stopped          (cancels the run context)
//	Running|Paused --MarkCompleted--> Completed
//	Running|Paused --MarkError--> Error
//
// Any other transition is a no-op that reports false. A site's run slot
// stays claimed until the run's goroutine calls Done, so a stopped run that
// is still unwinding blocks the next Start.
package runctl

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/supplyscrape/idgen"
	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(gen idgen.Generator) Option { return func(c *Controller) { c.newID = gen } }

// WithOnChange registers a hook called after every accepted transition,
// outside the controller lock.
func WithOnChange(fn func(model.RunStatus)) Option { return func(c *Controller) { c.onChange = fn } }

// Controller owns the run state of all sites.
type Controller struct {
	mu       sync.Mutex
	status   map[string]model.RunStatus
	runs     map[string]*Run
	logger   *slog.Logger
	now      func() time.Time
	newID    idgen.Generator
	onChange func(model.RunStatus)
}

// New creates an empty Controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		status: make(map[string]model.RunStatus),
		runs:   make(map[string]*Run),
		logger: slog.Default(),
		now:    time.Now,
		newID:  idgen.RunID,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start claims the site's run slot. It returns false while a run is active
// or a finished run has not called Done yet. The returned Run's context
// derives from ctx.
func (c *Controller) Start(ctx context.Context, siteID string) (*Run, bool) {
	c.mu.Lock()
	cur := c.statusLocked(siteID)
	if cur.State.Active() || c.runs[siteID] != nil {
		c.mu.Unlock()
		c.logger.Info("runctl: start refused", "site_id", siteID, "state", cur.State, "run_id", cur.RunID)
		return nil, false
	}

	rctx, cancel := context.WithCancel(ctx)
	now := c.now().UTC()
	run := &Run{
		ID:        c.newID(),
		SiteID:    siteID,
		StartedAt: now,
		ctx:       rctx,
		cancel:    cancel,
	}
	c.runs[siteID] = run
	st := model.RunStatus{
		SiteID:    siteID,
		RunID:     run.ID,
		State:     model.StateRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	c.status[siteID] = st
	c.mu.Unlock()

	c.changed(st)
	return run, true
}

// Pause moves a Running site to Paused. The run blocks at its next
// WaitIfPaused checkpoint.
func (c *Controller) Pause(siteID string) bool {
	return c.transition(siteID, "", "", func(st model.RunState) bool {
		return st == model.StateRunning
	}, model.StatePaused, func(r *Run) { r.pause() })
}

// Resume moves a Paused site back to Running.
func (c *Controller) Resume(siteID string) bool {
	return c.transition(siteID, "", "", func(st model.RunState) bool {
		return st == model.StatePaused
	}, model.StateRunning, func(r *Run) { r.resume() })
}

// Stop cancels an active run. The run observes the cancellation at its next
// checkpoint; the state is Stopped immediately.
func (c *Controller) Stop(siteID string) bool {
	return c.transition(siteID, "", "stopped by operator", model.RunState.Active, model.StateStopped, func(r *Run) { r.cancel() })
}

// MarkCompleted records a normal end of run runID.
func (c *Controller) MarkCompleted(siteID, runID, msg string) bool {
	return c.transition(siteID, runID, msg, model.RunState.Active, model.StateCompleted, func(r *Run) { r.cancel() })
}

// MarkError records a failed end of run runID.
func (c *Controller) MarkError(siteID, runID, msg string) bool {
	return c.transition(siteID, runID, msg, model.RunState.Active, model.StateError, func(r *Run) { r.cancel() })
}

// Status returns the site's state; unknown sites are Idle.
func (c *Controller) Status(siteID string) model.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(siteID)
}

// Snapshot returns every known status, sorted by site ID.
func (c *Controller) Snapshot() []model.RunStatus {
	c.mu.Lock()
	out := make([]model.RunStatus, 0, len(c.status))
	for _, st := range c.status {
		out = append(out, st)
	}
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b model.RunStatus) int { return strings.Compare(a.SiteID, b.SiteID) })
	return out
}

// Done releases the run slot held by r. The run goroutine calls it once it
// has fully exited, whatever state the run ended in. A run still Running
// or Paused is cancelled and marked Stopped.
func (c *Controller) Done(r *Run) {
	c.mu.Lock()
	if c.runs[r.SiteID] != r {
		c.mu.Unlock()
		return
	}
	delete(c.runs, r.SiteID)
	r.cancel()
	cur := c.statusLocked(r.SiteID)
	if !cur.State.Active() || cur.RunID != r.ID {
		c.mu.Unlock()
		return
	}
	cur.State = model.StateStopped
	cur.Message = "run exited without an outcome"
	cur.UpdatedAt = c.now().UTC()
	c.status[r.SiteID] = cur
	c.mu.Unlock()

	c.logger.Warn("runctl: run exited while active", "site_id", r.SiteID, "run_id", r.ID)
	c.changed(cur)
}

func (c *Controller) statusLocked(siteID string) model.RunStatus {
	st, ok := c.status[siteID]
	if !ok {
		st = model.RunStatus{SiteID: siteID, State: model.StateIdle}
		c.status[siteID] = st
	}
	return st
}

// transition applies to -> state when allowed(current) holds and, if runID
// is set, the current run matches it. effect runs under the lock.
func (c *Controller) transition(siteID, runID, msg string, allowed func(model.RunState) bool, to model.RunState, effect func(*Run)) bool {
	c.mu.Lock()
	cur := c.statusLocked(siteID)
	if !allowed(cur.State) || (runID != "" && cur.RunID != runID) {
		c.mu.Unlock()
		c.logger.Debug("runctl: transition ignored", "site_id", siteID, "from", cur.State, "to", to, "run_id", runID, "current_run_id", cur.RunID)
		return false
	}
	if r := c.runs[siteID]; r != nil && effect != nil {
		effect(r)
	}
	cur.State = to
	cur.Message = msg
	cur.UpdatedAt = c.now().UTC()
	c.status[siteID] = cur
	c.mu.Unlock()

	c.logger.Info("runctl: transition", "site_id", siteID, "run_id", cur.RunID, "state", to)
	c.changed(cur)
	return true
}

func (c *Controller) changed(st model.RunStatus) {
	if c.onChange != nil {
		c.onChange(st)
	}
}

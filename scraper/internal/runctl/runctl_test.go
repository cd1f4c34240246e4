package runctl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/supplyscrape/idgen"
	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

func newTest(opts ...Option) *Controller {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(idgen.Sequence("run_")),
	}
	return New(append(base, opts...)...)
}

func TestStart_ExclusiveAndLive(t *testing.T) {
	c := newTest()
	run, ok := c.Start(context.Background(), "s1")
	if !ok {
		t.Fatal("first Start refused")
	}
	if err := run.Context().Err(); err != nil {
		t.Fatalf("fresh run context already done: %v", err)
	}
	if st := c.Status("s1"); st.State != model.StateRunning || st.RunID != run.ID {
		t.Errorf("status = %+v", st)
	}
	if _, ok := c.Start(context.Background(), "s1"); ok {
		t.Error("second Start accepted while running")
	}
	if _, ok := c.Start(context.Background(), "s2"); !ok {
		t.Error("other site refused")
	}
}

func TestStop_CancelsContext(t *testing.T) {
	c := newTest()
	run, _ := c.Start(context.Background(), "s1")
	if !c.Stop("s1") {
		t.Fatal("Stop refused")
	}
	select {
	case <-run.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by Stop")
	}
	if st := c.Status("s1"); st.State != model.StateStopped {
		t.Errorf("state = %s, want stopped", st.State)
	}
	if !errors.Is(run.WaitIfPaused(), context.Canceled) {
		t.Error("WaitIfPaused after Stop should report cancellation")
	}
	if _, ok := c.Start(context.Background(), "s1"); ok {
		t.Error("restart accepted before the stopped run called Done")
	}
	c.Done(run)
	if st := c.Status("s1"); st.State != model.StateStopped {
		t.Errorf("Done changed state to %s", st.State)
	}
	if _, ok := c.Start(context.Background(), "s1"); !ok {
		t.Error("restart after Done refused")
	}
}

func TestStartRefusedUntilDone(t *testing.T) {
	c := newTest()
	run, _ := c.Start(context.Background(), "s1")
	if !c.MarkCompleted("s1", run.ID, "ok") {
		t.Fatal("MarkCompleted refused")
	}
	if _, ok := c.Start(context.Background(), "s1"); ok {
		t.Error("Start accepted while the completed run is still cooling down")
	}
	c.Done(run)
	c.Done(run)
	next, ok := c.Start(context.Background(), "s1")
	if !ok {
		t.Fatal("Start refused after Done")
	}
	c.Done(run)
	if _, ok := c.Start(context.Background(), "s1"); ok {
		t.Error("stale Done released the newer run")
	}
	if next.Context().Err() != nil {
		t.Error("stale Done cancelled the newer run")
	}
}

func TestDoneWhileActiveStops(t *testing.T) {
	c := newTest()
	run, _ := c.Start(context.Background(), "s1")
	c.Done(run)
	st := c.Status("s1")
	if st.State != model.StateStopped {
		t.Errorf("state = %s, want stopped", st.State)
	}
	if run.Context().Err() == nil {
		t.Error("run context still live after Done")
	}
}

func TestPauseResume_UnblocksWait(t *testing.T) {
	c := newTest()
	run, _ := c.Start(context.Background(), "s1")
	if !c.Pause("s1") {
		t.Fatal("Pause refused")
	}
	if !run.Paused() {
		t.Fatal("run not paused")
	}

	done := make(chan error, 1)
	go func() { done <- run.WaitIfPaused() }()

	select {
	case err := <-done:
		t.Fatalf("WaitIfPaused returned while paused: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if !c.Resume("s1") {
		t.Fatal("Resume refused")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitIfPaused = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused still blocked after Resume")
	}
	if st := c.Status("s1"); st.State != model.StateRunning {
		t.Errorf("state = %s, want running", st.State)
	}
}

func TestStopWhilePaused(t *testing.T) {
	c := newTest()
	run, _ := c.Start(context.Background(), "s1")
	c.Pause("s1")

	done := make(chan error, 1)
	go func() { done <- run.WaitIfPaused() }()
	c.Stop("s1")

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitIfPaused = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused still blocked after Stop")
	}
}

func TestInvalidTransitionsAreNoOps(t *testing.T) {
	c := newTest()
	if c.Pause("s1") || c.Resume("s1") || c.Stop("s1") {
		t.Error("transition accepted from idle")
	}
	if st := c.Status("s1"); st.State != model.StateIdle {
		t.Errorf("state = %s, want idle", st.State)
	}

	run, _ := c.Start(context.Background(), "s1")
	if c.Resume("s1") {
		t.Error("Resume accepted while running")
	}
	c.Pause("s1")
	if c.Pause("s1") {
		t.Error("Pause accepted while paused")
	}
	if !c.MarkCompleted("s1", run.ID, "done") {
		t.Fatal("MarkCompleted refused from paused")
	}
	if c.MarkError("s1", run.ID, "late") {
		t.Error("MarkError accepted after completion")
	}
	st := c.Status("s1")
	if st.State != model.StateCompleted || st.Message != "done" {
		t.Errorf("status = %+v", st)
	}
	if run.Context().Err() == nil {
		t.Error("completed run context still live")
	}
}

func TestMark_StaleRunIgnored(t *testing.T) {
	c := newTest()
	old, _ := c.Start(context.Background(), "s1")
	c.Stop("s1")
	c.Done(old)
	cur, _ := c.Start(context.Background(), "s1")

	if c.MarkError("s1", old.ID, "stale failure") {
		t.Error("stale run overwrote state")
	}
	if st := c.Status("s1"); st.State != model.StateRunning || st.RunID != cur.ID {
		t.Errorf("status = %+v", st)
	}
	if !c.MarkError("s1", cur.ID, "boom") {
		t.Error("current run MarkError refused")
	}
	if st := c.Status("s1"); st.State != model.StateError || st.Message != "boom" {
		t.Errorf("status = %+v", st)
	}
}

func TestStoppedRunCannotComplete(t *testing.T) {
	c := newTest()
	run, _ := c.Start(context.Background(), "s1")
	c.Stop("s1")
	if c.MarkCompleted("s1", run.ID, "") {
		t.Error("MarkCompleted overrode Stopped")
	}
}

func TestSnapshotAndOnChange(t *testing.T) {
	var mu sync.Mutex
	var seen []model.RunState
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	c := newTest(
		WithClock(func() time.Time { return now }),
		WithOnChange(func(st model.RunStatus) {
			mu.Lock()
			seen = append(seen, st.State)
			mu.Unlock()
		}),
	)

	r2, _ := c.Start(context.Background(), "b")
	c.Start(context.Background(), "a")
	c.Pause("b")
	c.Resume("b")
	c.MarkCompleted("b", r2.ID, "")

	want := []model.RunStatus{
		{SiteID: "a", RunID: "run_2", State: model.StateRunning, StartedAt: now, UpdatedAt: now},
		{SiteID: "b", RunID: "run_1", State: model.StateCompleted, StartedAt: now, UpdatedAt: now},
	}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}

	mu.Lock()
	defer mu.Unlock()
	wantSeen := []model.RunState{model.StateRunning, model.StateRunning, model.StatePaused, model.StateRunning, model.StateCompleted}
	if diff := cmp.Diff(wantSeen, seen); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
}

func TestParentCancellationReachesRun(t *testing.T) {
	c := newTest()
	parent, cancel := context.WithCancel(context.Background())
	run, _ := c.Start(parent, "s1")
	cancel()
	if !errors.Is(run.WaitIfPaused(), context.Canceled) {
		t.Error("parent cancellation not visible to run")
	}
}

package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParse_Fields(t *testing.T) {
	cases := []struct {
		expr    string
		minutes []int
		hours   []int
	}{
		{"*/15 * * * *", []int{0, 15, 30, 45}, nil},
		{"1-10/2 * * * *", []int{1, 3, 5, 7, 9}, nil},
		{"5 3 * * *", []int{5}, []int{3}},
		{"0,30 8-10 * * 1-5", []int{0, 30}, []int{8, 9, 10}},
		{"50/5 22/1 * * *", []int{50, 55}, []int{22, 23}},
		{"  0 0 1 1 0 extra  ", []int{0}, []int{0}},
	}
	for _, tc := range cases {
		e, err := Parse(tc.expr)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.expr, err)
			continue
		}
		if diff := cmp.Diff(tc.minutes, e.Minutes.Values()); diff != "" {
			t.Errorf("Parse(%q) minutes (-want +got):\n%s", tc.expr, diff)
		}
		if tc.hours != nil {
			if diff := cmp.Diff(tc.hours, e.Hours.Values()); diff != "" {
				t.Errorf("Parse(%q) hours (-want +got):\n%s", tc.expr, diff)
			}
		} else if len(e.Hours.Values()) != 24 {
			t.Errorf("Parse(%q) hours = %v, want all 24", tc.expr, e.Hours.Values())
		}
	}
}

func TestParse_Always(t *testing.T) {
	for _, s := range []string{"ALWAYS", "always", "  Always "} {
		e, err := Parse(s)
		if err != nil || !e.Always {
			t.Errorf("Parse(%q) = %+v, %v", s, e, err)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	for _, s := range []string{
		"",
		"invalid",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"*/0 * * * *",
		"*/-1 * * * *",
		"10-5 * * * *",
		"a * * * *",
		"1,,2 * * * *",
		"*/x * * * *",
		"-1 * * * *",
	} {
		if e, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) = %+v, want error", s, e)
		}
	}
}

func TestExprMatches_UTC(t *testing.T) {
	e, err := Parse("30 14 * * *")
	if err != nil {
		t.Fatal(err)
	}
	paris := time.FixedZone("CET", 3600)
	if !e.Matches(time.Date(2026, 6, 1, 15, 30, 0, 0, paris)) {
		t.Error("15:30 CET is 14:30 UTC and should match")
	}
	if e.Matches(time.Date(2026, 6, 1, 14, 30, 0, 0, paris)) {
		t.Error("14:30 CET should not match")
	}
}

func TestDue_EveryMinute(t *testing.T) {
	ev := NewEvaluator(WithLogger(quiet()))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 180 {
		now := start.Add(time.Duration(i) * time.Minute)
		if !ev.Due("s", "* * * * *", now) {
			t.Fatalf("not due at %v", now)
		}
		ev.MarkStarted("s", now)
	}
}

func TestDue_Dedup(t *testing.T) {
	ev := NewEvaluator(WithLogger(quiet()))
	t0 := time.Date(2026, 1, 1, 9, 0, 10, 0, time.UTC)
	ev.MarkStarted("s", t0)

	if ev.Due("s", "* * * * *", t0.Add(30*time.Second)) {
		t.Error("due 30s after start")
	}
	if !ev.Due("s", "* * * * *", t0.Add(90*time.Second)) {
		t.Error("not due 90s after start")
	}
	if !ev.Due("other", "* * * * *", t0.Add(30*time.Second)) {
		t.Error("dedup leaked across sites")
	}
}

func TestDue_AlwaysAndInvalid(t *testing.T) {
	ev := NewEvaluator(WithLogger(quiet()))
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ev.MarkStarted("s", now)
	if !ev.Due("s", "ALWAYS", now.Add(time.Second)) {
		t.Error("ALWAYS not due")
	}
	if ev.Due("s", "invalid", now.Add(time.Hour)) {
		t.Error("invalid expression due")
	}
	if ev.Due("s", "*/15 * * * *", time.Date(2026, 1, 1, 9, 7, 0, 0, time.UTC)) {
		t.Error("minute 7 due for */15")
	}
}

func TestLastStarted(t *testing.T) {
	ev := NewEvaluator()
	if _, ok := ev.LastStarted("s"); ok {
		t.Error("unexpected history")
	}
	now := time.Now()
	ev.MarkStarted("s", now)
	if got, ok := ev.LastStarted("s"); !ok || !got.Equal(now) {
		t.Errorf("LastStarted = %v, %v", got, ok)
	}
}

func TestPollerTick(t *testing.T) {
	sites := []*model.Site{
		{ID: "a", Active: true, Schedule: "ALWAYS"},
		{ID: "b", Active: true, Schedule: "0 0 * * *"},
		{ID: "c", Active: false, Schedule: "ALWAYS"},
		{ID: "d", Active: true, Schedule: "garbage"},
		{ID: "e", Active: true, Schedule: "*/5 * * * *"},
	}
	var launched []string
	p := NewPoller(NewEvaluator(WithLogger(quiet())),
		func(context.Context) ([]*model.Site, error) { return sites, nil },
		func(_ context.Context, s *model.Site) { launched = append(launched, s.ID) },
		PollerConfig{Now: func() time.Time { return time.Date(2026, 1, 1, 12, 10, 0, 0, time.UTC) }}, quiet())

	if n := p.Tick(context.Background()); n != 2 {
		t.Errorf("Tick = %d, want 2", n)
	}
	if diff := cmp.Diff([]string{"a", "e"}, launched); diff != "" {
		t.Errorf("launched (-want +got):\n%s", diff)
	}
}

func TestPollerTick_ListError(t *testing.T) {
	called := false
	p := NewPoller(NewEvaluator(),
		func(context.Context) ([]*model.Site, error) { return nil, errors.New("db down") },
		func(context.Context, *model.Site) { called = true },
		PollerConfig{}, quiet())
	if n := p.Tick(context.Background()); n != 0 || called {
		t.Errorf("Tick = %d, launched = %v", n, called)
	}
}

func TestPollerRun_ImmediateTickAndStop(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	first := make(chan struct{})
	p := NewPoller(NewEvaluator(),
		func(context.Context) ([]*model.Site, error) {
			mu.Lock()
			polls++
			if polls == 1 {
				close(first)
			}
			mu.Unlock()
			return nil, nil
		},
		func(context.Context, *model.Site) {},
		PollerConfig{Interval: time.Hour}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("no immediate poll")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

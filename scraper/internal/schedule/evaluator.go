package schedule

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDedupWindow is how long after a start a site cannot be due again.
const DefaultDedupWindow = 60 * time.Second

// Evaluator decides whether a site is due and remembers when each site was
// last started. Safe for concurrent use.
type Evaluator struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	logger *slog.Logger
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithDedupWindow overrides DefaultDedupWindow.
func WithDedupWindow(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) { e.window = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an Evaluator with an empty start history.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		last:   make(map[string]time.Time),
		window: DefaultDedupWindow,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Due reports whether siteID should start at now. An unparsable expression
// is logged and never due. ALWAYS is due on every call; the run slot held by
// an active run is what prevents overlapping ALWAYS runs.
func (e *Evaluator) Due(siteID, expr string, now time.Time) bool {
	parsed, err := Parse(expr)
	if err != nil {
		e.logger.Warn("schedule: invalid expression", "site_id", siteID, "schedule", expr, "error", err)
		return false
	}
	if parsed.Always {
		return true
	}
	if !parsed.Matches(now) {
		return false
	}
	if last, ok := e.LastStarted(siteID); ok && now.Sub(last) < e.window {
		return false
	}
	return true
}

// MarkStarted records that siteID started at t.
func (e *Evaluator) MarkStarted(siteID string, t time.Time) {
	e.mu.Lock()
	e.last[siteID] = t
	e.mu.Unlock()
}

// LastStarted returns the last recorded start of siteID.
func (e *Evaluator) LastStarted(siteID string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.last[siteID]
	return t, ok
}

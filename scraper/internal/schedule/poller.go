package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

// SiteLister returns the active site configurations.
type SiteLister func(ctx context.Context) ([]*model.Site, error)

// Launcher starts a run for a due site. It must not block for the duration
// of the run.
type Launcher func(ctx context.Context, site *model.Site)

// PollerConfig configures the polling loop.
type PollerConfig struct {
	// Interval between polls. Default: 60s.
	Interval time.Duration
	// Now is the clock schedules are matched against. Default: time.Now.
	Now func() time.Time
}

func (c *PollerConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Poller periodically lists sites and launches the due ones.
type Poller struct {
	eval   *Evaluator
	list   SiteLister
	launch Launcher
	config PollerConfig
	logger *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(eval *Evaluator, list SiteLister, launch Launcher, cfg PollerConfig, logger *slog.Logger) *Poller {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		eval:   eval,
		list:   list,
		launch: launch,
		config: cfg,
		logger: logger,
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one poll and returns how many sites were launched.
func (p *Poller) Tick(ctx context.Context) int {
	sites, err := p.list(ctx)
	if err != nil {
		p.logger.Error("schedule: list sites", "error", err)
		return 0
	}

	now := p.config.Now()
	launched := 0
	for _, site := range sites {
		if site == nil || !site.Active {
			continue
		}
		if !p.eval.Due(site.ID, site.Schedule, now) {
			continue
		}
		p.logger.Debug("schedule: site due", "site_id", site.ID, "schedule", site.Schedule)
		p.launch(ctx, site)
		launched++
	}
	return launched
}

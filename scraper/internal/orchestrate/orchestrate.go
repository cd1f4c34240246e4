// CLAUDE:SUMMARY Runs a site's strategies in priority order until one yields products, then stages them under the per-run cap with pacing and pause checkpoints.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
	"github.com/hazyhaar/supplyscrape/scraper/internal/pace"
	"github.com/hazyhaar/supplyscrape/scraper/internal/strategy"
)

// Stager receives the products kept by a run.
type Stager interface {
	Stage(ctx context.Context, p model.Product) error
}

// Checkpoint is the part of a run the orchestrator consults between steps.
type Checkpoint interface {
	WaitIfPaused() error
}

// Resolver looks up a strategy by configured name.
type Resolver interface {
	Get(name string) (strategy.Strategy, bool)
}

// Config holds the pause windows.
type Config struct {
	PreRun  pace.Range
	Product pace.Range
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	c.PreRun = c.PreRun.OrDefault(pace.PreRun)
	c.Product = c.Product.OrDefault(pace.Product)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result summarizes one orchestrated run.
type Result struct {
	RunID    string   `json:"run_id"`
	Strategy string   `json:"strategy,omitempty"`
	Found    int      `json:"found"`
	Staged   int      `json:"staged"`
	Failed   int      `json:"failed"`
	Tried    []string `json:"tried,omitempty"`
}

// Orchestrator selects and runs strategies for one site at a time.
type Orchestrator struct {
	cfg      Config
	resolver Resolver
	stager   Stager
	pacer    pace.Pacer
}

// New creates an Orchestrator.
func New(cfg Config, resolver Resolver, stager Stager, pacer pace.Pacer) *Orchestrator {
	cfg.defaults()
	if pacer == nil {
		pacer = pace.Jitter{}
	}
	return &Orchestrator{cfg: cfg, resolver: resolver, stager: stager, pacer: pacer}
}

// Run scrapes site on p. The first enabled strategy (by priority) that
// yields at least one product wins; its products are staged in order, up to
// site.MaxProducts when that is positive. A run where every strategy yields
// nothing returns an empty Result and no error.
//
// The returned error is non-nil when the run was cancelled or the start page
// could not be loaded. Result is always non-nil and reflects the work done.
func (o *Orchestrator) Run(ctx context.Context, runID string, cp Checkpoint, site *model.Site, p page.Page) (*Result, error) {
	site = site.Clone()
	res := &Result{RunID: runID}
	log := o.cfg.Logger.With("site_id", site.ID, "run_id", runID)

	if err := o.pacer.Pause(ctx, o.cfg.PreRun); err != nil {
		return res, err
	}
	if err := p.Navigate(ctx, site.BaseURL); err != nil {
		return res, fmt.Errorf("orchestrate: navigate %s: %w", site.BaseURL, err)
	}

	var products []model.Product
	for _, def := range site.OrderedStrategies() {
		if err := cp.WaitIfPaused(); err != nil {
			return res, err
		}
		strat, ok := o.resolver.Get(def.Name)
		if !ok {
			log.Warn("orchestrate: unknown strategy", "strategy", def.Name)
			continue
		}
		if len(res.Tried) > 0 && p.URL() != site.BaseURL {
			if err := p.Navigate(ctx, site.BaseURL); err != nil {
				return res, fmt.Errorf("orchestrate: renavigate %s: %w", site.BaseURL, err)
			}
		}

		res.Tried = append(res.Tried, strat.Name())
		products = strat.Execute(ctx, p, site, runID)
		log.Info("orchestrate: strategy done", "strategy", strat.Name(), "found", len(products))
		if len(products) > 0 {
			res.Strategy = strat.Name()
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	res.Found = len(products)
	if res.Found == 0 {
		log.Info("orchestrate: no products", "tried", res.Tried)
		return res, nil
	}

	keep := products
	if site.MaxProducts > 0 && len(keep) > site.MaxProducts {
		keep = keep[:site.MaxProducts]
		log.Info("orchestrate: product cap reached", "cap", site.MaxProducts, "found", res.Found)
	}

	for i, prod := range keep {
		if err := cp.WaitIfPaused(); err != nil {
			return res, err
		}
		if err := o.stager.Stage(ctx, prod); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			log.Error("orchestrate: stage failed", "sku", prod.SKU, "error", err)
		} else {
			res.Staged++
		}
		if i < len(keep)-1 {
			if err := o.pacer.Pause(ctx, o.cfg.Product); err != nil {
				return res, err
			}
		}
	}

	log.Info("orchestrate: run staged", "strategy", res.Strategy, "found", res.Found, "staged", res.Staged, "failed", res.Failed)
	return res, nil
}

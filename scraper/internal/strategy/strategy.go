// CLAUDE:SUMMARY Strategy interface, registry of the three extraction variants, and the failure guard every Execute runs under.
// Package strategy turns a loaded supplier page into product records.
//
// Three interchangeable strategies share one contract:
//   - direct:   the current page is a single product detail page
//   - list:     the page lists product cards inside a container
//   - families: the page links to family pages, each holding a variant table
//
// A strategy never returns an error. Field misses degrade to empty values,
// and a failure of the whole strategy (navigation error, timeout, panic) is
// logged and whatever was collected so far is returned.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
	"github.com/hazyhaar/supplyscrape/scraper/internal/pace"
)

// Strategy extracts products from the page's current document. ctx is the
// run's cancellation token.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, p page.Page, site *model.Site, runID string) []model.Product
}

// Env carries the collaborators shared by all strategies.
type Env struct {
	Logger      *slog.Logger
	Pacer       pace.Pacer
	FamilyPause pace.Range
	Describer   *Describer
	Now         func() time.Time
}

func (e *Env) defaults() {
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Pacer == nil {
		e.Pacer = pace.Jitter{}
	}
	e.FamilyPause = e.FamilyPause.OrDefault(pace.Family)
	if e.Describer == nil {
		e.Describer = NewDescriber()
	}
	if e.Now == nil {
		e.Now = time.Now
	}
}

// Registry maps canonical strategy names to implementations.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry(env Env) *Registry {
	env.defaults()
	r := &Registry{byName: make(map[string]Strategy)}
	r.Register(&Direct{env: env})
	r.Register(&List{env: env})
	r.Register(&Families{env: env})
	return r
}

// Register adds or replaces a strategy under its Name.
func (r *Registry) Register(s Strategy) {
	r.byName[s.Name()] = s
}

// Get resolves a configured strategy name (any accepted alias).
func (r *Registry) Get(name string) (Strategy, bool) {
	if s, ok := r.byName[name]; ok {
		return s, true
	}
	c, ok := model.CanonicalStrategy(name)
	if !ok {
		return nil, false
	}
	s, ok := r.byName[c]
	return s, ok
}

// guard runs fn with a collector and converts errors and panics into log
// entries. Products collected before the failure are kept.
func guard(env *Env, name string, site *model.Site, runID string, fn func(emit func(model.Product)) error) (out []model.Product) {
	log := env.Logger.With("strategy", name, "site_id", site.ID, "run_id", runID)
	emit := func(p model.Product) {
		p.SiteID = site.ID
		p.RunID = runID
		p.Strategy = name
		if p.ScrapedAt.IsZero() {
			p.ScrapedAt = env.Now().UTC()
		}
		out = append(out, p)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("strategy: panic", "error", fmt.Sprint(r), "partial", len(out))
		}
	}()

	if err := fn(emit); err != nil {
		log.Error("strategy: failed", "error", err, "partial", len(out))
	}
	return out
}

package scraper

import (
	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/orchestrate"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
	"github.com/hazyhaar/supplyscrape/scraper/internal/pace"
	"github.com/hazyhaar/supplyscrape/scraper/internal/sink"
	"github.com/hazyhaar/supplyscrape/scraper/internal/store"
)

// Re-exported types from internal packages for use by cmd/ and external callers.
type (
	Site          = model.Site
	Selectors     = model.Selectors
	StrategyDef   = model.StrategyDef
	Product       = model.Product
	RunState      = model.RunState
	RunStatus     = model.RunStatus
	RunRecord     = model.RunRecord
	StagedProduct = store.StagedProduct
	Result        = orchestrate.Result
	Page          = page.Page
	Opener        = page.Opener
	OpenerFunc    = page.OpenerFunc
	Pacer         = pace.Pacer
	Sink          = sink.Sink
)

// Run states.
const (
	StateIdle      = model.StateIdle
	StateRunning   = model.StateRunning
	StatePaused    = model.StatePaused
	StateStopped   = model.StateStopped
	StateCompleted = model.StateCompleted
	StateError     = model.StateError
)

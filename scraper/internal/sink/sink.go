// Package sink defines the staging backends a run hands its products to.
package sink

import (
	"context"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

// Sink receives staged products. Implementations deliver to different
// backends (SQLite staging table, webhook, stdout, in-process callback).
type Sink interface {
	Stage(ctx context.Context, p model.Product) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

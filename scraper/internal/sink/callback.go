// CLAUDE:SUMMARY In-process callback sink delivering products via a Go function call.
package sink

import (
	"context"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

// StageFunc is called for each product.
type StageFunc func(ctx context.Context, p model.Product) error

// Callback delivers products in-process with no serialisation.
type Callback struct {
	fn StageFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn StageFunc) *Callback { return &Callback{fn: fn} }

func (c *Callback) Stage(ctx context.Context, p model.Product) error {
	if c.fn != nil {
		return c.fn(ctx, p)
	}
	return nil
}

func (c *Callback) Close() error { return nil }

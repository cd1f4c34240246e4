package sink

import (
	"context"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

// StagingWriter is the store operation the Store sink needs.
type StagingWriter interface {
	InsertStaging(ctx context.Context, p *model.Product) (string, error)
}

// Store writes products to the SQLite staging table.
type Store struct {
	w StagingWriter
}

// NewStore creates a Store sink.
func NewStore(w StagingWriter) *Store { return &Store{w: w} }

func (s *Store) Stage(ctx context.Context, p model.Product) error {
	_, err := s.w.InsertStaging(ctx, &p)
	return err
}

// Close is a no-op; the database handle belongs to the caller.
func (s *Store) Close() error { return nil }

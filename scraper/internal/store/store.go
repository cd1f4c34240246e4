// CLAUDE:SUMMARY SQLite persistence for site configs, staged products and the run log; schema managed by goose migrations.
// Package store provides the SQLite persistence layer for the scraper.
package store

import (
	"database/sql"
	"time"

	"github.com/hazyhaar/supplyscrape/dbopen"
	"github.com/hazyhaar/supplyscrape/idgen"
	"github.com/hazyhaar/supplyscrape/migrations"
)

// Store is the scraper database handle.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Open opens (or creates) the database at path and applies pending
// migrations. The caller blank-imports the SQLite driver.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSetup(migrations.Run),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{
		DB:    db,
		newID: idgen.Prefixed("stg_", idgen.Default),
		now:   time.Now,
	}
}

// WithIDGenerator replaces the staging ID generator. Returns s.
func (s *Store) WithIDGenerator(gen idgen.Generator) *Store {
	s.newID = gen
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

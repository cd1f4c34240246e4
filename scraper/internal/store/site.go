// CLAUDE:SUMMARY CRUD for the sites table: upsert validated configs, list active sites for the poller.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/supplyscrape/dbopen"
	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

const siteColumns = `id, name, base_url, selectors, strategies, schedule, max_products, active, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertSite validates s and inserts or replaces it.
func (s *Store) UpsertSite(ctx context.Context, site *model.Site) error {
	return s.upsertSite(ctx, s.DB, site)
}

// ImportSites upserts all sites in one transaction. Nothing is stored
// unless every site validates.
func (s *Store) ImportSites(ctx context.Context, sites []*model.Site) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, site := range sites {
			if err := s.upsertSite(ctx, tx, site); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) upsertSite(ctx context.Context, db execer, site *model.Site) error {
	if err := site.Validate(); err != nil {
		return err
	}
	sels, err := json.Marshal(site.Selectors)
	if err != nil {
		return fmt.Errorf("store: marshal selectors: %w", err)
	}
	strats, err := json.Marshal(site.Strategies)
	if err != nil {
		return fmt.Errorf("store: marshal strategies: %w", err)
	}
	now := s.now().UTC()
	site.UpdatedAt = now.Truncate(time.Millisecond)

	_, err = db.ExecContext(ctx, `
		INSERT INTO sites
			(id, name, base_url, selectors, strategies, schedule, max_products, active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			base_url = excluded.base_url,
			selectors = excluded.selectors,
			strategies = excluded.strategies,
			schedule = excluded.schedule,
			max_products = excluded.max_products,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		site.ID, site.Name, site.BaseURL, string(sels), string(strats), site.Schedule,
		site.MaxProducts, boolInt(site.Active), now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: upsert site %s: %w", site.ID, err)
	}
	return nil
}

// GetSite returns a site by ID, or nil if it does not exist.
func (s *Store) GetSite(ctx context.Context, id string) (*model.Site, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get site %s: %w", id, err)
	}
	return site, nil
}

// ListSites returns sites ordered by ID, optionally only active ones.
func (s *Store) ListSites(ctx context.Context, activeOnly bool) ([]*model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list sites: %w", err)
	}
	defer rows.Close()

	var sites []*model.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// ListActiveSites returns the sites the poller considers.
func (s *Store) ListActiveSites(ctx context.Context) ([]*model.Site, error) {
	return s.ListSites(ctx, true)
}

// SetSiteActive toggles a site. Returns false if the site does not exist.
func (s *Store) SetSiteActive(ctx context.Context, id string, active bool) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sites SET active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), s.now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("store: set active %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteSite removes a site config. Staged products and run history stay.
func (s *Store) DeleteSite(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(row scanner) (*model.Site, error) {
	site := &model.Site{}
	var sels, strats string
	var active int
	var updated int64
	if err := row.Scan(
		&site.ID, &site.Name, &site.BaseURL, &sels, &strats, &site.Schedule,
		&site.MaxProducts, &active, &updated,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sels), &site.Selectors); err != nil {
		return nil, fmt.Errorf("selectors of %s: %w", site.ID, err)
	}
	if err := json.Unmarshal([]byte(strats), &site.Strategies); err != nil {
		return nil, fmt.Errorf("strategies of %s: %w", site.ID, err)
	}
	site.Active = active != 0
	site.UpdatedAt = fromMillis(updated)
	return site, nil
}

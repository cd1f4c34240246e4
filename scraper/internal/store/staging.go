// CLAUDE:SUMMARY Staging table writes and reads: one row per product handed over by a run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/supplyscrape/dbopen"
	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

// StagedProduct is a staging row.
type StagedProduct struct {
	ID string `json:"id"`
	model.Product
}

// InsertStaging writes one product and returns its staging ID. Writes are
// retried when the database is busy.
func (s *Store) InsertStaging(ctx context.Context, p *model.Product) (string, error) {
	images, _ := json.Marshal(orEmpty(p.Images))
	attrs, _ := json.Marshal(p.Attributes)
	atts, _ := json.Marshal(orEmpty(p.Attachments))
	if p.Attributes == nil {
		attrs = []byte("{}")
	}

	var price sql.NullFloat64
	if p.Price != nil {
		price = sql.NullFloat64{Float64: *p.Price, Valid: true}
	}

	id := s.newID()
	now := s.now()
	scraped := p.ScrapedAt
	if scraped.IsZero() {
		scraped = now
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO staging_products
			(id, site_id, run_id, strategy, sku, title, price, description, image_url,
			 images, source_url, attributes, attachments, scraped_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, p.SiteID, p.RunID, p.Strategy, p.SKU, p.Title, price, p.Description, p.ImageURL,
		string(images), p.SourceURL, string(attrs), string(atts), scraped.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("store: insert staging %s/%s: %w", p.SiteID, p.SKU, err)
	}
	return id, nil
}

// ListStaging returns the most recent staged products of a site, newest
// first. limit <= 0 means 100.
func (s *Store) ListStaging(ctx context.Context, siteID string, limit int) ([]*StagedProduct, error) {
	return s.queryStaging(ctx, `WHERE site_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, siteID, limitOr(limit, 100))
}

// ListStagingByRun returns every product staged by one run, in staging order.
func (s *Store) ListStagingByRun(ctx context.Context, runID string) ([]*StagedProduct, error) {
	return s.queryStaging(ctx, `WHERE run_id = ? ORDER BY created_at, rowid`, runID)
}

// CountStaging counts staged rows of a site.
func (s *Store) CountStaging(ctx context.Context, siteID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM staging_products WHERE site_id = ?`, siteID).Scan(&n)
	return n, err
}

func (s *Store) queryStaging(ctx context.Context, where string, args ...any) ([]*StagedProduct, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, site_id, run_id, strategy, sku, title, price, description, image_url,
		       images, source_url, attributes, attachments, scraped_at
		FROM staging_products `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query staging: %w", err)
	}
	defer rows.Close()

	var out []*StagedProduct
	for rows.Next() {
		sp := &StagedProduct{}
		var price sql.NullFloat64
		var images, attrs, atts string
		var scraped int64
		if err := rows.Scan(
			&sp.ID, &sp.SiteID, &sp.RunID, &sp.Strategy, &sp.SKU, &sp.Title, &price, &sp.Description,
			&sp.ImageURL, &images, &sp.SourceURL, &attrs, &atts, &scraped,
		); err != nil {
			return nil, fmt.Errorf("store: scan staging: %w", err)
		}
		if price.Valid {
			v := price.Float64
			sp.Price = &v
		}
		json.Unmarshal([]byte(images), &sp.Images)
		json.Unmarshal([]byte(attrs), &sp.Attributes)
		json.Unmarshal([]byte(atts), &sp.Attachments)
		if len(sp.Images) == 0 {
			sp.Images = nil
		}
		if len(sp.Attributes) == 0 {
			sp.Attributes = nil
		}
		if len(sp.Attachments) == 0 {
			sp.Attachments = nil
		}
		sp.ScrapedAt = fromMillis(scraped)
		out = append(out, sp)
	}
	return out, rows.Err()
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

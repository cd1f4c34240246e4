// CLAUDE:SUMMARY Reads site configurations from a PostgREST/Supabase table (apikey + bearer auth) as an alternative to the local store.
// Package sitesrc loads site configurations from a remote REST table.
package sitesrc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

// Config configures a REST source.
type Config struct {
	// BaseURL of the REST service, e.g. "https://xyz.supabase.co".
	BaseURL string
	// APIKey is sent both as "apikey" and as the bearer token.
	APIKey string
	// Table holding site rows. Default: "config_sites".
	Table string
	// Timeout per request. Default: 15s.
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.Table == "" {
		c.Table = "config_sites"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// REST reads sites from "<BaseURL>/rest/v1/<Table>".
type REST struct {
	cfg Config
}

// NewREST creates a REST source.
func NewREST(cfg Config) *REST {
	cfg.defaults()
	return &REST{cfg: cfg}
}

// ListActiveSites fetches rows with active = true. Rows that fail
// validation are logged and skipped.
func (r *REST) ListActiveSites(ctx context.Context) ([]*model.Site, error) {
	q := url.Values{}
	q.Set("active", "eq.true")
	q.Set("order", "id")
	return r.fetch(ctx, q)
}

// GetSite fetches one row by id, or nil if absent.
func (r *REST) GetSite(ctx context.Context, id string) (*model.Site, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)
	sites, err := r.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		return nil, nil
	}
	return sites[0], nil
}

func (r *REST) fetch(ctx context.Context, q url.Values) ([]*model.Site, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/rest/v1/%s?%s", r.cfg.BaseURL, url.PathEscape(r.cfg.Table), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sitesrc: request: %w", err)
	}
	req.Header.Set("apikey", r.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sitesrc: fetch: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("sitesrc: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitesrc: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var rows []row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("sitesrc: decode: %w", err)
	}

	sites := make([]*model.Site, 0, len(rows))
	for _, rw := range rows {
		site := rw.Site
		site.ID = rawID(rw.ID)
		if err := site.Validate(); err != nil {
			r.cfg.Logger.Warn("sitesrc: invalid site skipped", "site_id", site.ID, "error", err)
			continue
		}
		sites = append(sites, &site)
	}
	return sites, nil
}

// row accepts numeric or string primary keys.
type row struct {
	ID json.RawMessage `json:"id"`
	model.Site
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// CLAUDE:SUMMARY Site configuration record: typed selectors, ordered strategy definitions, validation and per-run snapshot.
// Package model holds the records that flow through a scrape run: site
// configurations, scraped products and run statuses.
package model

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/supplyscrape/netguard"
)

// Canonical strategy names.
const (
	StrategyDirect   = "direct"
	StrategyList     = "list"
	StrategyFamilies = "families"
)

var strategyAliases = map[string]string{
	"direct":          StrategyDirect,
	"product":         StrategyDirect,
	"directproduct":   StrategyDirect,
	"list":            StrategyList,
	"productlist":     StrategyList,
	"families":        StrategyFamilies,
	"family":          StrategyFamilies,
	"productfamilies": StrategyFamilies,
}

// CanonicalStrategy maps a configured strategy name (any case, with or
// without separators) to its canonical name. ok is false for unknown names.
func CanonicalStrategy(name string) (string, bool) {
	key := strings.ToLower(name)
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	key = strings.TrimSuffix(key, "strategy")
	c, ok := strategyAliases[key]
	return c, ok
}

// Selectors maps a selector role ("productList", "productSku", ...) to a
// CSS selector.
type Selectors map[string]string

// Get returns the selector for key. A missing key and an empty selector are
// both reported as not found.
func (s Selectors) Get(key string) (string, bool) {
	v, ok := s[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// StrategyDef enables one extraction strategy for a site.
type StrategyDef struct {
	Name     string `json:"name" yaml:"name"`
	Priority int    `json:"priority" yaml:"priority"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

// Site describes one supplier source.
type Site struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Selectors   Selectors     `json:"selectors" yaml:"selectors"`
	Strategies  []StrategyDef `json:"strategies" yaml:"strategies"`
	Schedule    string        `json:"schedule" yaml:"schedule"`
	MaxProducts int           `json:"max_products_per_scrape" yaml:"max_products_per_scrape"`
	Active      bool          `json:"active" yaml:"active"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"-"`
}

// Validate checks a site once at load time. Strategy names are rewritten to
// their canonical form so later lookups are plain map hits.
func (s *Site) Validate() error {
	var errs []error
	if err := netguard.ValidateIdentifier(s.ID); err != nil {
		errs = append(errs, fmt.Errorf("id: %w", err))
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q is not an absolute URL", s.BaseURL))
	}
	if s.MaxProducts < 0 {
		errs = append(errs, fmt.Errorf("max_products_per_scrape %d is negative", s.MaxProducts))
	}
	for i := range s.Strategies {
		c, ok := CanonicalStrategy(s.Strategies[i].Name)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown strategy %q", s.Strategies[i].Name))
			continue
		}
		s.Strategies[i].Name = c
	}
	if len(errs) > 0 {
		return fmt.Errorf("model: site %q: %w", s.ID, errors.Join(errs...))
	}
	return nil
}

// Clone returns a deep copy; the orchestrator works on a clone so config
// edits made during a run are not observed mid-run.
func (s *Site) Clone() *Site {
	c := *s
	c.Selectors = make(Selectors, len(s.Selectors))
	for k, v := range s.Selectors {
		c.Selectors[k] = v
	}
	c.Strategies = append([]StrategyDef(nil), s.Strategies...)
	return &c
}

// OrderedStrategies returns the enabled strategies in ascending priority.
// Equal priorities keep their declaration order.
func (s *Site) OrderedStrategies() []StrategyDef {
	var out []StrategyDef
	for _, d := range s.Strategies {
		if d.Enabled {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// CLAUDE:SUMMARY Service configuration: YAML file, defaults, environment overrides and the site import file format.
package scraper

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/pace"
)

// Config holds all scraper configuration.
type Config struct {
	DBPath            string        `yaml:"db_path"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	DedupWindow       time.Duration `yaml:"dedup_window"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs"`

	Pacing      PacingConfig      `yaml:"pacing"`
	Browser     BrowserConfig     `yaml:"browser"`
	Sinks       SinksConfig       `yaml:"sinks"`
	Sites       SitesConfig       `yaml:"sites"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telegram    TelegramConfig    `yaml:"telegram"`
}

// PacingConfig holds the pause windows of a run.
type PacingConfig struct {
	PreRun  pace.Range `yaml:"pre_run"`
	PostRun pace.Range `yaml:"post_run"`
	Product pace.Range `yaml:"product"`
	Family  pace.Range `yaml:"family"`
}

// BrowserConfig selects how pages are loaded.
type BrowserConfig struct {
	// Mode is "http" (plain requests), "headless" or "headful".
	Mode             string        `yaml:"mode"`
	RemoteURL        string        `yaml:"remote_url"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	UserAgent        string        `yaml:"user_agent"`
}

// SinksConfig lists where staged products go besides the local store.
type SinksConfig struct {
	DisableStore bool          `yaml:"disable_store"`
	Stdout       bool          `yaml:"stdout"`
	Webhook      WebhookConfig `yaml:"webhook"`
}

// WebhookConfig configures the webhook sink. Empty URL disables it.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Retries int               `yaml:"retries"`
	Backoff time.Duration     `yaml:"backoff"`
}

// SitesConfig selects where site configurations are read from.
type SitesConfig struct {
	// Source is "store" (local SQLite) or "rest".
	Source string `yaml:"source"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Table  string `yaml:"table"`
}

// AttachmentsConfig controls attachment inspection before staging.
type AttachmentsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxBytes      int64         `yaml:"max_bytes"`
	MaxPerProduct int           `yaml:"max_per_product"`
	Timeout       time.Duration `yaml:"timeout"`
	// AllowPrivate permits downloads from loopback and private networks.
	AllowPrivate bool `yaml:"allow_private"`
}

// HTTPConfig configures the control API. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	User string `yaml:"user"`
	// PasswordHash is a bcrypt hash. Auth is off when User is empty.
	PasswordHash string `yaml:"password_hash"`
}

// TelegramConfig configures run notifications. Empty Token disables them.
type TelegramConfig struct {
	Token        string `yaml:"token"`
	ChatID       int64  `yaml:"chat_id"`
	OnlyProblems bool   `yaml:"only_problems"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "data/scraper.db"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 60 * time.Second
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = 2
	}
	c.Pacing.PreRun = c.Pacing.PreRun.OrDefault(pace.PreRun)
	c.Pacing.PostRun = c.Pacing.PostRun.OrDefault(pace.PostRun)
	c.Pacing.Product = c.Pacing.Product.OrDefault(pace.Product)
	c.Pacing.Family = c.Pacing.Family.OrDefault(pace.Family)
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Sites.Source == "" {
		c.Sites.Source = "store"
	}
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SCRAPER_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("SCRAPER_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("SITES_API_URL"); v != "" {
		c.Sites.URL = v
		c.Sites.Source = "rest"
	}
	if v := os.Getenv("SITES_API_KEY"); v != "" {
		c.Sites.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scraper: TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type sitesFile struct {
	Sites []*model.Site `yaml:"sites"`
}

// LoadSitesFile reads site configurations from a YAML file of the form
// "sites: [...]". Every site is validated.
func LoadSitesFile(path string) ([]*model.Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scraper: parse %s: %w", path, err)
	}
	for _, s := range f.Sites {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Sites, nil
}

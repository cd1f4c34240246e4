// CLAUDE:SUMMARY Chrome lifecycle for scrape runs: lazy launch or remote connect, stealth tabs as page.Page, interval/memory recycling between runs.
// Package browser hands out page handles for scrape runs. In HTTP mode it
// returns plain static pages; otherwise it manages one Chrome process
// through go-rod, opening a stealth tab per run and recycling the process on
// an interval or memory threshold when no run holds a tab.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
)

// Mode controls how pages are fetched.
type Mode int

const (
	ModeHTTP     Mode = 0 // no browser, plain HTTP + goquery
	ModeHeadless Mode = 1 // Rod headless + stealth
	ModeHeadful  Mode = 2 // Rod headful + Xvfb
)

// ParseMode maps "http", "headless" and "headful" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http", "static":
		return ModeHTTP, nil
	case "", "headless":
		return ModeHeadless, nil
	case "headful", "xvfb":
		return ModeHeadful, nil
	}
	return 0, fmt.Errorf("browser: unknown mode %q", s)
}

// Config configures the browser manager.
type Config struct {
	Mode Mode

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// MemoryLimit in bytes. Recycle Chrome when exceeded. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// NavTimeout bounds each navigation. Default: 30s.
	NavTimeout time.Duration

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	// StaticOptions configure pages in ModeHTTP.
	StaticOptions []page.Option

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager implements page.Opener.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	tabs    int
	closed  bool
	stop    context.CancelFunc
}

// NewManager creates a Manager. Chrome is launched on the first Open.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Open returns a fresh page for one run. Close the page to release the tab.
func (m *Manager) Open(ctx context.Context) (page.Page, error) {
	if m.cfg.Mode == ModeHTTP {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, fmt.Errorf("browser: manager is closed")
		}
		return page.NewStatic(m.cfg.StaticOptions...), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser == nil {
		if err := m.startLocked(); err != nil {
			return nil, err
		}
	}

	p, err := openTab(m.browser, m.cfg.ResourceBlocking, m.cfg.Logger)
	if err != nil {
		return nil, err
	}
	m.tabs++
	return page.NewRod(p, m.cfg.NavTimeout, m.cfg.Logger, m.releaseTab), nil
}

func (m *Manager) releaseTab() {
	m.mu.Lock()
	if m.tabs > 0 {
		m.tabs--
	}
	m.mu.Unlock()
}

// Recycle kills Chrome and relaunches it. It refuses while tabs are open.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.tabs > 0 {
		return fmt.Errorf("browser: %d tabs open", m.tabs)
	}
	return m.recycleLocked()
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
	return m.cleanup()
}

func (m *Manager) startLocked() error {
	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	mctx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	go m.monitorLoop(mctx)
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Mode == ModeHeadful {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New()
		if m.cfg.Mode == ModeHeadful {
			l = l.Headless(false).Env("DISPLAY="+m.cfg.XvfbDisplay)
		} else {
			l = l.Headless(true)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked() error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))

	if err := m.cleanup(); err != nil {
		log.Warn("browser: cleanup during recycle", "error", err)
	}
	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	log.Info("browser: recycled")
	return nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}

// monitorLoop recycles Chrome when it is idle and either too old or too
// large. Busy browsers are checked again on the next tick.
func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.closed || m.browser == nil {
			m.mu.Unlock()
			return
		}
		if m.tabs > 0 {
			m.mu.Unlock()
			continue
		}
		reason := ""
		if time.Since(m.startAt) > m.cfg.RecycleInterval {
			reason = "interval"
		} else if used, err := jsHeapUsage(m.browser); err == nil && used > m.cfg.MemoryLimit {
			reason = "memory"
		}
		if reason != "" {
			log.Info("browser: recycle due", "reason", reason)
			if err := m.recycleLocked(); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
		}
		m.mu.Unlock()
	}
}

// jsHeapUsage reads the JS heap of the first open page as a proxy for the
// browser's footprint.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}

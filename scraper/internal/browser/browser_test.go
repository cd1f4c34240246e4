package browser

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":         ModeHeadless,
		"headless": ModeHeadless,
		"HTTP":     ModeHTTP,
		"static":   ModeHTTP,
		"headful":  ModeHeadful,
	} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("firefox"); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true, "xhr": true}
	cases := map[string]bool{
		"Image":      true,
		"Font":       true,
		"Stylesheet": false,
		"XHR":        true,
		"Document":   false,
	}
	for typ, want := range cases {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestHTTPModeOpensStaticPages(t *testing.T) {
	m := NewManager(Config{Mode: ModeHTTP})
	p, err := m.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := p.(*page.Static); !ok {
		t.Errorf("Open returned %T, want *page.Static", p)
	}
	p.Close()

	m.Close()
	if _, err := m.Open(context.Background()); err == nil {
		t.Error("Open after Close succeeded")
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.NavTimeout == 0 || m.cfg.RecycleInterval == 0 || m.cfg.MemoryLimit == 0 || m.cfg.XvfbDisplay != ":99" {
		t.Errorf("defaults not applied: %+v", m.cfg)
	}
	m.Close()
	if err := m.Recycle(); err == nil {
		t.Error("Recycle on a closed manager succeeded")
	}
}

func TestDisplaySocket(t *testing.T) {
	for in, want := range map[string]string{
		":99":  "/tmp/.X11-unix/X99",
		":0.0": "/tmp/.X11-unix/X0",
		":1.2": "/tmp/.X11-unix/X1",
	} {
		got, err := displaySocket(in)
		if err != nil || got != want {
			t.Errorf("displaySocket(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "99", "host:1", ":x"} {
		if _, err := displaySocket(bad); err == nil {
			t.Errorf("displaySocket(%q) accepted", bad)
		}
	}
}

func TestStartXvfbReusesRunningDisplay(t *testing.T) {
	dir := t.TempDir()
	old := x11SocketDir
	x11SocketDir = dir
	t.Cleanup(func() { x11SocketDir = old })
	if err := os.WriteFile(filepath.Join(dir, "X42"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(Config{Mode: ModeHeadful, XvfbDisplay: ":42", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err := m.startXvfb(); err != nil {
		t.Fatalf("startXvfb: %v", err)
	}
	if m.xvfb != nil {
		t.Error("spawned Xvfb although the display was up")
	}
	m.stopXvfb()
}

var _ page.Opener = (*Manager)(nil)

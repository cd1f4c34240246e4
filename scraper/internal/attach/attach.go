// CLAUDE:SUMMARY Downloads product attachments (bounded), validates PDFs with pdfcpu and records page count before staging.
// Package attach inspects datasheet attachments found on product pages.
package attach

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/supplyscrape/netguard"
	scmodel "github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/sink"
)

// Config configures an Inspector.
type Config struct {
	// MaxBytes caps a download. Larger files are marked invalid. Default: 20 MiB.
	MaxBytes int64
	// MaxPerProduct caps how many attachments of one product are fetched.
	// Default: 5.
	MaxPerProduct int
	// Timeout per download. Default: 30s.
	Timeout time.Duration
	// AllowPrivate lets downloads target loopback and private addresses.
	AllowPrivate bool
	Client       *http.Client
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 20 << 20
	}
	if c.MaxPerProduct <= 0 {
		c.MaxPerProduct = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Inspector fetches and checks attachments.
type Inspector struct {
	cfg Config
}

// New creates an Inspector.
func New(cfg Config) *Inspector {
	cfg.defaults()
	return &Inspector{cfg: cfg}
}

// Inspect downloads a.URL and fills ContentType, Size, Pages and Valid.
// A PDF is valid when pdfcpu can read and validate it; any other file is
// valid when it downloaded completely.
func (in *Inspector) Inspect(ctx context.Context, a *scmodel.Attachment) error {
	ctx, cancel := context.WithTimeout(ctx, in.cfg.Timeout)
	defer cancel()

	a.Valid = false
	if !in.cfg.AllowPrivate {
		if err := netguard.ValidateURL(a.URL); err != nil {
			return fmt.Errorf("attach: %s: %w", a.URL, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return fmt.Errorf("attach: request %s: %w", a.URL, err)
	}
	resp, err := in.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("attach: fetch %s: %w", a.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("attach: fetch %s: status %d", a.URL, resp.StatusCode)
	}

	data, err := netguard.LimitedReadAll(resp.Body, in.cfg.MaxBytes)
	a.Size = int64(len(data))
	if err != nil {
		return fmt.Errorf("attach: read %s: %w", a.URL, err)
	}
	a.ContentType = contentType(resp.Header.Get("Content-Type"), data)

	if a.ContentType != "application/pdf" {
		a.Valid = true
		return nil
	}
	pages, err := PDFPages(data)
	if err != nil {
		return fmt.Errorf("attach: %s: %w", a.URL, err)
	}
	a.Pages = pages
	a.Valid = true
	return nil
}

// PDFPages validates data as a PDF and returns its page count.
func PDFPages(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx.PageCount, nil
}

func contentType(header string, data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return "application/pdf"
	}
	ct, _, _ := strings.Cut(header, ";")
	ct = strings.TrimSpace(strings.ToLower(ct))
	if ct == "" || ct == "application/octet-stream" {
		return http.DetectContentType(data)
	}
	return ct
}

// Sink inspects the attachments of every product before passing it on.
// Inspection failures are logged; the product is staged regardless.
type Sink struct {
	next sink.Sink
	in   *Inspector
}

// Wrap returns a sink that inspects attachments then delegates to next.
func (in *Inspector) Wrap(next sink.Sink) *Sink {
	return &Sink{next: next, in: in}
}

func (s *Sink) Stage(ctx context.Context, p scmodel.Product) error {
	if len(p.Attachments) > 0 {
		atts := make([]scmodel.Attachment, len(p.Attachments))
		copy(atts, p.Attachments)
		for i := range atts {
			if i >= s.in.cfg.MaxPerProduct {
				break
			}
			if err := s.in.Inspect(ctx, &atts[i]); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.in.cfg.Logger.Warn("attach: inspect failed", "site_id", p.SiteID, "sku", p.SKU, "url", atts[i].URL, "error", err)
			}
		}
		p.Attachments = atts
	}
	return s.next.Stage(ctx, p)
}

func (s *Sink) Close() error { return s.next.Close() }

// CLAUDE:SUMMARY HTTP-only page implementation: one GET per navigation, DOM queried with goquery.
package page

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Static is the stealth-level-0 page: no JavaScript, one HTTP GET per
// navigation. Cookies persist across navigations of the same page so
// session-bound catalogues keep working.
type Static struct {
	client   *http.Client
	ua       string
	maxBytes int64
	logger   *slog.Logger

	url string
	doc *goquery.Document
}

// Option configures a Static page.
type Option func(*Static)

// WithClient sets a custom HTTP client. Its cookie jar is left untouched.
func WithClient(c *http.Client) Option {
	return func(s *Static) { s.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Static) { s.ua = ua }
}

// WithMaxBytes caps the response body size. Default: 10MB.
func WithMaxBytes(n int64) Option {
	return func(s *Static) { s.maxBytes = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Static) { s.logger = l }
}

// NewStatic creates an empty Static page. Call Navigate before querying.
func NewStatic(opts ...Option) *Static {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	s := &Static{
		client:   &http.Client{Timeout: 30 * time.Second, Jar: jar},
		ua:       defaultUserAgent,
		maxBytes: 10 << 20,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FromHTML builds a Static page already "at" pageURL with the given markup.
// Navigate still performs real HTTP requests afterwards.
func FromHTML(pageURL, html string, opts ...Option) (*Static, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("page: parse html: %w", err)
	}
	s := NewStatic(opts...)
	s.url = pageURL
	s.doc = doc
	return s, nil
}

// Navigate GETs url and replaces the current document.
func (s *Static) Navigate(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("page: new request: %w", err)
	}
	req.Header.Set("User-Agent", s.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.7")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("page: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("page: get %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return fmt.Errorf("page: parse %s: %w", url, err)
	}

	s.doc = doc
	s.url = resp.Request.URL.String()
	s.logger.Debug("page: fetched", "url", s.url, "status", resp.StatusCode)
	return nil
}

func (s *Static) URL() string { return s.url }

// Wait reports whether selector matches the current document. A static
// document never changes, so there is nothing to wait for.
func (s *Static) Wait(_ context.Context, selector string) error {
	if s.doc == nil {
		return ErrNoDocument
	}
	if s.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return nil
}

func (s *Static) QuerySelector(_ context.Context, selector string) (Element, error) {
	if s.doc == nil {
		return nil, ErrNoDocument
	}
	return first(s.doc.Selection, selector), nil
}

func (s *Static) QuerySelectorAll(_ context.Context, selector string) ([]Element, error) {
	if s.doc == nil {
		return nil, ErrNoDocument
	}
	return all(s.doc.Selection, selector), nil
}

func (s *Static) Close() error { return nil }

type staticElement struct {
	sel *goquery.Selection
}

func (e *staticElement) QuerySelector(_ context.Context, selector string) (Element, error) {
	return first(e.sel, selector), nil
}

func (e *staticElement) QuerySelectorAll(_ context.Context, selector string) ([]Element, error) {
	return all(e.sel, selector), nil
}

func (e *staticElement) Text(context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) HTML(context.Context) (string, error) {
	return e.sel.Html()
}

func first(root *goquery.Selection, selector string) Element {
	m := root.Find(selector).First()
	if m.Length() == 0 {
		return nil
	}
	return &staticElement{sel: m}
}

func all(root *goquery.Selection, selector string) []Element {
	var out []Element
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{sel: s})
	})
	return out
}

// HTTPOpener opens Static pages sharing the given options.
type HTTPOpener struct {
	Options []Option
}

func (o HTTPOpener) Open(context.Context) (Page, error) {
	return NewStatic(o.Options...), nil
}

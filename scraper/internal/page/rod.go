// CLAUDE:SUMMARY go-rod backed page: non-waiting selector lookups on a Chrome tab, navigation bounded by a timeout.
package page

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

// Rod adapts a Chrome tab to Page. Lookups use Has/Elements, which do not
// retry, so a missing selector costs one round trip instead of a timeout.
type Rod struct {
	page       *rod.Page
	navTimeout time.Duration
	logger     *slog.Logger
	onClose    func()
	url        string
}

// NewRod wraps p. onClose, if non-nil, runs after the tab is closed.
func NewRod(p *rod.Page, navTimeout time.Duration, logger *slog.Logger, onClose func()) *Rod {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rod{page: p, navTimeout: navTimeout, logger: logger, onClose: onClose}
}

// Navigate loads url and waits for the load event, bounded by the
// navigation timeout. A load-wait timeout is logged, not returned: the DOM
// is usually usable long before every tracker has loaded.
func (r *Rod) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, r.navTimeout)
	defer cancel()

	p := r.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("page: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		r.logger.Warn("page: wait load timeout", "url", url, "error", err)
	}
	r.url = url
	if info, err := r.page.Info(); err == nil && info.URL != "" {
		r.url = info.URL
	}
	return nil
}

func (r *Rod) URL() string { return r.url }

// Wait blocks until selector appears or the navigation timeout elapses.
func (r *Rod) Wait(ctx context.Context, selector string) error {
	wctx, cancel := context.WithTimeout(ctx, r.navTimeout)
	defer cancel()
	if _, err := r.page.Context(wctx).Element(selector); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, selector, err)
	}
	return nil
}

func (r *Rod) QuerySelector(ctx context.Context, selector string) (Element, error) {
	has, el, err := r.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("page: query %s: %w", selector, err)
	}
	if !has {
		return nil, nil
	}
	return &rodElement{el: el}, nil
}

func (r *Rod) QuerySelectorAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("page: query all %s: %w", selector, err)
	}
	return wrapAll(els), nil
}

// Close closes the tab.
func (r *Rod) Close() error {
	err := r.page.Close()
	if r.onClose != nil {
		r.onClose()
	}
	return err
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) QuerySelector(ctx context.Context, selector string) (Element, error) {
	has, el, err := e.el.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("page: query %s: %w", selector, err)
	}
	if !has {
		return nil, nil
	}
	return &rodElement{el: el}, nil
}

func (e *rodElement) QuerySelectorAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("page: query all %s: %w", selector, err)
	}
	return wrapAll(els), nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) HTML(ctx context.Context) (string, error) {
	v, err := e.el.Context(ctx).Property("innerHTML")
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func wrapAll(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

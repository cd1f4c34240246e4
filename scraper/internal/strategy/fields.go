package strategy

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
)

// Selector roles read from Site.Selectors.
const (
	SelProductList       = "productList"
	SelProductItem       = "productItem"
	SelProductSKU        = "productSku"
	SelProductName       = "productName"
	SelProductTitle      = "productTitle"
	SelProductPrice      = "productPrice"
	SelProductLink       = "productLink"
	SelProductImage      = "productImage"
	SelProductImages     = "productImages"
	SelProductDesc       = "productDescription"
	SelProductAttrRow    = "productAttributeRow"
	SelProductAttrName   = "productAttributeName"
	SelProductAttrValue  = "productAttributeValue"
	SelProductAttachment = "productAttachment"

	SelFamilyLink        = "familyLink"
	SelFamilyName        = "familyName"
	SelVariantTable      = "variantTable"
	SelVariantRow        = "variantRow"
	SelVariantSKU        = "variantSku"
	SelVariantName       = "variantName"
	SelVariantPrice      = "variantPrice"
	SelVariantAttributes = "variantAttributes"
)

// scope is anything selectors can be evaluated against: a Page or an Element.
type scope interface {
	QuerySelector(ctx context.Context, selector string) (page.Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]page.Element, error)
}

// fields performs tolerant selector lookups for one site. Every miss is a
// debug log line and a zero value.
type fields struct {
	sel model.Selectors
	log *slog.Logger
}

func newFields(site *model.Site, log *slog.Logger) fields {
	return fields{sel: site.Selectors, log: log}
}

// wait gives a page rendered by scripts time to show the first configured
// selector among keys. A timeout or miss is only logged; the lookups that
// follow decide what the page holds.
func (f fields) wait(ctx context.Context, p page.Page, keys ...string) {
	for _, key := range keys {
		css, ok := f.sel.Get(key)
		if !ok {
			continue
		}
		if err := p.Wait(ctx, css); err != nil {
			f.log.Debug("strategy: wait failed", "key", key, "selector", css, "error", err)
		}
		return
	}
}

func (f fields) element(ctx context.Context, s scope, keys ...string) page.Element {
	for _, key := range keys {
		css, ok := f.sel.Get(key)
		if !ok {
			continue
		}
		el, err := s.QuerySelector(ctx, css)
		if err != nil {
			f.log.Debug("strategy: selector read failed", "key", key, "selector", css, "error", err)
			continue
		}
		if el != nil {
			return el
		}
		f.log.Debug("strategy: selector matched nothing", "key", key, "selector", css)
	}
	return nil
}

func (f fields) all(ctx context.Context, s scope, key string) []page.Element {
	css, ok := f.sel.Get(key)
	if !ok {
		f.log.Debug("strategy: selector not configured", "key", key)
		return nil
	}
	return f.allCSS(ctx, s, key, css)
}

func (f fields) allCSS(ctx context.Context, s scope, key, css string) []page.Element {
	els, err := s.QuerySelectorAll(ctx, css)
	if err != nil {
		f.log.Debug("strategy: selector read failed", "key", key, "selector", css, "error", err)
		return nil
	}
	return els
}

func (f fields) text(ctx context.Context, s scope, keys ...string) string {
	el := f.element(ctx, s, keys...)
	if el == nil {
		return ""
	}
	return f.readText(ctx, el)
}

func (f fields) readText(ctx context.Context, el page.Element) string {
	t, err := el.Text(ctx)
	if err != nil {
		f.log.Debug("strategy: text read failed", "error", err)
		return ""
	}
	return cleanText(t)
}

func (f fields) attr(ctx context.Context, s scope, key string, names ...string) string {
	el := f.element(ctx, s, key)
	if el == nil {
		return ""
	}
	return f.readAttr(ctx, el, names...)
}

func (f fields) readAttr(ctx context.Context, el page.Element, names ...string) string {
	for _, name := range names {
		v, ok, err := el.Attribute(ctx, name)
		if err != nil {
			f.log.Debug("strategy: attribute read failed", "attr", name, "error", err)
			continue
		}
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (f fields) html(ctx context.Context, s scope, key string) string {
	el := f.element(ctx, s, key)
	if el == nil {
		return ""
	}
	h, err := el.HTML(ctx)
	if err != nil {
		f.log.Debug("strategy: html read failed", "key", key, "error", err)
		return ""
	}
	return h
}

// cleanText trims and collapses internal whitespace runs to one space.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL resolves href against base. Empty, fragment-only and
// javascript: links resolve to "".
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return b.ResolveReference(ref).String()
}

var imageAttrs = []string{"src", "data-src", "data-lazy-src", "href"}

package strategy

import (
	"context"
	"strings"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
)

// Direct treats the current page as one product detail page. It yields at
// most one product, and none when the SKU or the title is missing.
type Direct struct {
	env Env
}

func (*Direct) Name() string { return model.StrategyDirect }

func (d *Direct) Execute(ctx context.Context, p page.Page, site *model.Site, runID string) []model.Product {
	return guard(&d.env, d.Name(), site, runID, func(emit func(model.Product)) error {
		f := newFields(site, d.env.Logger.With("strategy", d.Name(), "site_id", site.ID))
		pageURL := p.URL()

		sku := f.text(ctx, p, SelProductSKU)
		title := f.text(ctx, p, SelProductName, SelProductTitle)
		if sku == "" || title == "" {
			f.log.Debug("strategy: direct page lacks sku or title", "url", pageURL, "sku", sku, "title", title)
			return nil
		}

		prod := model.Product{
			SKU:       sku,
			Title:     title,
			Price:     ParsePrice(f.text(ctx, p, SelProductPrice)),
			SourceURL: pageURL,
		}
		if h := f.html(ctx, p, SelProductDesc); h != "" {
			prod.Description = d.env.Describer.Markdown(h, pageURL)
		}
		if src := f.attr(ctx, p, SelProductImage, imageAttrs...); src != "" {
			prod.ImageURL = resolveURL(pageURL, src)
		}
		prod.Images = collectURLs(ctx, f, f.all(ctx, p, SelProductImages), pageURL, imageAttrs)
		prod.Attributes = readAttributes(ctx, f, p)
		prod.Attachments = readAttachments(ctx, f, p, pageURL)

		emit(prod)
		return nil
	})
}

// collectURLs reads the first non-empty attribute of each element, resolves
// it and drops duplicates while keeping document order.
func collectURLs(ctx context.Context, f fields, els []page.Element, base string, attrs []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, el := range els {
		u := resolveURL(base, f.readAttr(ctx, el, attrs...))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// readAttributes reads name/value pairs from rows of a specification table.
// Rows default to "tr", names to "th" and values to "td".
func readAttributes(ctx context.Context, f fields, s scope) map[string]string {
	rowSel, ok := f.sel.Get(SelProductAttrRow)
	if !ok {
		return nil
	}
	nameSel := selOr(f.sel, SelProductAttrName, "th")
	valueSel := selOr(f.sel, SelProductAttrValue, "td")

	attrs := make(map[string]string)
	for _, row := range f.allCSS(ctx, s, SelProductAttrRow, rowSel) {
		nameEl, err := row.QuerySelector(ctx, nameSel)
		if err != nil || nameEl == nil {
			continue
		}
		valueEl, err := row.QuerySelector(ctx, valueSel)
		if err != nil || valueEl == nil {
			continue
		}
		name := strings.TrimSuffix(f.readText(ctx, nameEl), ":")
		if name == "" {
			continue
		}
		attrs[strings.TrimSpace(name)] = f.readText(ctx, valueEl)
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func readAttachments(ctx context.Context, f fields, s scope, base string) []model.Attachment {
	var out []model.Attachment
	seen := make(map[string]bool)
	for _, el := range f.all(ctx, s, SelProductAttachment) {
		u := resolveURL(base, f.readAttr(ctx, el, "href", "data-href", "src"))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, model.Attachment{URL: u, Name: f.readText(ctx, el)})
	}
	return out
}

func selOr(sel model.Selectors, key, def string) string {
	if v, ok := sel.Get(key); ok {
		return v
	}
	return def
}

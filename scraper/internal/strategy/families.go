package strategy

import (
	"context"
	"strings"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
)

// Families follows every familyLink on the current page, pauses between
// family pages, and reads one product per row of each family's variant
// table. Rows without a SKU are skipped. A family page that fails to load
// is logged and skipped; cancellation ends the strategy with what it has.
type Families struct {
	env Env
}

func (*Families) Name() string { return model.StrategyFamilies }

func (fm *Families) Execute(ctx context.Context, p page.Page, site *model.Site, runID string) []model.Product {
	return guard(&fm.env, fm.Name(), site, runID, func(emit func(model.Product)) error {
		f := newFields(site, fm.env.Logger.With("strategy", fm.Name(), "site_id", site.ID))

		f.wait(ctx, p, SelFamilyLink)
		links := collectURLs(ctx, f, f.all(ctx, p, SelFamilyLink), p.URL(), []string{"href"})
		if len(links) == 0 {
			f.log.Debug("strategy: no family links", "url", p.URL())
			return nil
		}
		attrSels := parseAttributeSelectors(site.Selectors[SelVariantAttributes])

		for i, link := range links {
			if i > 0 {
				if err := fm.env.Pacer.Pause(ctx, fm.env.FamilyPause); err != nil {
					return err
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.Navigate(ctx, link); err != nil {
				if ctx.Err() != nil {
					return err
				}
				f.log.Warn("strategy: family page failed", "url", link, "error", err)
				continue
			}
			fm.readFamily(ctx, f, p, link, attrSels, emit)
		}
		return nil
	})
}

func (fm *Families) readFamily(ctx context.Context, f fields, p page.Page, link string, attrSels []attrSelector, emit func(model.Product)) {
	f.wait(ctx, p, SelVariantTable)
	family := f.text(ctx, p, SelFamilyName)

	table := f.element(ctx, p, SelVariantTable)
	if table == nil {
		f.log.Debug("strategy: family without variant table", "url", link)
		return
	}
	rows := f.allCSS(ctx, table, SelVariantRow, selOr(f.sel, SelVariantRow, "tr"))

	for _, row := range rows {
		sku := f.text(ctx, row, SelVariantSKU)
		if sku == "" {
			continue
		}
		title := f.text(ctx, row, SelVariantName)
		if title == "" {
			title = sku
		}
		prod := model.Product{
			SKU:       sku,
			Title:     title,
			Price:     ParsePrice(f.text(ctx, row, SelVariantPrice)),
			SourceURL: link,
		}
		attrs := make(map[string]string)
		if family != "" {
			attrs["family"] = family
		}
		for _, as := range attrSels {
			el, err := row.QuerySelector(ctx, as.selector)
			if err != nil || el == nil {
				continue
			}
			if v := f.readText(ctx, el); v != "" {
				attrs[as.label] = v
			}
		}
		if len(attrs) > 0 {
			prod.Attributes = attrs
		}
		emit(prod)
	}
}

type attrSelector struct {
	label    string
	selector string
}

// parseAttributeSelectors reads "label=selector,label2=selector2". Entries
// without '=' or with an empty side are ignored. Selectors containing ','
// are not supported in this form.
func parseAttributeSelectors(raw string) []attrSelector {
	var out []attrSelector
	for part := range strings.SplitSeq(raw, ",") {
		label, sel, ok := strings.Cut(part, "=")
		label, sel = strings.TrimSpace(label), strings.TrimSpace(sel)
		if !ok || label == "" || sel == "" {
			continue
		}
		out = append(out, attrSelector{label: label, selector: sel})
	}
	return out
}

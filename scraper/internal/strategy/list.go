package strategy

import (
	"context"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
)

// List reads product cards from a listing page: the productList container,
// then every productItem inside it. Cards without a title are skipped.
// Without a productList selector the whole document is the container.
type List struct {
	env Env
}

func (*List) Name() string { return model.StrategyList }

func (l *List) Execute(ctx context.Context, p page.Page, site *model.Site, runID string) []model.Product {
	return guard(&l.env, l.Name(), site, runID, func(emit func(model.Product)) error {
		f := newFields(site, l.env.Logger.With("strategy", l.Name(), "site_id", site.ID))
		pageURL := p.URL()
		f.wait(ctx, p, SelProductList, SelProductItem)

		var container scope = p
		if _, ok := site.Selectors.Get(SelProductList); ok {
			el := f.element(ctx, p, SelProductList)
			if el == nil {
				return nil
			}
			container = el
		}

		items := f.all(ctx, container, SelProductItem)
		if len(items) == 0 {
			f.log.Debug("strategy: no list items", "url", pageURL)
			return nil
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			title := f.text(ctx, item, SelProductName, SelProductTitle)
			if title == "" {
				f.log.Debug("strategy: list item without title skipped", "url", pageURL)
				continue
			}
			prod := model.Product{
				SKU:       f.text(ctx, item, SelProductSKU),
				Title:     title,
				Price:     ParsePrice(f.text(ctx, item, SelProductPrice)),
				SourceURL: pageURL,
			}
			if href := l.link(ctx, f, item); href != "" {
				if u := resolveURL(pageURL, href); u != "" {
					prod.SourceURL = u
				}
			}
			if src := f.attr(ctx, item, SelProductImage, imageAttrs...); src != "" {
				prod.ImageURL = resolveURL(pageURL, src)
			}
			emit(prod)
		}
		return nil
	})
}

// link returns the card's detail href: productLink when configured,
// otherwise the first anchor in the card.
func (l *List) link(ctx context.Context, f fields, item page.Element) string {
	if _, ok := f.sel.Get(SelProductLink); ok {
		return f.attr(ctx, item, SelProductLink, "href")
	}
	a, err := item.QuerySelector(ctx, "a[href]")
	if err != nil || a == nil {
		return ""
	}
	return f.readAttr(ctx, a, "href")
}

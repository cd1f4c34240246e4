package strategy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
	"github.com/hazyhaar/supplyscrape/scraper/internal/pace"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testRegistry() *Registry {
	return NewRegistry(Env{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Pacer:  pace.None{},
		Now:    func() time.Time { return fixedNow },
	})
}

func mustStrategy(t *testing.T, name string) Strategy {
	t.Helper()
	s, ok := testRegistry().Get(name)
	if !ok {
		t.Fatalf("strategy %q not registered", name)
	}
	return s
}

func mustPage(t *testing.T, url, html string) page.Page {
	t.Helper()
	p, err := page.FromHTML(url, html)
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	return p
}

func TestRegistryAliases(t *testing.T) {
	r := testRegistry()
	for name, want := range map[string]string{
		"direct":           model.StrategyDirect,
		"DirectStrategy":   model.StrategyDirect,
		"list":             model.StrategyList,
		"List-Strategy":    model.StrategyList,
		"families":         model.StrategyFamilies,
		"FamiliesStrategy": model.StrategyFamilies,
	} {
		s, ok := r.Get(name)
		if !ok {
			t.Errorf("Get(%q) not found", name)
			continue
		}
		if s.Name() != want {
			t.Errorf("Get(%q).Name() = %q, want %q", name, s.Name(), want)
		}
	}
	if _, ok := r.Get("carousel"); ok {
		t.Error("unknown strategy resolved")
	}
}

func TestList_SkipsCardsWithoutTitle(t *testing.T) {
	site := &model.Site{
		ID:      "s1",
		BaseURL: "https://example.test",
		Selectors: model.Selectors{
			"productList": ".items",
			"productItem": ".card",
			"productName": ".title",
		},
	}
	p := mustPage(t, "https://example.test", `<html><body><div class="items">
		<div class="card"><span class="title">Widget A</span></div>
		<div class="card"><span class="price">9,90 €</span></div>
		<div class="card"><span class="title">Widget C</span></div>
	</div></body></html>`)

	got := mustStrategy(t, "list").Execute(context.Background(), p, site, "run_1")
	if len(got) != 2 {
		t.Fatalf("products = %d, want 2", len(got))
	}
	if got[0].Title != "Widget A" || got[1].Title != "Widget C" {
		t.Errorf("titles = %q, %q", got[0].Title, got[1].Title)
	}
	for _, prod := range got {
		if prod.SiteID != "s1" || prod.RunID != "run_1" || prod.Strategy != model.StrategyList {
			t.Errorf("stamp = %q/%q/%q", prod.SiteID, prod.RunID, prod.Strategy)
		}
		if !prod.ScrapedAt.Equal(fixedNow) {
			t.Errorf("ScrapedAt = %v", prod.ScrapedAt)
		}
	}
}

func TestList_FullCard(t *testing.T) {
	site := &model.Site{
		ID: "s1",
		Selectors: model.Selectors{
			"productList":  "ul.catalog",
			"productItem":  "li",
			"productName":  "h3",
			"productSku":   ".ref",
			"productPrice": ".price",
			"productImage": "img",
		},
	}
	p := mustPage(t, "https://shop.test/cat/pumps", `<ul class="catalog">
		<li><a href="/p/42"><h3> Pump  42 </h3></a><span class="ref">P-42</span>
		    <span class="price">1.234,50 €</span><img data-src="/img/42.jpg"></li>
	</ul>`)

	got := mustStrategy(t, "list").Execute(context.Background(), p, site, "r")
	price := 1234.50
	want := []model.Product{{
		SKU:       "P-42",
		Title:     "Pump 42",
		Price:     &price,
		ImageURL:  "https://shop.test/img/42.jpg",
		SourceURL: "https://shop.test/p/42",
		SiteID:    "s1",
		RunID:     "r",
		Strategy:  model.StrategyList,
		ScrapedAt: fixedNow,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("products mismatch (-want +got):\n%s", diff)
	}
}

func TestList_ContainerMissing(t *testing.T) {
	site := &model.Site{ID: "s1", Selectors: model.Selectors{
		"productList": ".nope", "productItem": ".card", "productName": ".title",
	}}
	p := mustPage(t, "https://example.test", `<div class="card"><span class="title">X</span></div>`)
	if got := mustStrategy(t, "list").Execute(context.Background(), p, site, "r"); len(got) != 0 {
		t.Errorf("products = %d, want 0", len(got))
	}
}

const detailHTML = `<html><body>
<h1 class="name">Ball valve DN25</h1>
<span class="sku">BV-25</span>
<span class="price">$1,299.00</span>
<img class="main" src="/img/bv25.jpg">
<div class="gallery"><img src="/img/a.jpg"><img src="/img/b.jpg"><img src="/img/a.jpg"></div>
<div class="desc"><p>Brass <b>body</b></p><script>alert(1)</script></div>
<table class="spec">
  <tr><th>Material:</th><td>Brass</td></tr>
  <tr><th>Pressure</th><td>16 bar</td></tr>
</table>
<a class="doc" href="/docs/bv25.pdf">Datasheet</a>
</body></html>`

func TestDirect_Detail(t *testing.T) {
	site := &model.Site{ID: "s2", Selectors: model.Selectors{
		"productSku":          ".sku",
		"productName":         "h1.name",
		"productPrice":        ".price",
		"productImage":        "img.main",
		"productImages":       ".gallery img",
		"productDescription":  ".desc",
		"productAttributeRow": "table.spec tr",
		"productAttachment":   "a.doc",
	}}
	p := mustPage(t, "https://shop.test/p/bv25", detailHTML)

	got := mustStrategy(t, "direct").Execute(context.Background(), p, site, "r")
	if len(got) != 1 {
		t.Fatalf("products = %d, want 1", len(got))
	}
	prod := got[0]
	if prod.SKU != "BV-25" || prod.Title != "Ball valve DN25" {
		t.Errorf("sku/title = %q/%q", prod.SKU, prod.Title)
	}
	if prod.Price == nil || *prod.Price != 1299 {
		t.Errorf("price = %v", prod.Price)
	}
	if prod.ImageURL != "https://shop.test/img/bv25.jpg" {
		t.Errorf("image = %q", prod.ImageURL)
	}
	if diff := cmp.Diff([]string{"https://shop.test/img/a.jpg", "https://shop.test/img/b.jpg"}, prod.Images); diff != "" {
		t.Errorf("images (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"Material": "Brass", "Pressure": "16 bar"}, prod.Attributes); diff != "" {
		t.Errorf("attributes (-want +got):\n%s", diff)
	}
	if len(prod.Attachments) != 1 || prod.Attachments[0].URL != "https://shop.test/docs/bv25.pdf" || prod.Attachments[0].Name != "Datasheet" {
		t.Errorf("attachments = %+v", prod.Attachments)
	}
	if prod.Description != "Brass **body**" {
		t.Errorf("description = %q", prod.Description)
	}
	if prod.SourceURL != "https://shop.test/p/bv25" {
		t.Errorf("source = %q", prod.SourceURL)
	}
}

func TestDirect_MissingSKU(t *testing.T) {
	site := &model.Site{ID: "s2", Selectors: model.Selectors{
		"productSku": ".missing", "productName": "h1.name",
	}}
	p := mustPage(t, "https://shop.test/p/bv25", detailHTML)
	if got := mustStrategy(t, "direct").Execute(context.Background(), p, site, "r"); len(got) != 0 {
		t.Errorf("products = %d, want 0", len(got))
	}
}

func familyServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<nav><a class="fam" href="/f/valves">Valves</a>
			<a class="fam" href="/f/broken">Broken</a>
			<a class="fam" href="/f/fittings">Fittings</a>
			<a class="fam" href="/f/valves">Valves again</a></nav>`)
	})
	mux.HandleFunc("/f/valves", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<h1>Valves</h1><table class="v">
			<tr><th>Ref</th><th>Size</th><th>Price</th></tr>
			<tr><td class="sku">V-1</td><td class="size">DN15</td><td class="price">10,50</td></tr>
			<tr><td class="sku"></td><td class="size">DN20</td><td class="price">11</td></tr>
			<tr><td class="sku">V-3</td><td class="size">DN25</td><td class="price">n/a</td></tr>
		</table>`)
	})
	mux.HandleFunc("/f/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("/f/fittings", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<h1>Fittings</h1><table class="v">
			<tr><td class="sku">F-1</td><td class="name">Elbow 90</td><td class="price">2.40</td></tr>
		</table>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFamilies_Variants(t *testing.T) {
	srv := familyServer(t)
	site := &model.Site{ID: "s3", BaseURL: srv.URL, Selectors: model.Selectors{
		"familyLink":        "a.fam",
		"familyName":        "h1",
		"variantTable":      "table.v",
		"variantSku":        ".sku",
		"variantName":       ".name",
		"variantPrice":      ".price",
		"variantAttributes": "size=.size, bogus",
	}}
	p := page.NewStatic()
	ctx := context.Background()
	if err := p.Navigate(ctx, srv.URL+"/"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	got := mustStrategy(t, "families").Execute(ctx, p, site, "r")
	var skus []string
	for _, prod := range got {
		skus = append(skus, prod.SKU)
	}
	if diff := cmp.Diff([]string{"V-1", "V-3", "F-1"}, skus); diff != "" {
		t.Fatalf("skus (-want +got):\n%s", diff)
	}

	if got[0].Title != "V-1" {
		t.Errorf("fallback title = %q, want the SKU", got[0].Title)
	}
	if got[0].Price == nil || *got[0].Price != 10.5 {
		t.Errorf("V-1 price = %v", got[0].Price)
	}
	if got[1].Price != nil {
		t.Errorf("V-3 price = %v, want nil", *got[1].Price)
	}
	if diff := cmp.Diff(map[string]string{"family": "Valves", "size": "DN15"}, got[0].Attributes); diff != "" {
		t.Errorf("attributes (-want +got):\n%s", diff)
	}
	if got[2].Title != "Elbow 90" || got[2].SourceURL != srv.URL+"/f/fittings" {
		t.Errorf("F-1 = %q %q", got[2].Title, got[2].SourceURL)
	}
}

// waitRecorder records the selectors a strategy waits on.
type waitRecorder struct {
	page.Page
	waits []string
}

func (w *waitRecorder) Wait(ctx context.Context, selector string) error {
	w.waits = append(w.waits, selector)
	return w.Page.Wait(ctx, selector)
}

func TestStrategiesWaitForContainers(t *testing.T) {
	listSite := &model.Site{ID: "s1", Selectors: model.Selectors{
		"productList": ".items",
		"productItem": ".card",
		"productName": ".title",
	}}
	lp := &waitRecorder{Page: mustPage(t, "https://example.test", `<div class="card"><span class="title">Loose</span></div>`)}
	if got := mustStrategy(t, "list").Execute(context.Background(), lp, listSite, "r"); len(got) != 0 {
		t.Errorf("products without container = %d, want 0", len(got))
	}
	if diff := cmp.Diff([]string{".items"}, lp.waits); diff != "" {
		t.Errorf("list waits (-want +got):\n%s", diff)
	}

	srv := familyServer(t)
	famSite := &model.Site{ID: "s3", Selectors: model.Selectors{
		"familyLink":   "a.fam",
		"variantTable": "table.v",
		"variantSku":   ".sku",
	}}
	fp := &waitRecorder{Page: page.NewStatic()}
	ctx := context.Background()
	if err := fp.Navigate(ctx, srv.URL+"/"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	got := mustStrategy(t, "families").Execute(ctx, fp, famSite, "r")
	if len(got) != 3 {
		t.Errorf("variants = %d, want 3", len(got))
	}
	if diff := cmp.Diff([]string{"a.fam", "table.v", "table.v"}, fp.waits); diff != "" {
		t.Errorf("families waits (-want +got):\n%s", diff)
	}
}

func TestFamilies_CancelledReturnsPartial(t *testing.T) {
	srv := familyServer(t)
	site := &model.Site{ID: "s3", Selectors: model.Selectors{
		"familyLink": "a.fam", "variantTable": "table.v", "variantSku": ".sku",
	}}
	p := page.NewStatic()
	if err := p.Navigate(context.Background(), srv.URL+"/"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := NewRegistry(Env{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Pacer:  cancelPacer{cancel: cancel},
	})
	fam, _ := s.Get("families")
	got := fam.Execute(ctx, p, site, "r")
	if len(got) != 2 {
		t.Errorf("products = %d, want the 2 from the first family", len(got))
	}
}

// cancelPacer cancels the run on its first pause.
type cancelPacer struct{ cancel context.CancelFunc }

func (c cancelPacer) Pause(ctx context.Context, _ pace.Range) error {
	c.cancel()
	return ctx.Err()
}

func TestGuard_RecoversPanic(t *testing.T) {
	env := Env{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	env.defaults()
	site := &model.Site{ID: "s"}
	got := guard(&env, "x", site, "r", func(emit func(model.Product)) error {
		emit(model.Product{SKU: "A", Title: "A"})
		panic("boom")
	})
	if len(got) != 1 || got[0].SKU != "A" {
		t.Errorf("partial = %+v", got)
	}
}

func TestParseAttributeSelectors(t *testing.T) {
	got := parseAttributeSelectors(" size = .size ,color=td.c,=x,y=, junk")
	want := []attrSelector{{"size", ".size"}, {"color", "td.c"}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(attrSelector{})); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

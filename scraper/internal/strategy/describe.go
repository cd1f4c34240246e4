package strategy

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Describer turns a supplier's description markup into Markdown. Markup is
// sanitized first: supplier pages carry inline scripts, tracking pixels and
// style soup that must not reach the staging store.
type Describer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
	conv   *converter.Converter
}

// NewDescriber builds a Describer with the UGC sanitizing policy and the
// commonmark + table conversion plugins (spec sheets are often tables).
func NewDescriber() *Describer {
	return &Describer{
		policy: bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown converts html to Markdown, resolving links against pageURL. If
// conversion fails the tag-stripped text is returned instead.
func (d *Describer) Markdown(html, pageURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	clean := d.policy.Sanitize(html)
	var opts []converter.ConvertOptionFunc
	if pageURL != "" {
		opts = append(opts, converter.WithDomain(pageURL))
	}
	md, err := d.conv.ConvertString(clean, opts...)
	if err != nil {
		return cleanText(d.strict.Sanitize(html))
	}
	return strings.TrimSpace(md)
}

package normalize

import "github.com/microcosm-cc/bluemonday"

// readerPolicy builds the sanitization allow-list. It admits the structural
// and inline elements EPUB 2 readers handle well and strips everything
// active or presentational: scripts, styles, event handlers, forms, frames.
func readerPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"div", "p", "span", "blockquote", "pre", "code",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "dl", "dt", "dd",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
		"a", "em", "strong", "b", "i", "u", "s", "small", "sub", "sup",
		"br", "hr", "figure", "figcaption", "cite", "q", "abbr", "time",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	p.AllowElements("img")
	p.AllowAttrs("colspan", "rowspan").OnElements("th", "td")
	p.AllowAttrs("datetime").OnElements("time")

	p.AllowStandardURLs()
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)

	return p
}

package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// smartenTree applies typographic replacements to every text node outside
// pre and code blocks. Markup, attributes, and URLs are never touched.
func smartenTree(n *html.Node) {
	if n.Type == html.ElementNode && (n.Data == "pre" || n.Data == "code") {
		return
	}
	if n.Type == html.TextNode {
		n.Data = Smarten(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		smartenTree(c)
	}
}

// Smarten converts straight quotes to curly quotes, double hyphens to em
// dashes, and three dots to ellipses in plain text.
func Smarten(text string) string {
	text = strings.ReplaceAll(text, "---", "—")
	text = strings.ReplaceAll(text, "--", "—")
	text = strings.ReplaceAll(text, "...", "…")

	var b strings.Builder
	b.Grow(len(text))
	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '"':
			if opensQuote(runes, i) {
				b.WriteRune('“')
			} else {
				b.WriteRune('”')
			}
		case '\'':
			if opensQuote(runes, i) {
				b.WriteRune('‘')
			} else {
				b.WriteRune('’')
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// opensQuote decides direction from the preceding rune: a quote after
// start-of-text, whitespace, or an opening bracket opens; anything else
// closes (which also covers apostrophes inside words).
func opensQuote(runes []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := runes[i-1]
	return unicode.IsSpace(prev) || prev == '(' || prev == '[' || prev == '{' ||
		prev == '—' || prev == '‘' || prev == '“'
}

package script

import "github.com/PuerkitoBio/goquery"

// Document is the context value injected as `document` into HTML-phase
// scripts. With the engine's field-name mapping, scripts call
// document.find(selector), element.attr(name), element.text(),
// element.html(). The wrapper exposes queries only; scripts cannot mutate
// the underlying tree.
type Document struct {
	doc *goquery.Document
}

// NewDocument wraps a parsed page for script injection.
func NewDocument(doc *goquery.Document) *Document {
	return &Document{doc: doc}
}

// Find returns every element matching the CSS selector, in document order.
func (d *Document) Find(selector string) []*Element {
	var elements []*Element
	d.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		elements = append(elements, &Element{sel: sel})
	})
	return elements
}

// Element is a single matched element exposed to scripts.
type Element struct {
	sel *goquery.Selection
}

// Attr returns the named attribute, or "" when absent.
func (el *Element) Attr(name string) string {
	value, _ := el.sel.Attr(name)
	return value
}

// Text returns the element's combined text content.
func (el *Element) Text() string {
	return el.sel.Text()
}

// Html returns the element's outer HTML.
func (el *Element) Html() string {
	out, err := goquery.OuterHtml(el.sel)
	if err != nil {
		return ""
	}
	return out
}

// Find matches descendants of this element.
func (el *Element) Find(selector string) []*Element {
	var elements []*Element
	el.sel.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		elements = append(elements, &Element{sel: sel})
	})
	return elements
}

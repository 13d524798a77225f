// Package extract turns fetched documents into article references (index
// phase) or content plus metadata (article phase). Rules are either CSS
// selectors, sandboxed scripts, or structured payload paths, with a shared
// metadata fallback over well-known page conventions.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/claudehenchoz/gensi/core"
	"github.com/claudehenchoz/gensi/core/recipe"
	"github.com/claudehenchoz/gensi/core/script"
	"github.com/claudehenchoz/gensi/core/urlutil"
)

// ArticleData is the partial article an extraction produces before
// normalization. Content is raw HTML; metadata fields may be empty.
type ArticleData struct {
	Content string
	Title   string
	Author  string
	Date    string
}

// Doc is a parsed HTML document bound to its final URL so relative
// references resolve correctly after redirects.
type Doc struct {
	finalURL string
	doc      *goquery.Document
}

// ParseHTML parses a fetched HTML body.
func ParseHTML(body []byte, finalURL string) (*Doc, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindParse, Rule: finalURL, Err: err}
	}
	return &Doc{finalURL: finalURL, doc: doc}, nil
}

// FinalURL returns the document's post-redirect URL.
func (d *Doc) FinalURL() string { return d.finalURL }

// Document exposes the parsed tree for metadata fallback on fragments.
func (d *Doc) Document() *goquery.Document { return d.doc }

// IndexRefs extracts article references from an HTML index page in
// discovery order. No deduplication is performed; recipes exclude
// duplicates through their own rules.
func (d *Doc) IndexRefs(src *recipe.IndexSource, eng *script.Engine) ([]core.ArticleRef, error) {
	if src.Script != nil {
		items, err := eng.RunIndex(src.Script.Source, map[string]any{
			"document": script.NewDocument(d.doc),
		})
		if err != nil {
			return nil, wrapScript("index script", err)
		}

		refs := make([]core.ArticleRef, 0, len(items))
		for _, item := range items {
			refs = append(refs, core.ArticleRef{
				URL:     urlutil.Resolve(d.finalURL, item.URL),
				Title:   item.Title,
				Content: item.Content,
			})
		}
		return refs, nil
	}

	var refs []core.ArticleRef
	d.doc.Find(src.Items).Each(func(_ int, item *goquery.Selection) {
		link := item.Filter(src.Links)
		if link.Length() == 0 {
			link = item.Find(src.Links)
		}
		href, ok := link.First().Attr("href")
		if !ok || !urlutil.IsSafeRef(href) {
			return
		}
		refs = append(refs, core.ArticleRef{URL: urlutil.Resolve(d.finalURL, href)})
	})
	return refs, nil
}

// Article extracts content and metadata from an article page. Fields the
// rule does not resolve fall back to page-metadata conventions.
func (d *Doc) Article(rule *recipe.ArticleRule, eng *script.Engine) (*ArticleData, error) {
	if rule.Script != nil {
		result, err := eng.RunArticle(rule.Script.Source, map[string]any{
			"document": script.NewDocument(d.doc),
		})
		if err != nil {
			return nil, wrapScript("article script", err)
		}
		data := &ArticleData{
			Content: result.Content,
			Title:   result.Title,
			Author:  result.Author,
			Date:    result.Date,
		}
		FillMetadata(data, d.doc)
		return data, nil
	}

	sel := d.doc.Find(rule.Content).First()
	if sel.Length() == 0 {
		return nil, &Error{Kind: KindSelectorNoMatch, Rule: rule.Content,
			Err: fmt.Errorf("content selector matched no elements")}
	}

	content, err := goquery.OuterHtml(sel)
	if err != nil {
		return nil, &Error{Kind: KindParse, Rule: rule.Content, Err: err}
	}

	data := &ArticleData{Content: content}
	if rule.Title != "" {
		data.Title = selectorText(d.doc, rule.Title)
	}
	if rule.Author != "" {
		data.Author = selectorText(d.doc, rule.Author)
	}
	if rule.Date != "" {
		data.Date = dateFromSelection(d.doc.Find(rule.Date).First())
	}

	FillMetadata(data, d.doc)
	return data, nil
}

// CoverURL resolves the cover image URL on a cover page via selector or
// script. Returns "" when nothing matches.
func (d *Doc) CoverURL(rule *recipe.CoverRule, eng *script.Engine) (string, error) {
	if rule.Script != nil {
		raw, err := eng.RunString(rule.Script.Source, map[string]any{
			"document": script.NewDocument(d.doc),
		})
		if err != nil {
			return "", wrapScript("cover script", err)
		}
		return urlutil.Resolve(d.finalURL, raw), nil
	}

	if rule.Selector == "" {
		return "", &Error{Kind: KindSelectorNoMatch, Rule: "cover",
			Err: fmt.Errorf("cover needs a 'selector' when its URL is not a direct image")}
	}

	src, ok := d.doc.Find(rule.Selector).First().Attr("src")
	if !ok || src == "" {
		return "", nil
	}
	return urlutil.Resolve(d.finalURL, src), nil
}

// selectorText returns the trimmed text of the first match, or "".
func selectorText(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

// dateFromSelection prefers visible text over a machine-readable datetime
// attribute, falling back to the attribute when the text is empty.
func dateFromSelection(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	if text := strings.TrimSpace(sel.Text()); text != "" {
		return text
	}
	if attr, ok := sel.Attr("datetime"); ok {
		return strings.TrimSpace(attr)
	}
	if attr, ok := sel.Attr("content"); ok {
		return strings.TrimSpace(attr)
	}
	return ""
}

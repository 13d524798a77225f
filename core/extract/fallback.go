package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FillMetadata populates any empty metadata field on data from page-level
// conventions. Explicit rule results always win; fallback only fills gaps.
func FillMetadata(data *ArticleData, doc *goquery.Document) {
	if data.Title == "" {
		data.Title = FallbackTitle(doc)
	}
	if data.Author == "" {
		data.Author = FallbackAuthor(doc)
	}
	if data.Date == "" {
		data.Date = FallbackDate(doc)
	}
}

// FallbackTitle tries og:title, twitter:title, the document title, then the
// first h1, in that order.
func FallbackTitle(doc *goquery.Document) string {
	if v := metaContent(doc, `meta[property="og:title"]`); v != "" {
		return v
	}
	if v := metaContent(doc, `meta[name="twitter:title"]`); v != "" {
		return v
	}
	if v := strings.TrimSpace(doc.Find("title").First().Text()); v != "" {
		return v
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// FallbackAuthor tries the author meta tag, the article:author properties,
// an element with an author class, then a rel=author link.
func FallbackAuthor(doc *goquery.Document) string {
	if v := metaContent(doc, `meta[name="author"]`); v != "" {
		return v
	}
	if v := metaContent(doc, `meta[property="article:author"]`); v != "" {
		return v
	}
	if v := metaContent(doc, `meta[property="og:article:author"]`); v != "" {
		return v
	}
	if v := strings.TrimSpace(doc.Find(".author").First().Text()); v != "" {
		return v
	}
	return strings.TrimSpace(doc.Find(`a[rel="author"]`).First().Text())
}

// FallbackDate tries the article:published_time properties, a time element
// (visible text before its datetime attribute), then date and pubdate metas.
func FallbackDate(doc *goquery.Document) string {
	if v := metaContent(doc, `meta[property="article:published_time"]`); v != "" {
		return v
	}
	if v := metaContent(doc, `meta[property="og:article:published_time"]`); v != "" {
		return v
	}
	if v := dateFromSelection(doc.Find("time").First()); v != "" {
		return v
	}
	if v := metaContent(doc, `meta[name="date"]`); v != "" {
		return v
	}
	return metaContent(doc, `meta[name="pubdate"]`)
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

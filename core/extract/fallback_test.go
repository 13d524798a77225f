package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("Parsing fixture failed: %v", err)
	}
	return doc
}

func TestFallbackTitle_Priority(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{
			"og wins over everything",
			`<head><meta property="og:title" content="OG"/><meta name="twitter:title" content="TW"/><title>T</title></head><body><h1>H</h1></body>`,
			"OG",
		},
		{
			"twitter next",
			`<head><meta name="twitter:title" content="TW"/><title>T</title></head><body><h1>H</h1></body>`,
			"TW",
		},
		{
			"document title next",
			`<head><title>T</title></head><body><h1>H</h1></body>`,
			"T",
		},
		{
			"h1 last",
			`<body><h1>H</h1></body>`,
			"H",
		},
		{
			"nothing found",
			`<body><p>text</p></body>`,
			"",
		},
	}

	for _, c := range cases {
		if got := FallbackTitle(parseDoc(t, c.html)); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestFallbackAuthor_Priority(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{
			"meta author first",
			`<head><meta name="author" content="Meta"/></head><body><span class="author">Cls</span></body>`,
			"Meta",
		},
		{
			"article:author next",
			`<head><meta property="article:author" content="Prop"/></head><body><span class="author">Cls</span></body>`,
			"Prop",
		},
		{
			"author class next",
			`<body><span class="author">Cls</span><a rel="author">Rel</a></body>`,
			"Cls",
		},
		{
			"rel author last",
			`<body><a rel="author">Rel</a></body>`,
			"Rel",
		},
	}

	for _, c := range cases {
		if got := FallbackAuthor(parseDoc(t, c.html)); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestFallbackDate_TimeElementPrefersVisibleText(t *testing.T) {
	doc := parseDoc(t, `<body><time datetime="2026-01-02">January 2, 2026</time></body>`)
	if got := FallbackDate(doc); got != "January 2, 2026" {
		t.Errorf("Expected visible text, got %q", got)
	}

	doc = parseDoc(t, `<body><time datetime="2026-01-02"></time></body>`)
	if got := FallbackDate(doc); got != "2026-01-02" {
		t.Errorf("Expected datetime attribute, got %q", got)
	}
}

func TestFallbackDate_MetaBeatsTimeElement(t *testing.T) {
	doc := parseDoc(t, `
		<head><meta property="article:published_time" content="2026-02-01T08:00:00Z"/></head>
		<body><time datetime="2026-01-02">old</time></body>`)
	if got := FallbackDate(doc); got != "2026-02-01T08:00:00Z" {
		t.Errorf("Expected published_time, got %q", got)
	}
}

func TestFillMetadata_KeepsExplicitValues(t *testing.T) {
	doc := parseDoc(t, `<head><meta property="og:title" content="Fallback"/></head>`)
	data := &ArticleData{Title: "Explicit"}
	FillMetadata(data, doc)
	if data.Title != "Explicit" {
		t.Errorf("Explicit value must survive, got %q", data.Title)
	}
}

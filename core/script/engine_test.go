package script

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func TestRunIndex_ListOfObjects(t *testing.T) {
	eng := New(0)

	items, err := eng.RunIndex(`
		return [
			{url: "https://example.com/a"},
			{url: "https://example.com/b", content: "<p>inline</p>"},
		]
	`, nil)
	if err != nil {
		t.Fatalf("RunIndex failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].URL != "https://example.com/a" || items[0].Content != "" {
		t.Errorf("Unexpected first item: %+v", items[0])
	}
	if items[1].Content != "<p>inline</p>" {
		t.Errorf("Unexpected second item: %+v", items[1])
	}
}

func TestRunIndex_RejectsWrongShape(t *testing.T) {
	eng := New(0)

	cases := []string{
		`return "not a list"`,
		`return [42]`,
		`return [{content: "missing url"}]`,
		`return null`,
	}
	for _, source := range cases {
		_, err := eng.RunIndex(source, nil)
		var se *Error
		if !errors.As(err, &se) || se.Kind != KindBadReturn {
			t.Errorf("Source %q: expected bad-return error, got %v", source, err)
		}
	}
}

func TestRunArticle_StringForm(t *testing.T) {
	eng := New(0)

	res, err := eng.RunArticle(`return "<p>content</p>"`, nil)
	if err != nil {
		t.Fatalf("RunArticle failed: %v", err)
	}
	if res.Content != "<p>content</p>" {
		t.Errorf("Unexpected content: %s", res.Content)
	}
}

func TestRunArticle_ObjectForm(t *testing.T) {
	eng := New(0)

	res, err := eng.RunArticle(`
		return {content: "<p>body</p>", title: "A Title", author: "A. Writer"}
	`, nil)
	if err != nil {
		t.Fatalf("RunArticle failed: %v", err)
	}
	if res.Title != "A Title" || res.Author != "A. Writer" || res.Date != "" {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestRunArticle_ObjectWithoutContent(t *testing.T) {
	eng := New(0)

	_, err := eng.RunArticle(`return {title: "no content"}`, nil)
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindBadReturn {
		t.Errorf("Expected bad-return error, got %v", err)
	}
}

func TestRun_FaultIsClassified(t *testing.T) {
	eng := New(0)

	_, err := eng.RunString(`throw new Error("boom")`, nil)
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindFault {
		t.Fatalf("Expected fault error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Fault should carry the script message, got %v", err)
	}
}

func TestRun_TimeoutInterruptsScript(t *testing.T) {
	eng := New(50 * time.Millisecond)

	start := time.Now()
	_, err := eng.RunString(`while (true) {}`, nil)
	elapsed := time.Since(start)

	var se *Error
	if !errors.As(err, &se) || se.Kind != KindTimeout {
		t.Fatalf("Expected timeout error, got %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Interrupt took too long: %s", elapsed)
	}
}

func TestRun_DocumentContext(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<html><body>
			<div class="story"><a href="/a">First</a></div>
			<div class="story"><a href="/b">Second</a></div>
		</body></html>
	`))
	if err != nil {
		t.Fatalf("Parsing fixture failed: %v", err)
	}

	eng := New(0)
	items, err := eng.RunIndex(`
		var out = [];
		var links = document.find("div.story a");
		for (var i = 0; i < links.length; i++) {
			out.push({url: links[i].attr("href"), content: links[i].text()});
		}
		return out;
	`, map[string]any{"document": NewDocument(doc)})
	if err != nil {
		t.Fatalf("RunIndex failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].URL != "/a" || items[0].Content != "First" {
		t.Errorf("Unexpected first item: %+v", items[0])
	}
}

func TestRunString_VariableInjection(t *testing.T) {
	eng := New(0)

	out, err := eng.RunString(`return url.replace("article", "print")`, map[string]any{
		"url": "https://example.com/article/42",
	})
	if err != nil {
		t.Fatalf("RunString failed: %v", err)
	}
	if out != "https://example.com/print/42" {
		t.Errorf("Unexpected output: %s", out)
	}
}

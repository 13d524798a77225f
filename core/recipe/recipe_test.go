package recipe

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_MinimalHTMLRecipe(t *testing.T) {
	data := []byte(`
title = "Example News"
author = "Example Staff"

[[index]]
url = "https://example.com/news"
kind = "html"
items = "div.story"
links = "a.headline"

[article]
content = "div.article-body"
`)

	rec, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if rec.Title != "Example News" {
		t.Errorf("Expected title Example News, got %s", rec.Title)
	}
	if rec.Language != "en" {
		t.Errorf("Expected default language en, got %s", rec.Language)
	}
	if len(rec.Indices) != 1 {
		t.Fatalf("Expected 1 index, got %d", len(rec.Indices))
	}
	if rec.Indices[0].Items != "div.story" {
		t.Errorf("Unexpected items selector: %s", rec.Indices[0].Items)
	}
	if rec.Article == nil || rec.Article.Content != "div.article-body" {
		t.Errorf("Article rule not parsed")
	}
}

func TestParse_CollectsAllViolations(t *testing.T) {
	data := []byte(`
title = ""

[[index]]
url = ""
kind = "html"
limit = -3
`)

	_, err := Parse(data)
	if err == nil {
		t.Fatal("Expected validation error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected *ValidationError, got %T", err)
	}

	wants := []string{"'title'", "'url'", "'items'", "'limit'"}
	for _, want := range wants {
		found := false
		for _, p := range verr.Problems {
			if strings.Contains(p, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected a problem mentioning %s, got %v", want, verr.Problems)
		}
	}
	if len(verr.Problems) < 4 {
		t.Errorf("Expected at least 4 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
}

func TestParse_MultipleIndicesRequireDistinctNames(t *testing.T) {
	data := []byte(`
title = "Two Sections"

[[index]]
name = "World"
url = "https://example.com/world"
kind = "feed"

[[index]]
name = "World"
url = "https://example.com/local"
kind = "feed"

[article]
content = "div.body"
`)

	_, err := Parse(data)
	if err == nil {
		t.Fatal("Expected validation error for duplicate names")
	}
	if !strings.Contains(err.Error(), "duplicate section name") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestParse_StructuredIndexNeedsPath(t *testing.T) {
	data := []byte(`
title = "API Source"

[[index]]
url = "https://example.com/api/articles"
kind = "structured"

[article]
kind = "structured"
[article.paths]
content = "body_html"
`)

	_, err := Parse(data)
	if err == nil {
		t.Fatal("Expected validation error for missing path")
	}
	if !strings.Contains(err.Error(), "'path'") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestParse_ScriptSupersedesSelectors(t *testing.T) {
	data := []byte(`
title = "Scripted"

[[index]]
url = "https://example.com/archive"
kind = "html"
[index.script]
source = "return [{url: 'https://example.com/a'}]"

[article]
[article.script]
source = "return document.find('main')[0].html()"
`)

	rec, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if rec.Indices[0].Script == nil {
		t.Fatal("Index script not parsed")
	}
	if rec.Article.Script == nil {
		t.Fatal("Article script not parsed")
	}
}

func TestArticleRuleFor_IndexOverrideWins(t *testing.T) {
	override := &ArticleRule{Content: "div.override"}
	rec := &Recipe{
		Article: &ArticleRule{Content: "div.default"},
		Indices: []IndexSource{
			{Name: "a"},
			{Name: "b", Article: override},
		},
	}

	if got := rec.ArticleRuleFor(&rec.Indices[0]); got.Content != "div.default" {
		t.Errorf("Expected default rule, got %s", got.Content)
	}
	if got := rec.ArticleRuleFor(&rec.Indices[1]); got != override {
		t.Error("Expected per-index override rule")
	}
}

func TestIncludeImages_DefaultsTrue(t *testing.T) {
	var rule *ArticleRule
	if !rule.IncludeImages() {
		t.Error("nil rule should include images")
	}

	off := false
	rule = &ArticleRule{Images: &off}
	if rule.IncludeImages() {
		t.Error("images = false should disable embedding")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.gensi"); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

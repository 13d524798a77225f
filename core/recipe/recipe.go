// Package recipe parses and validates .gensi recipe files.
// A recipe is the complete declarative description of one book: global
// metadata, a cover rule, index sources, and article extraction rules.
// Validation collects every violation before reporting so a recipe can be
// fixed in one pass.
package recipe

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Source kinds accepted by the "kind" field of an index.
const (
	KindHTML       = "html"
	KindFeed       = "feed"
	KindStructured = "structured"
)

// Recipe is a validated .gensi document. It is immutable once parsed;
// the pipeline never writes to it.
type Recipe struct {
	Title    string        `toml:"title"`
	Author   string        `toml:"author"`
	Language string        `toml:"language"`
	Cover    *CoverRule    `toml:"cover"`
	Indices  []IndexSource `toml:"index"`
	Article  *ArticleRule  `toml:"article"`
}

// IndexSource is one fetchable origin yielding article references.
type IndexSource struct {
	Name          string        `toml:"name"`
	URL           string        `toml:"url"`
	Kind          string        `toml:"kind"`
	Items         string        `toml:"items"`
	Links         string        `toml:"links"`
	Limit         int           `toml:"limit"`
	InlineContent bool          `toml:"inline_content"`
	Path          string        `toml:"path"`
	URLPath       string        `toml:"url_path"`
	ContentPath   string        `toml:"content_path"`
	Script        *ScriptRule   `toml:"script"`
	URLTransform  *URLTransform `toml:"url_transform"`
	Article       *ArticleRule  `toml:"article"`
}

// ArticleRule describes how to extract one article's content and metadata.
type ArticleRule struct {
	Content string            `toml:"content"`
	Title   string            `toml:"title"`
	Author  string            `toml:"author"`
	Date    string            `toml:"date"`
	Remove  []string          `toml:"remove"`
	Images  *bool             `toml:"images"`
	Replace []ReplaceRule     `toml:"replace"`
	Kind    string            `toml:"kind"`
	Paths   map[string]string `toml:"paths"`
	Script  *ScriptRule       `toml:"script"`
}

// IncludeImages reports whether article images should be downloaded and
// embedded. Defaults to true when the flag is absent.
func (r *ArticleRule) IncludeImages() bool {
	return r == nil || r.Images == nil || *r.Images
}

// Structured reports whether the article response is a structured payload
// rather than markup.
func (r *ArticleRule) Structured() bool {
	return r != nil && r.Kind == KindStructured
}

// ReplaceRule is an ordered search/replace transform applied to extracted
// content before sanitization.
type ReplaceRule struct {
	Pattern     string `toml:"pattern"`
	Replacement string `toml:"replacement"`
	Regex       bool   `toml:"regex"`
}

// CoverRule locates the cover image: a direct image URL, or a page plus a
// selector or script resolving the image on it.
type CoverRule struct {
	URL      string      `toml:"url"`
	Selector string      `toml:"selector"`
	Script   *ScriptRule `toml:"script"`
}

// ScriptRule is a sandboxed extension script. When present it fully
// supersedes its sibling simple-mode fields.
type ScriptRule struct {
	Source string `toml:"source"`
}

// URLTransform rewrites extracted article URLs before fetching, either by
// regex capture substitution or by script.
type URLTransform struct {
	Pattern  string      `toml:"pattern"`
	Template string      `toml:"template"`
	Script   *ScriptRule `toml:"script"`
}

// ArticleRuleFor returns the article rule to use for articles discovered on
// the given index: the per-index override when present, otherwise the
// recipe-level default. May return nil.
func (r *Recipe) ArticleRuleFor(src *IndexSource) *ArticleRule {
	if src.Article != nil {
		return src.Article
	}
	return r.Article
}

// ValidationError aggregates every violation found in a recipe.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid recipe: %s", strings.Join(e.Problems, "; "))
}

// Load reads and parses a .gensi file from disk.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates recipe TOML. It returns either a fully valid
// Recipe or a *ValidationError listing every problem; no network activity
// happens before validation passes.
func Parse(data []byte) (*Recipe, error) {
	var rec Recipe
	if err := toml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing recipe TOML: %w", err)
	}

	if rec.Language == "" {
		rec.Language = "en"
	}

	if err := rec.validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Recipe) validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(r.Title) == "" {
		add("'title' is required and must be non-empty")
	}

	if len(r.Indices) == 0 {
		add("at least one [[index]] section is required")
	}

	// With multiple sources every source becomes a named TOC section, so
	// names are required and must be distinct.
	requireNames := len(r.Indices) > 1
	seenNames := make(map[string]bool)

	for i := range r.Indices {
		idx := &r.Indices[i]
		label := fmt.Sprintf("index %d", i+1)
		if idx.Name != "" {
			label = fmt.Sprintf("index %q", idx.Name)
		}

		if requireNames {
			name := strings.TrimSpace(idx.Name)
			if name == "" {
				add("%s: 'name' is required when more than one index is declared", label)
			} else if seenNames[name] {
				add("%s: duplicate section name", label)
			} else {
				seenNames[name] = true
			}
		}

		if strings.TrimSpace(idx.URL) == "" {
			add("%s: 'url' is required", label)
		}

		switch idx.Kind {
		case KindHTML:
			if idx.Script == nil && (idx.Items == "" || idx.Links == "") {
				add("%s: 'items' and 'links' are required for html indices without a script", label)
			}
		case KindFeed:
			// Feed indices only take limit and inline_content.
		case KindStructured:
			if idx.Script == nil && idx.Path == "" {
				add("%s: 'path' is required for structured indices without a script", label)
			}
		case "":
			add("%s: 'kind' is required", label)
		default:
			add("%s: 'kind' must be one of html, feed, structured", label)
		}

		if idx.Limit < 0 {
			add("%s: 'limit' must be a positive integer", label)
		}

		if idx.Script != nil && strings.TrimSpace(idx.Script.Source) == "" {
			add("%s: script 'source' must be non-empty", label)
		}

		if tr := idx.URLTransform; tr != nil && tr.Script == nil {
			if tr.Pattern == "" || tr.Template == "" {
				add("%s: url_transform needs 'pattern' and 'template', or a script", label)
			}
		}

		if idx.Article != nil {
			problems = append(problems, validateArticleRule(idx.Article, label)...)
		}
	}

	if r.Article != nil {
		problems = append(problems, validateArticleRule(r.Article, "article")...)
	}

	if r.Cover != nil && strings.TrimSpace(r.Cover.URL) == "" {
		add("cover: 'url' is required")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateArticleRule(rule *ArticleRule, label string) []string {
	var problems []string

	hasContent := rule.Content != "" ||
		rule.Script != nil ||
		(rule.Structured() && rule.Paths["content"] != "")
	if !hasContent {
		problems = append(problems,
			fmt.Sprintf("%s: 'content' selector is required unless a script or structured content path is supplied", label))
	}

	if rule.Script != nil && strings.TrimSpace(rule.Script.Source) == "" {
		problems = append(problems, fmt.Sprintf("%s: script 'source' must be non-empty", label))
	}

	for j, sel := range rule.Remove {
		if strings.TrimSpace(sel) == "" {
			problems = append(problems, fmt.Sprintf("%s: remove[%d] must be a non-empty selector", label, j))
		}
	}

	for j, rep := range rule.Replace {
		if rep.Pattern == "" {
			problems = append(problems, fmt.Sprintf("%s: replace[%d] needs a 'pattern'", label, j))
		}
	}

	return problems
}

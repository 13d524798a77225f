// Package normalize rewrites extracted article HTML into the strict,
// self-contained XHTML an ebook package requires. The stages run in a fixed
// order: removal selectors, text replacements, image handling, sanitization,
// typography, and an empty-content fallback, finishing with strict XHTML
// serialization.
package normalize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/claudehenchoz/gensi/core"
	"github.com/claudehenchoz/gensi/core/recipe"
	"github.com/claudehenchoz/gensi/internal/logger"
)

// Placeholder replaces article bodies that end up empty after cleanup, so a
// failed extraction still yields a navigable chapter.
const Placeholder = "<p>No content could be extracted for this article.</p>"

// Normalizer cleans article HTML and gathers the image assets it embeds.
type Normalizer struct {
	fetcher core.Fetcher
	policy  *bluemonday.Policy
	log     *logger.Logger
}

// New creates a Normalizer that fetches embedded images through fetcher.
func New(fetcher core.Fetcher, log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.New("info")
	}
	return &Normalizer{
		fetcher: fetcher,
		policy:  readerPolicy(),
		log:     log,
	}
}

// Normalize turns raw extracted HTML into strict XHTML plus the assets the
// output references. baseURL anchors relative image URLs.
func (n *Normalizer) Normalize(ctx context.Context, rawHTML string, rule *recipe.ArticleRule, baseURL string) (string, []core.Asset, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", nil, fmt.Errorf("parsing article content: %w", err)
	}

	if rule != nil {
		for _, selector := range rule.Remove {
			doc.Find(selector).Remove()
		}
	}

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", nil, fmt.Errorf("serializing article content: %w", err)
	}
	body = n.applyReplacements(body, rule)

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("parsing article content: %w", err)
	}
	embed := rule == nil || rule.IncludeImages()
	assets := n.processImages(ctx, doc, baseURL, embed)

	body, err = doc.Find("body").Html()
	if err != nil {
		return "", nil, fmt.Errorf("serializing article content: %w", err)
	}

	clean := n.policy.Sanitize(body)
	if isEmptyHTML(clean) {
		// The content's top-level element may itself be disallowed. Wrapping
		// in a div keeps the allowed children.
		clean = n.policy.Sanitize("<div>" + body + "</div>")
		if isEmptyHTML(clean) {
			n.log.Warn("article empty after cleanup", "url", baseURL)
			return Placeholder, nil, nil
		}
	}

	nodes, err := parseFragment(clean)
	if err != nil {
		return "", nil, fmt.Errorf("parsing sanitized content: %w", err)
	}
	for _, node := range nodes {
		smartenTree(node)
	}
	return renderXHTML(nodes), assets, nil
}

// applyReplacements runs the rule's text replacements over the serialized
// content. A replacement with an invalid regex is skipped with a warning
// rather than failing the article.
func (n *Normalizer) applyReplacements(body string, rule *recipe.ArticleRule) string {
	if rule == nil {
		return body
	}
	for _, r := range rule.Replace {
		if r.Regex {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				n.log.Warn("skipping replace rule", "pattern", r.Pattern, "error", err)
				continue
			}
			body = re.ReplaceAllString(body, r.Replacement)
			continue
		}
		body = strings.ReplaceAll(body, r.Pattern, r.Replacement)
	}
	return body
}

// isEmptyHTML reports whether markup carries no visible text and no images.
func isEmptyHTML(markup string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return true
	}
	if strings.TrimSpace(doc.Text()) != "" {
		return false
	}
	return doc.Find("img").Length() == 0
}

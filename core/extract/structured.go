package extract

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/claudehenchoz/gensi/core"
	"github.com/claudehenchoz/gensi/core/recipe"
	"github.com/claudehenchoz/gensi/core/script"
	"github.com/claudehenchoz/gensi/core/urlutil"
)

// StructuredRefs extracts article references from a structured (JSON) index
// payload. Items come from the dotted path in src.Path; each item's URL is
// read at src.URLPath (default "url") and optional inline content at
// src.ContentPath.
func StructuredRefs(body []byte, finalURL string, src *recipe.IndexSource, eng *script.Engine) ([]core.ArticleRef, error) {
	if !gjson.ValidBytes(body) {
		return nil, &Error{Kind: KindParse, Rule: src.URL,
			Err: fmt.Errorf("index payload is not valid JSON")}
	}

	if src.Script != nil {
		return structuredScriptRefs(body, finalURL, src, eng)
	}

	items := gjson.GetBytes(body, src.Path)
	if !items.Exists() {
		return nil, &Error{Kind: KindStructuredPath, Rule: src.Path,
			Err: fmt.Errorf("path matched nothing in the payload")}
	}
	if !items.IsArray() {
		return nil, &Error{Kind: KindStructuredPath, Rule: src.Path,
			Err: fmt.Errorf("path must address a list, got %s", items.Type)}
	}

	urlPath := src.URLPath
	if urlPath == "" {
		urlPath = "url"
	}

	var refs []core.ArticleRef
	var pathErr error
	items.ForEach(func(_, item gjson.Result) bool {
		u := item.Get(urlPath)
		if !u.Exists() || u.String() == "" {
			pathErr = &Error{Kind: KindStructuredPath, Rule: urlPath,
				Err: fmt.Errorf("item is missing a URL at %q", urlPath)}
			return false
		}
		ref := core.ArticleRef{URL: urlutil.Resolve(finalURL, u.String())}
		if src.ContentPath != "" {
			ref.Content = item.Get(src.ContentPath).String()
		}
		refs = append(refs, ref)
		return true
	})
	if pathErr != nil {
		return nil, pathErr
	}
	return refs, nil
}

// structuredScriptRefs hands the decoded payload to an index script.
func structuredScriptRefs(body []byte, finalURL string, src *recipe.IndexSource, eng *script.Engine) ([]core.ArticleRef, error) {
	out, err := eng.RunIndex(src.Script.Source, map[string]any{
		"data": gjson.ParseBytes(body).Value(),
	})
	if err != nil {
		return nil, wrapScript("structured index script", err)
	}

	refs := make([]core.ArticleRef, 0, len(out))
	for _, item := range out {
		refs = append(refs, core.ArticleRef{
			URL:     urlutil.Resolve(finalURL, item.URL),
			Content: item.Content,
		})
	}
	return refs, nil
}

// StructuredArticle extracts an article from a structured payload using the
// dotted paths in rule.Paths. Missing metadata fields fall back to selector
// rules and page conventions applied to the extracted HTML fragment.
func StructuredArticle(body []byte, rule *recipe.ArticleRule, eng *script.Engine) (*ArticleData, error) {
	if !gjson.ValidBytes(body) {
		return nil, &Error{Kind: KindParse, Rule: "article",
			Err: fmt.Errorf("article payload is not valid JSON")}
	}

	if rule.Script != nil {
		result, err := eng.RunArticle(rule.Script.Source, map[string]any{
			"data": gjson.ParseBytes(body).Value(),
		})
		if err != nil {
			return nil, wrapScript("structured article script", err)
		}
		return &ArticleData{
			Content: result.Content,
			Title:   result.Title,
			Author:  result.Author,
			Date:    result.Date,
		}, nil
	}

	contentPath, ok := rule.Paths["content"]
	if !ok || contentPath == "" {
		return nil, &Error{Kind: KindStructuredPath, Rule: "content",
			Err: fmt.Errorf("structured article rule needs a content path")}
	}

	content := gjson.GetBytes(body, contentPath)
	if !content.Exists() {
		return nil, &Error{Kind: KindStructuredPath, Rule: contentPath,
			Err: fmt.Errorf("path matched nothing in the payload")}
	}

	data := &ArticleData{
		Content: content.String(),
		Title:   gjson.GetBytes(body, rule.Paths["title"]).String(),
		Author:  gjson.GetBytes(body, rule.Paths["author"]).String(),
		Date:    gjson.GetBytes(body, rule.Paths["date"]).String(),
	}

	// Payload fields the paths did not cover may still be present inside the
	// embedded HTML fragment.
	if data.Title == "" || data.Author == "" || data.Date == "" {
		if doc, err := ParseHTML([]byte(data.Content), ""); err == nil {
			fillFromFragment(data, doc, rule)
		}
	}
	return data, nil
}

// fillFromFragment applies the rule's metadata selectors and then the
// page-convention fallback to an embedded HTML fragment.
func fillFromFragment(data *ArticleData, doc *Doc, rule *recipe.ArticleRule) {
	if data.Title == "" && rule.Title != "" {
		data.Title = selectorText(doc.doc, rule.Title)
	}
	if data.Author == "" && rule.Author != "" {
		data.Author = selectorText(doc.doc, rule.Author)
	}
	if data.Date == "" && rule.Date != "" {
		data.Date = dateFromSelection(doc.doc.Find(rule.Date).First())
	}
	FillMetadata(data, doc.doc)
}

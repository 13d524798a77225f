package extract

import (
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/claudehenchoz/gensi/core"
	"github.com/claudehenchoz/gensi/core/recipe"
	"github.com/claudehenchoz/gensi/core/script"
	"github.com/claudehenchoz/gensi/core/urlutil"
)

// FeedRefs extracts article references from an RSS or Atom feed in item
// order. With inline_content set, each reference carries the feed item's
// embedded HTML and no article page fetch happens downstream.
func FeedRefs(body []byte, finalURL string, src *recipe.IndexSource, eng *script.Engine) ([]core.ArticleRef, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &Error{Kind: KindParse, Rule: src.URL, Err: err}
	}

	if src.Script != nil {
		return feedScriptRefs(feed, finalURL, src, eng)
	}

	refs := make([]core.ArticleRef, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		ref := core.ArticleRef{
			URL:   urlutil.Resolve(finalURL, item.Link),
			Title: item.Title,
		}
		if src.InlineContent {
			ref.Content = itemContent(item)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// feedScriptRefs hands the parsed feed to an index script as a plain data
// structure so the script can filter and reorder items.
func feedScriptRefs(feed *gofeed.Feed, finalURL string, src *recipe.IndexSource, eng *script.Engine) ([]core.ArticleRef, error) {
	items := make([]map[string]any, 0, len(feed.Items))
	for _, item := range feed.Items {
		entry := map[string]any{
			"url":       urlutil.Resolve(finalURL, item.Link),
			"title":     item.Title,
			"content":   itemContent(item),
			"published": item.Published,
		}
		if item.Author != nil {
			entry["author"] = item.Author.Name
		} else {
			entry["author"] = ""
		}
		items = append(items, entry)
	}

	out, err := eng.RunIndex(src.Script.Source, map[string]any{
		"feed": map[string]any{
			"title": feed.Title,
			"items": items,
		},
	})
	if err != nil {
		return nil, wrapScript("feed index script", err)
	}

	refs := make([]core.ArticleRef, 0, len(out))
	for _, item := range out {
		refs = append(refs, core.ArticleRef{
			URL:     urlutil.Resolve(finalURL, item.URL),
			Title:   item.Title,
			Content: item.Content,
		})
	}
	return refs, nil
}

// itemContent prefers the full content element over the summary.
func itemContent(item *gofeed.Item) string {
	if strings.TrimSpace(item.Content) != "" {
		return item.Content
	}
	return item.Description
}

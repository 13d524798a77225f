// Package core defines the shared pipeline types for Gensi.
// Each stage of the pipeline works against these types so stages stay
// independently testable.
package core

import "context"

// FetchContext tags a fetch with its role in the pipeline. Index and feed
// fetches always bypass the cache; everything else is cacheable.
type FetchContext string

const (
	FetchIndex   FetchContext = "index"
	FetchFeed    FetchContext = "feed"
	FetchArticle FetchContext = "article"
	FetchImage   FetchContext = "image"
	FetchCover   FetchContext = "cover"
)

// Cacheable reports whether responses fetched under this context may be
// served from and written to the cache.
func (c FetchContext) Cacheable() bool {
	return c != FetchIndex && c != FetchFeed
}

// Document holds a fetched response body and the final URL after redirects.
// Relative references inside the body must be resolved against FinalURL,
// never the request URL.
type Document struct {
	Body     []byte
	FinalURL string
}

// Fetcher retrieves content from a URL. All network traffic in the pipeline
// goes through a single Fetcher so admission control and caching have one
// choke point.
type Fetcher interface {
	Fetch(ctx context.Context, url string, fc FetchContext) (*Document, error)
	FetchBinary(ctx context.Context, url string, fc FetchContext) (*Document, error)
}

// ArticleRef is a resolved article URL discovered on an index, optionally
// carrying a title and inline content supplied by the source (feed items),
// which skips the article fetch entirely.
type ArticleRef struct {
	URL     string
	Title   string
	Content string
}

// Asset is an embedded file (an image) referenced by an article body.
// Filename is the name inside the package's images/ directory.
type Asset struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Article is a fully normalized article ready for assembly. Body is strict
// XHTML restricted to the EPUB allow-list and is never empty.
type Article struct {
	URL    string
	Title  string
	Author string
	Date   string
	Body   string
	Assets []Asset
}

// Section is a named group of articles corresponding to one index source.
// Name is empty only for single-source recipes, which produce a flat book.
type Section struct {
	Name     string
	Articles []Article
}

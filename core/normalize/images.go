package normalize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/claudehenchoz/gensi/core"
	"github.com/claudehenchoz/gensi/core/urlutil"
)

// lazyAttrs are the common deferred-loading attributes promoted to src
// before an image is considered for embedding.
var lazyAttrs = []string{"data-src", "data-lazy-src", "data-original", "data-lazy"}

// processImages walks every img element in the document. With embedding
// disabled all images are removed. Otherwise each image is fetched and its
// src rewritten to the package-internal path; images that cannot be fetched
// are dropped rather than left as broken references.
func (n *Normalizer) processImages(ctx context.Context, doc *goquery.Document, baseURL string, embed bool) []core.Asset {
	var assets []core.Asset
	seq := 0

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if !embed {
			img.Remove()
			return
		}

		src := imageSource(img)
		if src == "" {
			img.Remove()
			return
		}
		resolved := urlutil.Resolve(baseURL, src)
		if !strings.HasPrefix(resolved, "http://") && !strings.HasPrefix(resolved, "https://") {
			img.Remove()
			return
		}

		fetched, err := n.fetcher.FetchBinary(ctx, resolved, core.FetchImage)
		if err != nil {
			n.log.Warn("dropping image", "url", resolved, "error", err)
			img.Remove()
			return
		}

		asset := buildAsset(resolved, fetched.Body, seq)
		seq++
		assets = append(assets, asset)

		img.SetAttr("src", "../images/"+asset.Filename)
		img.RemoveAttr("srcset")
		for _, attr := range lazyAttrs {
			img.RemoveAttr(attr)
		}
	})

	return assets
}

// imageSource picks the effective source URL, preferring a real src but
// falling back to lazy-loading attributes when src is missing or a
// placeholder data URI.
func imageSource(img *goquery.Selection) string {
	src, _ := img.Attr("src")
	src = strings.TrimSpace(src)
	if src != "" && !strings.HasPrefix(src, "data:") {
		return src
	}
	for _, attr := range lazyAttrs {
		if v, ok := img.Attr(attr); ok {
			v = strings.TrimSpace(firstSrcsetEntry(v))
			if v != "" && !strings.HasPrefix(v, "data:") {
				return v
			}
		}
	}
	return ""
}

// firstSrcsetEntry strips a srcset-style value down to its first URL.
func firstSrcsetEntry(v string) string {
	if entry, _, found := strings.Cut(v, ","); found {
		v = entry
	}
	url, _, _ := strings.Cut(strings.TrimSpace(v), " ")
	return url
}

// buildAsset names the image deterministically from its position and a URL
// hash so re-runs over the same content produce identical packages.
func buildAsset(rawURL string, data []byte, seq int) core.Asset {
	sum := sha256.Sum256([]byte(rawURL))
	return core.Asset{
		Filename: fmt.Sprintf("image_%03d_%s%s", seq,
			hex.EncodeToString(sum[:4]), urlutil.ImageExt(rawURL, data)),
		MediaType: urlutil.ImageMediaType(rawURL, data),
		Data:      data,
	}
}

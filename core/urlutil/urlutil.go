// Package urlutil provides URL resolution and normalization helpers shared
// by the extraction and caching layers.
package urlutil

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// imageExtensions are file extensions treated as direct image URLs.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".svg": true,
}

// Resolve resolves a potentially relative URL against a base URL.
// Unparseable input is returned unchanged.
func Resolve(base string, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// IsImageURL checks if a URL points to an image file based on its extension.
func IsImageURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	return imageExtensions[ext]
}

// Normalize strips fragments and trailing slashes so equivalent URLs map to
// the same cache key.
func Normalize(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Fragment = ""

	// Keep root "/".
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String()
}

var mediaTypesByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// ImageMediaType derives an image media type from the URL's extension,
// sniffing the content when the extension is unknown.
func ImageMediaType(rawURL string, data []byte) string {
	if mt, ok := mediaTypesByExt[urlExt(rawURL)]; ok {
		return mt
	}
	return http.DetectContentType(data)
}

// ImageExt derives a file extension for an image, sniffing the content when
// the URL does not carry a known one.
func ImageExt(rawURL string, data []byte) string {
	if ext := urlExt(rawURL); mediaTypesByExt[ext] != "" {
		return ext
	}
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/svg+xml":
		return ".svg"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".img"
	}
}

func urlExt(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(parsed.Path))
}

// IsSafeRef rejects href values that cannot become article or image URLs
// (mailto, javascript, tel, bare fragments).
func IsSafeRef(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	for _, scheme := range []string{"mailto:", "javascript:", "tel:", "data:"} {
		if strings.HasPrefix(href, scheme) {
			return false
		}
	}
	return true
}

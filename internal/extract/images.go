// Package extract pulls candidate image URLs out of scraped page content.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxImages caps the number of URLs returned per page.
const DefaultMaxImages = 50

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

// Bare URLs embedded in text content, e.g. social feeds rendered to plain text.
var textURLPattern = regexp.MustCompile(`https?://[^\s"'<>\\)]+`)

// Extractor resolves, filters and deduplicates image URLs found in a page.
type Extractor struct {
	maxImages int
}

// New builds an Extractor. maxImages <= 0 selects DefaultMaxImages.
func New(maxImages int) *Extractor {
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	return &Extractor{maxImages: maxImages}
}

// Images returns absolute image URLs found in the HTML and text content, in
// document order, deduplicated case-insensitively and capped. Repeated calls
// with the same input return the same list.
func (e *Extractor) Images(content, html, baseURL string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(raw string) {
		if len(out) >= e.maxImages {
			return
		}
		resolved := Resolve(raw, baseURL)
		if resolved == "" || !HasImageExtension(resolved) {
			return
		}
		key := strings.ToLower(resolved)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, resolved)
	}

	if html != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			doc.Find("img").Each(func(_ int, s *goquery.Selection) {
				if src, ok := s.Attr("src"); ok {
					add(strings.TrimSpace(src))
				}
				// Lazy-loaded images often keep the real URL here.
				if src, ok := s.Attr("data-src"); ok {
					add(strings.TrimSpace(src))
				}
			})
		}
	}

	for _, match := range textURLPattern.FindAllString(content, -1) {
		add(strings.TrimRight(match, ".,;"))
	}

	return out
}

// Resolve turns a raw src into an absolute URL against the page's base URL.
// Protocol-relative URLs are promoted to https. Bare relative paths are
// returned as-is.
func Resolve(raw, baseURL string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		base, err := url.Parse(baseURL)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return raw
		}
		return base.Scheme + "://" + base.Host + raw
	default:
		return raw
	}
}

// HasImageExtension reports whether the URL path ends in a known image
// extension, ignoring any query string.
func HasImageExtension(rawURL string) bool {
	trimmed := rawURL
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	lower := strings.ToLower(trimmed)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Package retrieval unifies web search and page scraping behind one
// gateway with provider fallback and best-effort caching.
package retrieval

import (
	"context"
	"time"
)

// SearchResult is one hit returned by a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResponse is the gateway's search contract. Exhaustion of the
// provider chain yields an empty Results slice with Error set; callers
// treat "no results" as a normal outcome.
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	Count    int            `json:"count"`
	Provider string         `json:"provider"`
	Error    string         `json:"error,omitempty"`
}

// ScrapeResponse is the gateway's scrape contract. An unconfigured
// backend yields empty content with Warning set.
type ScrapeResponse struct {
	Content   string `json:"content"`
	HTML      string `json:"html"`
	Title     string `json:"title,omitempty"`
	Extracted string `json:"extracted,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// Provider is one strategy in the ordered search fallback chain.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Page is the raw result of fetching one URL.
type Page struct {
	URL        string
	StatusCode int
	HTML       []byte
	Duration   time.Duration
}

// Scraper fetches a page and returns its rendered HTML.
type Scraper interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Cache stores search responses keyed by provider, query and limit.
// Implementations are best-effort: errors degrade to uncached operation.
type Cache interface {
	Get(ctx context.Context, key string) (SearchResponse, bool, error)
	Set(ctx context.Context, key string, resp SearchResponse, ttl time.Duration) error
}

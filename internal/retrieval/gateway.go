package retrieval

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/metrics"
	"github.com/wildsight/tigerwatch/internal/monitor"
)

// MaxSearchLimit bounds how many results a single search may request.
const MaxSearchLimit = 20

// maxContentLength bounds the plain-text extraction from a scraped page.
const maxContentLength = 10000

// Gateway fronts the search provider chain and the scraping backend.
type Gateway struct {
	providers []Provider
	cache     Cache
	cacheTTL  time.Duration
	scraper   Scraper
	logger    *zap.Logger
}

// New builds a Gateway. Providers are tried in slice order; a nil cache
// degrades to NoopCache; a nil scraper degrades Scrape to an empty
// response with a warning.
func New(providers []Provider, cache Cache, cacheTTL time.Duration, scraper Scraper, logger *zap.Logger) *Gateway {
	if cache == nil {
		cache = NoopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		providers: providers,
		cache:     cache,
		cacheTTL:  cacheTTL,
		scraper:   scraper,
		logger:    logger,
	}
}

// Search tries the requested (or primary) provider, then the remaining
// providers in order. Every attempt's failure is logged and swallowed;
// exhaustion returns an empty result set with Error set, never an error.
func (g *Gateway) Search(ctx context.Context, query string, limit int, provider string) SearchResponse {
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	key := CacheKey(g.cacheProviderLabel(provider), query, limit)
	if cached, hit, err := g.cache.Get(ctx, key); err != nil {
		metrics.ObserveSearchCache("error")
		g.logger.Warn("search cache lookup failed", zap.Error(err))
	} else if hit {
		metrics.ObserveSearchCache("hit")
		return cached
	} else {
		metrics.ObserveSearchCache("miss")
	}

	for _, p := range g.chain(provider) {
		results, err := p.Search(ctx, query, limit)
		if err != nil {
			metrics.ObserveSearchAttempt(p.Name(), "error")
			g.logger.Warn("search provider failed",
				zap.String("provider", p.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		if len(results) == 0 {
			metrics.ObserveSearchAttempt(p.Name(), "empty")
			g.logger.Debug("search provider returned no results",
				zap.String("provider", p.Name()),
				zap.String("query", query),
			)
			continue
		}
		metrics.ObserveSearchAttempt(p.Name(), "ok")
		resp := SearchResponse{Results: results, Count: len(results), Provider: p.Name()}
		if err := g.cache.Set(ctx, key, resp, g.cacheTTL); err != nil {
			g.logger.Warn("search cache store failed", zap.Error(err))
		}
		return resp
	}

	g.logger.Warn("all search providers exhausted", zap.String("query", query))
	return SearchResponse{
		Results: []SearchResult{},
		Error:   monitor.ErrProvidersExhausted.Error(),
	}
}

// Scrape fetches the URL through the configured backend and extracts
// plain text and title. An unconfigured backend degrades to an empty
// response annotated with a warning.
func (g *Gateway) Scrape(ctx context.Context, url string, extract bool) ScrapeResponse {
	if g.scraper == nil {
		g.logger.Warn("scrape requested without a configured backend", zap.String("url", url))
		return ScrapeResponse{Warning: monitor.ErrScrapeUnavailable.Error()}
	}

	page, err := g.scraper.Fetch(ctx, url)
	if err != nil {
		g.logger.Warn("scrape failed", zap.String("url", url), zap.Error(err))
		return ScrapeResponse{Warning: err.Error()}
	}

	resp := ScrapeResponse{HTML: string(page.HTML)}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.HTML))
	if err != nil {
		// Unparseable markup still carries images for the extractor.
		return resp
	}

	resp.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, nav, footer, header").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxContentLength {
		cut := maxContentLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	resp.Content = text

	if extract {
		resp.Extracted = extractStructured(doc)
	}
	return resp
}

// chain orders providers for one search: the requested provider first
// when named, then the rest in configured order.
func (g *Gateway) chain(requested string) []Provider {
	if requested == "" {
		return g.providers
	}
	ordered := make([]Provider, 0, len(g.providers))
	for _, p := range g.providers {
		if p.Name() == requested {
			ordered = append(ordered, p)
			break
		}
	}
	for _, p := range g.providers {
		if p.Name() != requested {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

func (g *Gateway) cacheProviderLabel(requested string) string {
	if requested != "" {
		return requested
	}
	if len(g.providers) > 0 {
		return g.providers[0].Name()
	}
	return "none"
}

// extractStructured collects the metadata tags reporting collaborators
// care about: description and OpenGraph title/image.
func extractStructured(doc *goquery.Document) string {
	var parts []string
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && desc != "" {
		parts = append(parts, "description: "+strings.TrimSpace(desc))
	}
	if ogTitle, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && ogTitle != "" {
		parts = append(parts, "og:title: "+strings.TrimSpace(ogTitle))
	}
	if ogImage, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && ogImage != "" {
		parts = append(parts, "og:image: "+strings.TrimSpace(ogImage))
	}
	return strings.Join(parts, "\n")
}

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// SerpAPIProvider queries the SerpAPI structured search endpoint.
type SerpAPIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSerpAPIProvider builds a SerpAPI provider. baseURL is overridable
// for tests; empty selects the production endpoint.
func NewSerpAPIProvider(apiKey, baseURL string, timeout time.Duration) *SerpAPIProvider {
	if baseURL == "" {
		baseURL = "https://serpapi.com/search"
	}
	return &SerpAPIProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in responses and metrics.
func (p *SerpAPIProvider) Name() string { return "serpapi" }

// Search runs a structured query against SerpAPI.
func (p *SerpAPIProvider) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("serpapi key not configured")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", p.apiKey)
	params.Set("num", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build serpapi request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read serpapi response: %w", err)
	}

	var payload struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse serpapi response: %w", err)
	}

	results := make([]SearchResult, 0, len(payload.OrganicResults))
	for _, r := range payload.OrganicResults {
		if len(results) >= limit {
			break
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return results, nil
}

// BraveProvider queries the Brave Search REST API.
type BraveProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewBraveProvider builds a Brave provider. baseURL is overridable for
// tests; empty selects the production endpoint.
func NewBraveProvider(apiKey, baseURL string, timeout time.Duration) *BraveProvider {
	if baseURL == "" {
		baseURL = "https://api.search.brave.com/res/v1/web/search"
	}
	return &BraveProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in responses and metrics.
func (p *BraveProvider) Name() string { return "brave" }

// Search runs a structured query against Brave Search.
func (p *BraveProvider) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("brave key not configured")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build brave request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave returned status %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse brave response: %w", err)
	}

	results := make([]SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if len(results) >= limit {
			break
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, nil
}

// ResultsPageProvider is the last rung of the fallback chain: it scrapes
// a generic search-engine results page and extracts links directly. Best
// effort only; selector drift on the engine's side degrades to zero hits.
type ResultsPageProvider struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewResultsPageProvider builds the scrape-based fallback provider.
func NewResultsPageProvider(baseURL, userAgent string, timeout time.Duration) *ResultsPageProvider {
	if baseURL == "" {
		baseURL = "https://html.duckduckgo.com/html/"
	}
	return &ResultsPageProvider{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in responses and metrics.
func (p *ResultsPageProvider) Name() string { return "results_page" }

// Search fetches the results page for the query and pulls out result links.
func (p *ResultsPageProvider) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build results-page request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("results-page request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("results page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var results []SearchResult
	doc.Find("a.result__a, h2 a, h3 a").Each(func(_ int, s *goquery.Selection) {
		if len(results) >= limit {
			return
		}
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = cleanRedirect(href)
		title := strings.TrimSpace(s.Text())
		if href == "" || title == "" || !strings.HasPrefix(href, "http") {
			return
		}
		results = append(results, SearchResult{Title: title, URL: href})
	})
	return results, nil
}

// cleanRedirect unwraps engine redirect URLs of the form
// /l/?uddg=<encoded> so callers get the destination directly.
func cleanRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	return href
}

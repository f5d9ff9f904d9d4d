package retrieval

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyConfig controls the plain-HTTP scraping backend.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyScraper implements Scraper using the Colly collector.
type CollyScraper struct {
	cfg           CollyConfig
	baseCollector *colly.Collector
}

// NewCollyScraper builds a CollyScraper with a pooled transport.
func NewCollyScraper(cfg CollyConfig) *CollyScraper {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	// Facility pages are public marketing pages; robots.txt is honored
	// at the politeness level of one sequential fetch per source.
	c.IgnoreRobotsTxt = false

	return &CollyScraper{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (s *CollyScraper) Fetch(ctx context.Context, url string) (Page, error) {
	var (
		result   Page
		fetchErr error
	)

	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		result = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("scrape canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Page{}, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return Page{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

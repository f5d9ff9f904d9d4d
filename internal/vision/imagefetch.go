package vision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxImageBytes caps the download size of a single candidate image.
const maxImageBytes = 20 << 20

// ImageFetcher downloads candidate image bytes for the model stages.
type ImageFetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewImageFetcher builds an ImageFetcher with the given per-request timeout.
func NewImageFetcher(timeout time.Duration, userAgent string) *ImageFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ImageFetcher{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Fetch downloads the image at the URL, bounding the response size.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image fetch returned empty body")
	}
	return data, nil
}

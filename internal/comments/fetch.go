package comments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PageFetcher returns the HTML of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// DefaultUserAgent is sent by HTTPFetcher when none is set.
const DefaultUserAgent = "Mozilla/5.0 (compatible; agentflow-comments/1.0)"

// HTTPFetcher fetches pages with a plain GET. It sees only what the server
// renders without JavaScript.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string

	// MaxBytes caps the body read. Defaults to 8 MiB.
	MaxBytes int64
}

// Fetch GETs url and returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

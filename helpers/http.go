package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"golang.org/x/net/html/charset"

	crawlerrors "sjsage522/listingworker/pkg/errors"
)

// Fetcher issues browser-like GET requests and returns UTF-8 bodies
type Fetcher struct {
	client    *http.Client
	userAgent string
	provider  string
}

// NewFetcher creates a fetcher with a fixed user agent and per-request timeout
func NewFetcher(provider, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		provider:  provider,
	}
}

// Fetch sends a GET request to rawURL with the given query parameters merged
// into its query string, converts the response body to UTF-8 (if needed) and
// returns it as an io.Reader.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, params url.Values) (io.Reader, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, crawlerrors.NewParsing(f.provider, "invalid url "+rawURL, err)
	}
	if len(params) > 0 {
		q := target.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, crawlerrors.NewNetwork(f.provider, "failed to create request", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, crawlerrors.NewNetwork(f.provider, "failed to fetch "+target.String(), err)
	}
	defer resp.Body.Close()

	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		retryAfter, _ := time.ParseDuration(resp.Header.Get("Retry-After") + "s")
		return nil, crawlerrors.NewRateLimit(f.provider, retryAfter)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, crawlerrors.NewNetwork(f.provider, fmt.Sprintf("fetch %s unexpected status code: %d", target, resp.StatusCode), nil)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, crawlerrors.NewNetwork(f.provider, "failed to read response body", err)
	}

	return ToUTF8(bodyBytes, resp.Header.Get("Content-Type"))
}

// ToUTF8 converts body to UTF-8 using the Content-Type header and any meta
// charset declaration in the body.
func ToUTF8(body []byte, contentType string) (io.Reader, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || name == "UTF-8" {
		return bytes.NewReader(body), nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, encoding.NewDecoder().Reader(bytes.NewReader(body))); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}
	return &buf, nil
}

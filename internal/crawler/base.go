package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/services/cache"
)

// BaseCrawler provides common functionality for all crawlers
type BaseCrawler struct {
	Name      string
	Provider  string
	Origin    string
	CacheKey  string
	CacheSvc  cache.CacheService
	BlockTime time.Duration
	Dates     DateNormalizer

	log *logger.Logger
}

// GetName returns the crawler's name for logging
func (c *BaseCrawler) GetName() string {
	return c.Name
}

// GetProvider returns the provider name for the crawler
func (c *BaseCrawler) GetProvider() string {
	return c.Provider
}

func (c *BaseCrawler) logger() *logger.Logger {
	if c.log == nil {
		return logger.ForCrawler(c.Name)
	}
	return c.log
}

// fetchWithCache runs fetch unless the provider is inside a rate-limit block
// window. A rate-limited response opens a new window of BlockTime, or of the
// provider's Retry-After when that is longer.
func (c *BaseCrawler) fetchWithCache(fetch func() (io.Reader, error)) (io.Reader, error) {
	if c.CacheSvc != nil && c.CacheKey != "" {
		block, err := c.CacheSvc.Get(c.CacheKey)
		switch {
		case err == nil:
			return nil, crawlerrors.New(crawlerrors.ErrorTypeRateLimit, c.Provider,
				fmt.Sprintf("blocked for %ss after rate limit", block), nil)
		case !errors.Is(err, cache.ErrCacheMiss):
			// An unreachable cache must not stop the crawl
			logger.LogError(c.Provider, crawlerrors.NewCache(c.Provider, "failed to read rate limit window", err),
				"Checking %s", c.CacheKey)
		}
	}

	body, err := fetch()
	if err != nil {
		if crawlerrors.Is(err, crawlerrors.ErrorTypeRateLimit) && c.CacheSvc != nil && c.CacheKey != "" {
			window := max(c.BlockTime, crawlerrors.RetryAfter(err))
			block := []byte(fmt.Sprintf("%d", window/time.Second))
			if cerr := c.CacheSvc.Set(c.CacheKey, block, window); cerr != nil {
				logger.LogError(c.Provider, crawlerrors.NewCache(c.Provider, "failed to store rate limit window", cerr),
					"Blocking for %v", window)
			}
		}
		return nil, err
	}
	return body, nil
}

// fetchDocument fetches a static page through fetcher and parses it
func (c *BaseCrawler) fetchDocument(ctx context.Context, fetcher PageFetcher, rawURL string, params url.Values) (*goquery.Document, error) {
	body, err := c.fetchWithCache(func() (io.Reader, error) {
		return fetcher.Fetch(ctx, rawURL, params)
	})
	if err != nil {
		return nil, err
	}
	return c.createDocument(body)
}

// renderDocument loads a page through renderer and parses the rendered markup
func (c *BaseCrawler) renderDocument(ctx context.Context, renderer Renderer, rawURL string) (*goquery.Document, error) {
	body, err := c.fetchWithCache(func() (io.Reader, error) {
		html, err := renderer.Render(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return strings.NewReader(html), nil
	})
	if err != nil {
		return nil, err
	}
	return c.createDocument(body)
}

// createDocument creates a goquery document from a reader
func (c *BaseCrawler) createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, crawlerrors.NewParsing(c.Provider, "HTML parse error", err)
	}
	return doc, nil
}

// resolve makes href absolute against the crawler's origin
func (c *BaseCrawler) resolve(href string) (string, bool) {
	abs, err := helpers.ResolveURL(c.Origin, href)
	if err != nil {
		c.logger().Debug().Str("href", href).Err(err).Msg("Skipping unresolvable link")
		return "", false
	}
	return abs, true
}

// fieldError converts a normalization failure into a typed error naming the field
func (c *BaseCrawler) fieldError(field, raw string, err error) error {
	switch {
	case errors.Is(err, ErrMalformedNumeric):
		return crawlerrors.NewMalformedNumeric(c.Provider, field, raw, err)
	case errors.Is(err, ErrUnparseableDate):
		return crawlerrors.NewUnparseableDate(c.Provider, field, raw)
	default:
		return crawlerrors.NewParsing(c.Provider, field, err)
	}
}

// textOr returns the trimmed text of the first match of selector, or NotAvailable
func textOr(doc *goquery.Document, selector string) string {
	if selector == "" {
		return NotAvailable
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return NotAvailable
	}
	return strings.TrimSpace(sel.Text())
}

// dedupe drops repeated URLs keeping the first occurrence
func dedupe(listings []ListingSummary) []ListingSummary {
	seen := make(map[string]struct{}, len(listings))
	out := listings[:0]
	for _, l := range listings {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}

var (
	htmSuffix      = regexp.MustCompile(`\.htm.*$`)
	trailingDigits = regexp.MustCompile(`(\d+)\D*$`)
)

// threadIDFromURL derives a thread id from the last path segment of rawURL:
// "/threads/iphone-x.123/" and "/mua-ban/nha-pho-3-tang-456.htm" give "123"
// and "456". It returns "" when the segment carries no digits.
func threadIDFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	last := htmSuffix.ReplaceAllString(segments[len(segments)-1], "")
	if i := strings.LastIndex(last, "."); i >= 0 {
		last = last[i+1:]
	}
	if m := trailingDigits.FindStringSubmatch(last); m != nil {
		return m[1]
	}
	return ""
}

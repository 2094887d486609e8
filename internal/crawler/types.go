package crawler

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// NotAvailable is written for text fields a page does not carry
const NotAvailable = "N/A"

// Source identifies the site a record was scraped from
type Source string

const (
	SourceNhattao Source = "nhattao"
	SourceChotot  Source = "chotot"
)

// ListingSummary is a detail-page link discovered on a listing page
type ListingSummary struct {
	URL  string
	Page int
}

// Field is a single named column of a record
type Field struct {
	Name  string
	Value string
}

// Record is the detail data scraped from one listing page
type Record interface {
	// Source returns the site the record came from
	Source() Source

	// ID returns the site's thread identifier
	ID() string

	// URL returns the detail page the record was read from
	URL() string

	// Fields returns the record as ordered columns for tabular sinks
	Fields() []Field
}

// Crawler interface defines the contract for all crawler implementations
type Crawler interface {
	// GetName returns the crawler's name for logging and identification
	GetName() string

	// GetProvider returns the provider name for the crawler
	GetProvider() string

	// Source returns the site the crawler reads
	Source() Source

	// PageCount returns how many listing pages the category has
	PageCount(ctx context.Context, sess *CrawlSession) (int, error)

	// ListingURLs returns the detail links found on one listing page
	ListingURLs(ctx context.Context, sess *CrawlSession, page int) ([]ListingSummary, error)

	// FetchListing fetches one detail page and extracts its record
	FetchListing(ctx context.Context, listing ListingSummary) (Record, error)
}

// PageFetcher fetches static HTML pages
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) (io.Reader, error)
}

// Renderer loads a page in a browser and returns the rendered markup
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// Timestamp is a unix time in seconds that may be unavailable
type Timestamp struct {
	Unix  int64
	Valid bool
}

// NewTimestamp wraps t as an available timestamp
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Unix: t.Unix(), Valid: true}
}

func (t Timestamp) String() string {
	if !t.Valid {
		return NotAvailable
	}
	return strconv.FormatInt(t.Unix, 10)
}

// MarshalJSON writes the unix seconds, or "N/A" when unavailable
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return json.Marshal(NotAvailable)
	}
	return []byte(strconv.FormatInt(t.Unix, 10)), nil
}

// Count is a non-negative integer that may be unavailable
type Count struct {
	Value int64
	Valid bool
}

// NewCount wraps n as an available count
func NewCount(n int64) Count {
	return Count{Value: n, Valid: true}
}

func (c Count) String() string {
	if !c.Valid {
		return NotAvailable
	}
	return strconv.FormatInt(c.Value, 10)
}

// MarshalJSON writes the number, or "N/A" when unavailable
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return json.Marshal(NotAvailable)
	}
	return []byte(strconv.FormatInt(c.Value, 10)), nil
}

// NhattaoRecord is one nhattao.com thread. Price is 0 when the thread shows none.
type NhattaoRecord struct {
	ThreadLink string    `json:"thread_link"`
	ThreadID   string    `json:"thread_id"`
	Title      string    `json:"title"`
	Condition  string    `json:"condition"`
	Location   string    `json:"location"`
	PostedDate Timestamp `json:"posted_date"`
	Seen       Count     `json:"seen"`
	Price      float64   `json:"price"`
	Address    string    `json:"address"`
	Contact    string    `json:"contact"`
	Seller     string    `json:"seller"`
	DateJoined Timestamp `json:"date_joined"`
	NoProducts Count     `json:"no_products"`
	Likes      Count     `json:"likes"`
}

func (r *NhattaoRecord) Source() Source { return SourceNhattao }
func (r *NhattaoRecord) ID() string     { return r.ThreadID }
func (r *NhattaoRecord) URL() string    { return r.ThreadLink }

func (r *NhattaoRecord) Fields() []Field {
	return []Field{
		{"Thread Link", r.ThreadLink},
		{"Thread ID", r.ThreadID},
		{"Title", r.Title},
		{"Condition", r.Condition},
		{"Location", r.Location},
		{"Posted Date", r.PostedDate.String()},
		{"Seen", r.Seen.String()},
		{"Price", formatPrice(r.Price)},
		{"Address", r.Address},
		{"Contact", r.Contact},
		{"Seller", r.Seller},
		{"Date Joined", r.DateJoined.String()},
		{"No Products", r.NoProducts.String()},
		{"Likes", r.Likes.String()},
	}
}

// ChototRecord is one nha.chotot.com listing. Details holds the free-form
// label/value grid of the page, so records of one category may carry
// different keys.
type ChototRecord struct {
	Link       string            `json:"link"`
	ThreadID   string            `json:"thread_id"`
	PostedDate Timestamp         `json:"posted_date"`
	Seller     string            `json:"seller"`
	SellerType string            `json:"seller_type"`
	Contact    string            `json:"contact"`
	Title      string            `json:"title"`
	Price      float64           `json:"price"`
	Details    map[string]string `json:"details,omitempty"`
}

func (r *ChototRecord) Source() Source { return SourceChotot }
func (r *ChototRecord) ID() string     { return r.ThreadID }
func (r *ChototRecord) URL() string    { return r.Link }

func (r *ChototRecord) Fields() []Field {
	fields := []Field{
		{"Link", r.Link},
		{"Thread ID", r.ThreadID},
		{"Posted Date", r.PostedDate.String()},
		{"Seller", r.Seller},
		{"Seller Type", r.SellerType},
		{"Contact", r.Contact},
		{"Title", r.Title},
		{"Price", formatPrice(r.Price)},
	}

	keys := make([]string, 0, len(r.Details))
	for k := range r.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, Field{k, r.Details[k]})
	}
	return fields
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/services/cache"
)

// NhattaoSelectors holds the markers nhattao pages are read by
type NhattaoSelectors struct {
	PageNav       string
	PageNavHeader string
	ListingLink   string
	Canonical     string
	Title         string
	Condition     string
	Location      string
	PostDate      string
	ViewCount     string
	Price         string
	Address       string
	Contact       string
	Seller        string
}

// DefaultNhattaoSelectors matches the XenForo-based nhattao.com theme
var DefaultNhattaoSelectors = NhattaoSelectors{
	PageNav:       "div.PageNav",
	PageNavHeader: "span.pageNavHeader",
	ListingLink:   "a.Nhattao-CardItem--image",
	Canonical:     "link[rel='canonical']",
	Title:         "h2",
	Condition:     "li.threadview-header--classifiedStatus",
	Location:      "li.threadview-header--classifiedLoc",
	PostDate:      "li.threadview-header--postDate",
	ViewCount:     "li.threadview-header--viewCount",
	Price:         "p.threadview-header--classifiedPrice",
	Address:       "span.address",
	Contact:       "a.threadview-header--contactPhone",
	Seller:        "div.threadview-header--seller",
}

const (
	sellerJoined   = "Date Joined"
	sellerProducts = "No Products"
	sellerLikes    = "Likes"
)

// sellerLabels lists the row labels each seller field may appear under. A row
// belongs to the first field in this order whose keyword its label contains.
var sellerLabels = []struct {
	field    string
	keywords []string
}{
	{sellerJoined, []string{"tham gia", "joined"}},
	{sellerProducts, []string{"sản phẩm", "products"}},
	{sellerLikes, []string{"thích", "likes"}},
}

var (
	threadLinkPattern = regexp.MustCompile(`threads/.*`)
	searchIDPattern   = regexp.MustCompile(`search_id=(\d+)`)
)

// NhattaoCrawler reads classified threads from one nhattao.com category
type NhattaoCrawler struct {
	BaseCrawler
	URL         string
	Fetcher     PageFetcher
	Selectors   NhattaoSelectors
	SearchIDTTL time.Duration
}

// Source returns the site the crawler reads
func (c *NhattaoCrawler) Source() Source {
	return SourceNhattao
}

// PageCount fetches the category page and reads its page count. A search id
// found on the same page seeds the session.
func (c *NhattaoCrawler) PageCount(ctx context.Context, sess *CrawlSession) (int, error) {
	doc, err := c.fetchDocument(ctx, c.Fetcher, c.URL, nil)
	if err != nil {
		return 0, err
	}

	if sess != nil {
		if id := c.ExtractSearchID(doc); id != "" {
			sess.SeedSearchID(id)
			c.storeSearchID(id)
		}
	}
	return c.ExtractPageCount(doc)
}

// ListingURLs fetches listing page n of the category
func (c *NhattaoCrawler) ListingURLs(ctx context.Context, sess *CrawlSession, page int) ([]ListingSummary, error) {
	searchID := ""
	if sess != nil {
		id, err := sess.SearchID(func() (string, error) {
			return c.resolveSearchID(ctx)
		})
		if err != nil {
			return nil, err
		}
		searchID = id
	}

	pageURL, params := c.PageURL(page, searchID)
	c.logger().Debug().Int("page", page).Str("url", pageURL).Msg("Fetching listing page")

	doc, err := c.fetchDocument(ctx, c.Fetcher, pageURL, params)
	if err != nil {
		return nil, err
	}

	listings := c.ExtractListingURLs(doc)
	for i := range listings {
		listings[i].Page = page
	}
	return listings, nil
}

// FetchListing fetches one thread and extracts its record
func (c *NhattaoCrawler) FetchListing(ctx context.Context, listing ListingSummary) (Record, error) {
	doc, err := c.fetchDocument(ctx, c.Fetcher, listing.URL, nil)
	if err != nil {
		return nil, err
	}
	return c.ExtractListing(doc, listing.URL)
}

// PageURL builds the URL and query of listing page n
func (c *NhattaoCrawler) PageURL(page int, searchID string) (string, url.Values) {
	params := url.Values{}
	params.Set("type", "recent")
	if searchID != "" {
		params.Set("search_id", searchID)
	}
	params.Set("order", "up_time")
	params.Set("direction", "desc")
	return fmt.Sprintf("%spage-%d", c.URL, page), params
}

func (c *NhattaoCrawler) searchIDCacheKey() string {
	return "search_id:" + c.URL
}

// resolveSearchID returns the cached search id or fetches the category page for a new one
func (c *NhattaoCrawler) resolveSearchID(ctx context.Context) (string, error) {
	if c.CacheSvc != nil {
		v, err := c.CacheSvc.Get(c.searchIDCacheKey())
		switch {
		case err == nil && len(v) > 0:
			return string(v), nil
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			logger.LogError(c.Provider, crawlerrors.NewCache(c.Provider, "failed to read search id", err),
				"Fetching search id from %s instead", c.URL)
		}
	}

	doc, err := c.fetchDocument(ctx, c.Fetcher, c.URL, nil)
	if err != nil {
		return "", err
	}

	id := c.ExtractSearchID(doc)
	if id == "" {
		c.logger().Warn().Str("url", c.URL).Msg("No search id on category page, paging without it")
		return "", nil
	}
	c.storeSearchID(id)
	return id, nil
}

func (c *NhattaoCrawler) storeSearchID(id string) {
	if c.CacheSvc == nil || c.SearchIDTTL <= 0 {
		return
	}
	if err := c.CacheSvc.Set(c.searchIDCacheKey(), []byte(id), c.SearchIDTTL); err != nil {
		logger.LogError(c.Provider, crawlerrors.NewCache(c.Provider, "failed to store search id", err),
			"Search id %s not cached", id)
	}
}

// ExtractPageCount reads the category's page count. A page without
// pagination has a single page.
func (c *NhattaoCrawler) ExtractPageCount(doc *goquery.Document) (int, error) {
	if last, ok := doc.Find(c.Selectors.PageNav).First().Attr("data-last"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(last))
		if err != nil || n < 1 {
			return 0, crawlerrors.NewMalformedNumeric(c.Provider, "data-last", last, err)
		}
		return n, nil
	}

	if header := doc.Find(c.Selectors.PageNavHeader).First(); header.Length() > 0 {
		text := strings.TrimSpace(header.Text())
		part, err := helpers.GetSplitPart(text, "/", 1)
		if err != nil {
			return 0, crawlerrors.NewMalformedNumeric(c.Provider, "pageNavHeader", text, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return 0, crawlerrors.NewMalformedNumeric(c.Provider, "pageNavHeader", text, err)
		}
		return n, nil
	}

	return 1, nil
}

// ExtractSearchID reads the search id from the pagination base URL
func (c *NhattaoCrawler) ExtractSearchID(doc *goquery.Document) string {
	base, ok := doc.Find(c.Selectors.PageNav).First().Attr("data-baseurl")
	if !ok {
		return ""
	}
	if m := searchIDPattern.FindStringSubmatch(base); m != nil {
		return m[1]
	}
	part, err := helpers.GetSplitPart(base, "/", 2)
	if err != nil {
		return ""
	}
	return helpers.DigitsOnly(part)
}

// ExtractListingURLs returns the thread links of a listing page in document order
func (c *NhattaoCrawler) ExtractListingURLs(doc *goquery.Document) []ListingSummary {
	var listings []ListingSummary
	doc.Find(c.Selectors.ListingLink).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !threadLinkPattern.MatchString(href) {
			return
		}
		if abs, ok := c.resolve(href); ok {
			listings = append(listings, ListingSummary{URL: abs})
		}
	})
	return dedupe(listings)
}

// ExtractListing builds the record of one thread page
func (c *NhattaoCrawler) ExtractListing(doc *goquery.Document, listingURL string) (*NhattaoRecord, error) {
	sel := c.Selectors
	record := &NhattaoRecord{
		ThreadLink: listingURL,
		ThreadID:   c.extractThreadID(doc, listingURL),
		Title:      textOr(doc, sel.Title),
		Condition:  textOr(doc, sel.Condition),
		Location:   textOr(doc, sel.Location),
		Address:    textOr(doc, sel.Address),
		Contact:    textOr(doc, sel.Contact),
		Seller:     NotAvailable,
	}
	if record.Contact != NotAvailable {
		record.Contact = strings.ReplaceAll(record.Contact, " ", "")
	}

	if s := doc.Find(sel.PostDate).First(); s.Length() > 0 {
		raw := postDateText(s)
		t, err := c.Dates.Normalize(raw)
		if err != nil {
			return nil, c.fieldError("Posted Date", raw, err)
		}
		record.PostedDate = NewTimestamp(t)
	}

	if s := doc.Find(sel.ViewCount).First(); s.Length() > 0 {
		raw := strings.TrimSpace(s.Text())
		n, err := ParseViewCount(raw)
		if err != nil {
			return nil, c.fieldError("Seen", raw, err)
		}
		record.Seen = NewCount(n)
	}

	if s := doc.Find(sel.Price).First(); s.Length() > 0 {
		raw := strings.TrimSpace(s.Text())
		p, err := ParsePrice(raw)
		if err != nil {
			return nil, c.fieldError("Price", raw, err)
		}
		record.Price = p
	}

	if block := doc.Find(sel.Seller).First(); block.Length() > 0 {
		if err := c.extractSeller(block, record); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// extractThreadID prefers the canonical link and falls back to the request URL
func (c *NhattaoCrawler) extractThreadID(doc *goquery.Document, listingURL string) string {
	if href, ok := doc.Find(c.Selectors.Canonical).First().Attr("href"); ok {
		if id := threadIDFromURL(href); id != "" {
			return id
		}
	}
	if id := threadIDFromURL(listingURL); id != "" {
		return id
	}
	return NotAvailable
}

// extractSeller fills the seller fields from the seller block. Rows are
// found by their label so reordered or missing rows do not shift values.
func (c *NhattaoCrawler) extractSeller(block *goquery.Selection, record *NhattaoRecord) error {
	name := block.Find(".username").First()
	if name.Length() == 0 {
		name = block.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.ParentsFiltered("dl").Length() == 0
		}).First()
	}
	if name.Length() > 0 {
		if text := strings.TrimSpace(name.Text()); text != "" {
			record.Seller = text
		}
	}

	rows := make(map[string]*goquery.Selection)
	block.Find("dl").Each(func(_ int, row *goquery.Selection) {
		label := strings.ToLower(norm.NFC.String(row.Find("dt").First().Text()))
		field := sellerField(label)
		if field == "" {
			return
		}
		if _, seen := rows[field]; !seen {
			rows[field] = row.Find("dd").First()
		}
	})

	if dd, ok := rows[sellerJoined]; ok && dd.Length() > 0 {
		joined, err := c.extractJoined(dd)
		if err != nil {
			return err
		}
		record.DateJoined = joined
	}

	if dd, ok := rows[sellerProducts]; ok && dd.Length() > 0 {
		raw := strings.TrimSpace(dd.Text())
		n, err := ParseCount(raw)
		if err != nil {
			return c.fieldError(sellerProducts, raw, err)
		}
		record.NoProducts = NewCount(n)
	}

	if dd, ok := rows[sellerLikes]; ok && dd.Length() > 0 {
		raw := strings.TrimSpace(dd.Text())
		n, err := ParseCount(raw)
		if err != nil {
			return c.fieldError(sellerLikes, raw, err)
		}
		record.Likes = NewCount(n)
	}

	return nil
}

// sellerField returns the seller field a row label belongs to, or ""
func sellerField(label string) string {
	for _, sl := range sellerLabels {
		for _, kw := range sl.keywords {
			if strings.Contains(label, kw) {
				return sl.field
			}
		}
	}
	return ""
}

// extractJoined reads a join date shown either as a date string or as a
// relative abbr carrying the unix time in data-time
func (c *NhattaoCrawler) extractJoined(dd *goquery.Selection) (Timestamp, error) {
	if span := dd.Find("span").First(); span.Length() > 0 {
		raw := strings.TrimSpace(span.Text())
		t, err := c.Dates.Absolute(raw)
		if err != nil {
			return Timestamp{}, c.fieldError(sellerJoined, raw, err)
		}
		return NewTimestamp(t), nil
	}

	if raw, ok := dd.Find("abbr").First().Attr("data-time"); ok {
		n, err := ParseCount(raw)
		if err != nil {
			return Timestamp{}, c.fieldError(sellerJoined, raw, err)
		}
		return Timestamp{Unix: n, Valid: true}, nil
	}

	raw := strings.TrimSpace(dd.Text())
	t, err := c.Dates.Absolute(raw)
	if err != nil {
		return Timestamp{}, c.fieldError(sellerJoined, raw, err)
	}
	return NewTimestamp(t), nil
}

// postDateText returns the date text of the post date marker, preferring a
// nested DateTime element when there is one
func postDateText(s *goquery.Selection) string {
	if dt := s.Find(".DateTime").First(); dt.Length() > 0 {
		if title, ok := dt.Attr("title"); ok && strings.TrimSpace(title) != "" {
			return strings.TrimSpace(title)
		}
		return strings.TrimSpace(dt.Text())
	}
	return strings.TrimSpace(s.Text())
}

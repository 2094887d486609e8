package crawler

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ChototSelectors holds the markers chotot pages are read by. The class
// names are generated by the site's build and change between releases.
type ChototSelectors struct {
	ListingLink   string
	Pagination    string
	PostedDate    string
	Seller        string
	SellerType    string
	Contact       string
	ContactButton string
	Title         string
	Price         string
	Details       string
}

// DefaultChototSelectors matches the nha.chotot.com markup the crawler was built against
var DefaultChototSelectors = ChototSelectors{
	ListingLink:   "a[href]",
	Pagination:    "div.Paging a, ul.pagination a, [class*='Paging'] a",
	PostedDate:    "div.hidden-xs.JfuoT2phEEouoxezYbBx4",
	Seller:        "div.sc-eilVRo.hEXVti",
	SellerType:    "div.sc-fhYwyz.fDMLIV",
	Contact:       "a[href^='tel:']",
	ContactButton: "a.H3QBvet3qzdHlB3LVAw-7.btn.btn-success",
	Title:         "h1._22kG1zbJ4D-6IUEgKvoifC",
	Price:         "span.oRSYZ0HPb2tHhHjpVp_2o",
	Details:       "div._2E8caC-j61im7lRi5lExI9",
}

var listingHrefPattern = regexp.MustCompile(`\.htm`)

// ChototCrawler reads listings from one nha.chotot.com category. Pages are
// rendered client side so every request goes through the Renderer.
type ChototCrawler struct {
	BaseCrawler
	URL       string
	Renderer  Renderer
	Selectors ChototSelectors
}

// Source returns the site the crawler reads
func (c *ChototCrawler) Source() Source {
	return SourceChotot
}

// PageCount renders the first listing page and reads its pagination
func (c *ChototCrawler) PageCount(ctx context.Context, _ *CrawlSession) (int, error) {
	doc, err := c.renderDocument(ctx, c.Renderer, c.PageURL(1))
	if err != nil {
		return 0, err
	}
	return c.ExtractPageCount(doc), nil
}

// ListingURLs renders listing page n
func (c *ChototCrawler) ListingURLs(ctx context.Context, _ *CrawlSession, page int) ([]ListingSummary, error) {
	pageURL := c.PageURL(page)
	c.logger().Debug().Int("page", page).Str("url", pageURL).Msg("Rendering listing page")

	doc, err := c.renderDocument(ctx, c.Renderer, pageURL)
	if err != nil {
		return nil, err
	}

	listings := c.ExtractListingURLs(doc)
	for i := range listings {
		listings[i].Page = page
	}
	return listings, nil
}

// FetchListing renders one listing and extracts its record
func (c *ChototCrawler) FetchListing(ctx context.Context, listing ListingSummary) (Record, error) {
	doc, err := c.renderDocument(ctx, c.Renderer, listing.URL)
	if err != nil {
		return nil, err
	}
	return c.ExtractListing(doc, listing.URL)
}

// PageURL returns the URL of listing page n
func (c *ChototCrawler) PageURL(page int) string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL + "?page=" + strconv.Itoa(page)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// ExtractPageCount returns the highest page number linked from the
// pagination, or 1 when the page has none
func (c *ChototCrawler) ExtractPageCount(doc *goquery.Document) int {
	pages := 1
	doc.Find(c.Selectors.Pagination).Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(s.Text())); err == nil && n > pages {
			pages = n
		}
	})
	return pages
}

// ExtractListingURLs returns the listing links of a rendered page in document order
func (c *ChototCrawler) ExtractListingURLs(doc *goquery.Document) []ListingSummary {
	var listings []ListingSummary
	doc.Find(c.Selectors.ListingLink).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !listingHrefPattern.MatchString(href) {
			return
		}
		if abs, ok := c.resolve(href); ok {
			listings = append(listings, ListingSummary{URL: abs})
		}
	})
	return dedupe(listings)
}

// ExtractListing builds the record of one rendered listing page
func (c *ChototCrawler) ExtractListing(doc *goquery.Document, listingURL string) (*ChototRecord, error) {
	sel := c.Selectors
	record := &ChototRecord{
		Link:       listingURL,
		ThreadID:   threadIDFromURL(listingURL),
		Seller:     textOr(doc, sel.Seller),
		SellerType: textOr(doc, sel.SellerType),
		Contact:    c.extractContact(doc),
		Title:      textOr(doc, sel.Title),
		Details:    c.extractDetails(doc),
	}
	if record.ThreadID == "" {
		record.ThreadID = NotAvailable
	}

	if s := doc.Find(sel.PostedDate).First(); s.Length() > 0 {
		raw := strings.TrimSpace(s.Text())
		t, err := c.Dates.Normalize(raw)
		if err != nil {
			return nil, c.fieldError("Posted Date", raw, err)
		}
		record.PostedDate = NewTimestamp(t)
	}

	if s := doc.Find(sel.Price).First(); s.Length() > 0 {
		raw := strings.TrimSpace(s.Text())
		p, err := ParsePrice(raw)
		if err != nil {
			return nil, c.fieldError("Price", raw, err)
		}
		record.Price = p
	}

	return record, nil
}

// extractContact reads the phone number out of a tel: link
func (c *ChototCrawler) extractContact(doc *goquery.Document) string {
	for _, selector := range []string{c.Selectors.Contact, c.Selectors.ContactButton} {
		if selector == "" {
			continue
		}
		href, ok := doc.Find(selector).First().Attr("href")
		if !ok {
			continue
		}
		_, number, found := strings.Cut(href, ":")
		if !found {
			number = href
		}
		if number = strings.ReplaceAll(strings.TrimSpace(number), " ", ""); number != "" {
			return number
		}
	}
	return NotAvailable
}

// extractDetails reads the "Label: Value" grid. Items without a colon map to
// themselves.
func (c *ChototCrawler) extractDetails(doc *goquery.Document) map[string]string {
	details := make(map[string]string)
	doc.Find(c.Selectors.Details).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		label, value, found := strings.Cut(text, ":")
		if !found {
			details[text] = text
			return
		}
		if label = strings.TrimSpace(label); label != "" {
			details[label] = strings.TrimSpace(value)
		}
	})
	return details
}

// compile-time checks
var (
	_ Crawler = (*NhattaoCrawler)(nil)
	_ Crawler = (*ChototCrawler)(nil)
	_ Record  = (*NhattaoRecord)(nil)
	_ Record  = (*ChototRecord)(nil)
)

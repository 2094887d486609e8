package crawler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerrors "sjsage522/listingworker/pkg/errors"
)

const nhattaoCategoryURL = "https://nhattao.com/f/dien-thoai-di-dong.3/"

const nhattaoCategoryHTML = `<html><body>
<div class="PageNav" data-page="1" data-range="2" data-start="2" data-end="6" data-last="7"
	data-sentinel="{{sentinel}}"
	data-baseurl="f/dien-thoai-di-dong.3/page-{{sentinel}}?type=recent&amp;search_id=122705679&amp;order=up_time&amp;direction=desc"></div>
</body></html>`

const nhattaoListingHTML = `<html><body>
<div class="Nhattao-CardList">
	<a class="Nhattao-CardItem--image" href="threads/iphone-x-64gb.1001/"><img></a>
	<a class="Nhattao-CardItem--title" href="threads/iphone-x-64gb.1001/">iPhone X</a>
	<a class="Nhattao-CardItem--image" href="threads/samsung-s10.1002/"><img></a>
	<a class="Nhattao-CardItem--image" href="members/shop.55/"><img></a>
	<a class="Nhattao-CardItem--image" href="threads/xiaomi-note.1003/"><img></a>
	<a class="Nhattao-CardItem--image" href="threads/samsung-s10.1002/"><img></a>
</div>
</body></html>`

const nhattaoThreadHTML = `<html><head>
<link rel="canonical" href="https://nhattao.com/threads/iphone-x-64gb.1001/">
</head><body>
<h2> iPhone X 64GB quốc tế </h2>
<ul>
	<li class="threadview-header--classifiedStatus">Đã sử dụng</li>
	<li class="threadview-header--classifiedLoc"> Hồ Chí Minh </li>
	<li class="threadview-header--postDate"><span class="DateTime" title="12/05/20 at 14:30">12/05/20</span></li>
	<li class="threadview-header--viewCount">Xem 4.567 lần</li>
</ul>
<p class="threadview-header--classifiedPrice"> 1.234.567 đ </p>
<span class="address"> 123 Lê Lợi, Quận 1 </span>
<a class="threadview-header--contactPhone">0901 234 567</a>
<div class="threadview-header--seller">
	<div class="seller-name"><span>shop_abc</span></div>
	<dl><dt>Tham gia:</dt><dd><span>12/05/20</span></dd></dl>
	<dl><dt>Sản phẩm:</dt><dd>34</dd></dl>
	<dl><dt>Được thích:</dt><dd>1.203</dd></dl>
</div>
</body></html>`

func newTestNhattao(fetcher PageFetcher, cacheSvc *MockCacheService) *NhattaoCrawler {
	c := &NhattaoCrawler{
		BaseCrawler: BaseCrawler{
			Name:      "NhattaoCrawler",
			Provider:  "Nhattao",
			Origin:    "https://nhattao.com/",
			CacheKey:  "nhattao_rate_limited",
			BlockTime: time.Minute,
			Dates:     testDates(),
		},
		URL:         nhattaoCategoryURL,
		Fetcher:     fetcher,
		Selectors:   DefaultNhattaoSelectors,
		SearchIDTTL: time.Hour,
	}
	if cacheSvc != nil {
		c.CacheSvc = cacheSvc
	}
	return c
}

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestNhattaoExtractPageCount(t *testing.T) {
	c := newTestNhattao(nil, nil)

	n, err := c.ExtractPageCount(docFrom(t, nhattaoCategoryHTML))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = c.ExtractPageCount(docFrom(t, `<div><span class="pageNavHeader">Trang 1/12</span></div>`))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = c.ExtractPageCount(docFrom(t, `<div>no pagination</div>`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.ExtractPageCount(docFrom(t, `<div class="PageNav" data-last="bảy"></div>`))
	assert.True(t, crawlerrors.Is(err, crawlerrors.ErrorTypeMalformedNumeric))
}

func TestNhattaoExtractSearchID(t *testing.T) {
	c := newTestNhattao(nil, nil)
	assert.Equal(t, "122705679", c.ExtractSearchID(docFrom(t, nhattaoCategoryHTML)))

	legacy := `<div class="PageNav" data-last="3" data-baseurl="find-new/threads/98765/page-{{sentinel}}"></div>`
	assert.Equal(t, "98765", c.ExtractSearchID(docFrom(t, legacy)))

	assert.Equal(t, "", c.ExtractSearchID(docFrom(t, `<div></div>`)))
}

func TestNhattaoExtractListingURLs(t *testing.T) {
	c := newTestNhattao(nil, nil)
	listings := c.ExtractListingURLs(docFrom(t, nhattaoListingHTML))

	require.Len(t, listings, 3)
	assert.Equal(t, "https://nhattao.com/threads/iphone-x-64gb.1001/", listings[0].URL)
	assert.Equal(t, "https://nhattao.com/threads/samsung-s10.1002/", listings[1].URL)
	assert.Equal(t, "https://nhattao.com/threads/xiaomi-note.1003/", listings[2].URL)
}

func TestNhattaoPageURL(t *testing.T) {
	c := newTestNhattao(nil, nil)
	pageURL, params := c.PageURL(3, "122705679")

	assert.Equal(t, nhattaoCategoryURL+"page-3", pageURL)
	assert.Equal(t, "recent", params.Get("type"))
	assert.Equal(t, "122705679", params.Get("search_id"))
	assert.Equal(t, "up_time", params.Get("order"))
	assert.Equal(t, "desc", params.Get("direction"))

	_, params = c.PageURL(1, "")
	assert.False(t, params.Has("search_id"))
}

func TestNhattaoExtractListing(t *testing.T) {
	c := newTestNhattao(nil, nil)
	listingURL := "https://nhattao.com/threads/iphone-x-64gb.1001/"

	record, err := c.ExtractListing(docFrom(t, nhattaoThreadHTML), listingURL)
	require.NoError(t, err)

	midnight := time.Date(2020, time.May, 12, 0, 0, 0, 0, c.Dates.Location).Unix()

	assert.Equal(t, listingURL, record.ThreadLink)
	assert.Equal(t, "1001", record.ThreadID)
	assert.Equal(t, "iPhone X 64GB quốc tế", record.Title)
	assert.Equal(t, "Đã sử dụng", record.Condition)
	assert.Equal(t, "Hồ Chí Minh", record.Location)
	assert.Equal(t, Timestamp{Unix: midnight, Valid: true}, record.PostedDate)
	assert.Equal(t, NewCount(4567), record.Seen)
	assert.Equal(t, 1234567.0, record.Price)
	assert.Equal(t, "123 Lê Lợi, Quận 1", record.Address)
	assert.Equal(t, "0901234567", record.Contact)
	assert.Equal(t, "shop_abc", record.Seller)
	assert.Equal(t, Timestamp{Unix: midnight, Valid: true}, record.DateJoined)
	assert.Equal(t, NewCount(34), record.NoProducts)
	assert.Equal(t, NewCount(1203), record.Likes)
	assert.Equal(t, SourceNhattao, record.Source())
}

func TestNhattaoExtractListingSentinels(t *testing.T) {
	c := newTestNhattao(nil, nil)
	html := `<html><body><h2>Bán nhanh</h2></body></html>`

	record, err := c.ExtractListing(docFrom(t, html), "https://nhattao.com/threads/ban-nhanh.2002/")
	require.NoError(t, err)

	assert.Equal(t, "2002", record.ThreadID)
	assert.Equal(t, NotAvailable, record.Condition)
	assert.Equal(t, NotAvailable, record.Location)
	assert.Equal(t, NotAvailable, record.Address)
	assert.Equal(t, NotAvailable, record.Contact)
	assert.Equal(t, NotAvailable, record.Seller)
	assert.Equal(t, 0.0, record.Price)
	assert.False(t, record.PostedDate.Valid)
	assert.False(t, record.Seen.Valid)
	assert.False(t, record.DateJoined.Valid)
	assert.False(t, record.NoProducts.Valid)
	assert.False(t, record.Likes.Valid)

	// Every column is present and unavailable values render as N/A
	fields := record.Fields()
	require.Len(t, fields, 14)
	assert.Equal(t, Field{"Posted Date", NotAvailable}, fields[5])
	assert.Equal(t, Field{"Price", "0"}, fields[7])
}

func TestNhattaoSellerRowsByLabel(t *testing.T) {
	c := newTestNhattao(nil, nil)
	// Rows out of order, likes missing, join date as a unix abbr
	html := `<html><body><h2>x</h2>
	<div class="threadview-header--seller">
		<a class="username">dienthoai_hn</a>
		<dl><dt>Sản phẩm:</dt><dd>7</dd></dl>
		<dl><dt>Tham gia:</dt><dd><abbr class="DateTime" data-time="1589241600">12/5/20</abbr></dd></dl>
	</div></body></html>`

	record, err := c.ExtractListing(docFrom(t, html), "https://nhattao.com/threads/x.3003/")
	require.NoError(t, err)

	assert.Equal(t, "dienthoai_hn", record.Seller)
	assert.Equal(t, NewCount(7), record.NoProducts)
	assert.Equal(t, Timestamp{Unix: 1589241600, Valid: true}, record.DateJoined)
	assert.False(t, record.Likes.Valid)
}

func TestNhattaoSellerLabelFirstMatchWins(t *testing.T) {
	c := newTestNhattao(nil, nil)
	html := `<html><body><h2>x</h2>
	<div class="threadview-header--seller">
		<a class="username">shop</a>
		<dl><dt>Sản phẩm được thích:</dt><dd>12</dd></dl>
	</div></body></html>`

	record, err := c.ExtractListing(docFrom(t, html), "https://nhattao.com/threads/x.3004/")
	require.NoError(t, err)

	assert.Equal(t, NewCount(12), record.NoProducts)
	assert.False(t, record.Likes.Valid)

	assert.Equal(t, sellerJoined, sellerField("tham gia:"))
	assert.Equal(t, sellerLikes, sellerField("được thích:"))
	assert.Equal(t, "", sellerField("địa chỉ:"))
}

func TestNhattaoPostedToday(t *testing.T) {
	c := newTestNhattao(nil, nil)
	html := `<li class="threadview-header--postDate"><span class="DateTime">Hôm nay lúc 10:30</span></li>`

	record, err := c.ExtractListing(docFrom(t, html), "https://nhattao.com/threads/x.3005/")
	require.NoError(t, err)
	assert.Equal(t, NewTimestamp(time.Date(2020, time.June, 1, 0, 0, 0, 0, c.Dates.Location)), record.PostedDate)
}

func TestNhattaoSearchIDWithBrokenCache(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.pages[nhattaoCategoryURL] = nhattaoCategoryHTML
	fetcher.pages[nhattaoCategoryURL+"page-1"] = nhattaoListingHTML

	c := newTestNhattao(fetcher, nil)
	broken := &brokenCache{}
	c.CacheSvc = broken

	listings, err := c.ListingURLs(context.Background(), NewCrawlSession(c.GetProvider()), 1)
	require.NoError(t, err)
	assert.Len(t, listings, 3)
	assert.Equal(t, "122705679", fetcher.params[len(fetcher.params)-1].Get("search_id"))
	assert.Equal(t, 1, broken.sets)
}

func TestNhattaoExtractListingMalformed(t *testing.T) {
	c := newTestNhattao(nil, nil)

	_, err := c.ExtractListing(docFrom(t, `<p class="threadview-header--classifiedPrice">Liên hệ</p>`), "https://nhattao.com/threads/x.1/")
	assert.True(t, crawlerrors.Is(err, crawlerrors.ErrorTypeMalformedNumeric))
	assert.Contains(t, err.Error(), "Nhattao.Price")

	_, err = c.ExtractListing(docFrom(t, `<li class="threadview-header--postDate">mới đây</li>`), "https://nhattao.com/threads/x.1/")
	assert.True(t, crawlerrors.Is(err, crawlerrors.ErrorTypeUnparseableDate))
}

func TestNhattaoCrawlFlow(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.pages[nhattaoCategoryURL] = nhattaoCategoryHTML
	fetcher.pages[nhattaoCategoryURL+"page-1"] = nhattaoListingHTML
	fetcher.pages[nhattaoCategoryURL+"page-2"] = nhattaoListingHTML
	fetcher.pages["https://nhattao.com/threads/iphone-x-64gb.1001/"] = nhattaoThreadHTML

	mockCache := NewMockCacheService()
	c := newTestNhattao(fetcher, mockCache)
	sess := NewCrawlSession(c.GetProvider())
	ctx := context.Background()

	pages, err := c.PageCount(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 7, pages)

	for page := 1; page <= 2; page++ {
		listings, err := c.ListingURLs(ctx, sess, page)
		require.NoError(t, err)
		assert.Len(t, listings, 3)
		assert.Equal(t, page, listings[0].Page)
	}

	// The category page was fetched once for the count and seeded the search id
	assert.Equal(t, 1, fetcher.callCount(nhattaoCategoryURL))
	for _, params := range fetcher.params[1:] {
		assert.Equal(t, "122705679", params.Get("search_id"))
	}
	cached, err := mockCache.Get("search_id:" + nhattaoCategoryURL)
	require.NoError(t, err)
	assert.Equal(t, "122705679", string(cached))

	record, err := c.FetchListing(ctx, ListingSummary{URL: "https://nhattao.com/threads/iphone-x-64gb.1001/"})
	require.NoError(t, err)
	assert.Equal(t, "1001", record.ID())
}

func TestNhattaoSearchIDResolvedOnce(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.pages[nhattaoCategoryURL] = nhattaoCategoryHTML
	fetcher.pages[nhattaoCategoryURL+"page-1"] = nhattaoListingHTML
	fetcher.pages[nhattaoCategoryURL+"page-2"] = nhattaoListingHTML

	c := newTestNhattao(fetcher, nil)
	sess := NewCrawlSession(c.GetProvider())

	_, err := c.ListingURLs(context.Background(), sess, 1)
	require.NoError(t, err)
	_, err = c.ListingURLs(context.Background(), sess, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.callCount(nhattaoCategoryURL))
}

func TestNhattaoSearchIDFromCache(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.pages[nhattaoCategoryURL+"page-1"] = nhattaoListingHTML

	mockCache := NewMockCacheService()
	mockCache.Set("search_id:"+nhattaoCategoryURL, []byte("555"), time.Hour)

	c := newTestNhattao(fetcher, mockCache)
	_, err := c.ListingURLs(context.Background(), NewCrawlSession(c.GetProvider()), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, fetcher.callCount(nhattaoCategoryURL))
	assert.Equal(t, "555", fetcher.params[0].Get("search_id"))
}

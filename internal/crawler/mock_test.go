package crawler

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	crawlerrors "sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
	ttls  map[string]time.Duration
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
		ttls:  make(map[string]time.Duration),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	m.ttls[key] = expiration
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

// brokenCache fails every call the way an unreachable memcached does
type brokenCache struct {
	sets int
}

func (b *brokenCache) Get(string) ([]byte, error) {
	return nil, crawlerrors.NewCache("memcache", "get failed", io.ErrUnexpectedEOF)
}

func (b *brokenCache) Set(string, []byte, time.Duration) error {
	b.sets++
	return crawlerrors.NewCache("memcache", "set failed", io.ErrUnexpectedEOF)
}

func (b *brokenCache) Delete(string) error { return nil }

// mockFetcher serves canned pages by URL and records every request
type mockFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	calls  []string
	params []url.Values
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{pages: make(map[string]string), errs: make(map[string]error)}
}

func (m *mockFetcher) Fetch(_ context.Context, rawURL string, params url.Values) (io.Reader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rawURL)
	m.params = append(m.params, params)

	if err, ok := m.errs[rawURL]; ok {
		return nil, err
	}
	page, ok := m.pages[rawURL]
	if !ok {
		return nil, crawlerrors.NewNetwork("Mock", "fetch "+rawURL+" unexpected status code: 404", nil)
	}
	return strings.NewReader(page), nil
}

func (m *mockFetcher) callCount(rawURL string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == rawURL {
			n++
		}
	}
	return n
}

// mockRenderer serves canned rendered markup by URL
type mockRenderer struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func newMockRenderer() *mockRenderer {
	return &mockRenderer{pages: make(map[string]string)}
}

func (m *mockRenderer) Render(_ context.Context, rawURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rawURL)
	page, ok := m.pages[rawURL]
	if !ok {
		return "", crawlerrors.NewNetwork("Mock", "failed to render "+rawURL, nil)
	}
	return page, nil
}

// fixedNow is the frozen clock used by date tests
var fixedNow = time.Date(2020, time.June, 1, 10, 0, 0, 0, time.UTC)

func testDates() DateNormalizer {
	loc, _ := time.LoadLocation("Asia/Ho_Chi_Minh")
	return DateNormalizer{Location: loc, Now: func() time.Time { return fixedNow }}
}

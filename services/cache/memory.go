package cache

import (
	"sync"
	"time"

	"sjsage522/listingworker/logger"
)

type memoryEntry struct {
	value  []byte
	expiry time.Time
}

// MemoryCache implements CacheService in process memory
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	log     *logger.Logger
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		log:     logger.ForCache().WithField("backend", "memory"),
	}
}

// Get retrieves a value, dropping it if it expired
func (m *MemoryCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiry.IsZero() && !m.now().Before(e.expiry) {
		delete(m.entries, key)
		m.log.Debug().Str("key", key).Msg("Expired entry dropped")
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

// Set stores a value; a zero expiration never expires
func (m *MemoryCache) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		e.expiry = m.now().Add(expiration)
	}
	m.entries[key] = e
	return nil
}

// Delete removes a value
func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

package cache

import (
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
)

// keyPrefix namespaces every key this worker writes
const keyPrefix = "listingworker:"

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
	log    *logger.Logger
}

// NewMemcacheService creates a new memcache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(serverAddr),
		log:    logger.ForCache().WithField("addr", serverAddr),
	}
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(memcacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		m.log.Debug().Err(err).Str("key", key).Msg("Memcache get failed")
		return nil, crawlerrors.NewCache("memcache", "get "+key+" failed", err)
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        memcacheKey(key),
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
	if err != nil {
		m.log.Debug().Err(err).Str("key", key).Msg("Memcache set failed")
		return crawlerrors.NewCache("memcache", "set "+key+" failed", err)
	}
	return nil
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(memcacheKey(key))
	if err == nil || errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return crawlerrors.NewCache("memcache", "delete "+key+" failed", err)
}

// memcacheKey prefixes key and replaces characters memcache rejects
func memcacheKey(key string) string {
	return keyPrefix + strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, key)
}

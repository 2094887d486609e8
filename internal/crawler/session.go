package crawler

import (
	"sync"
	"time"
)

// CrawlSession holds per-run state shared by every page request of one
// source. The search id is resolved at most once per session; a new run
// starts a new session and therefore refreshes it.
type CrawlSession struct {
	Provider  string
	StartedAt time.Time

	mu       sync.Mutex
	searchID string
	resolved bool
}

// NewCrawlSession starts a session for provider
func NewCrawlSession(provider string) *CrawlSession {
	return &CrawlSession{Provider: provider, StartedAt: time.Now()}
}

// SearchID returns the session's search id, calling resolve the first time
// only. A failed resolve is not remembered so the next page can try again.
func (s *CrawlSession) SearchID(resolve func() (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return s.searchID, nil
	}

	id, err := resolve()
	if err != nil {
		return "", err
	}
	s.searchID = id
	s.resolved = true
	return id, nil
}

// SeedSearchID records an id discovered as a side effect of another request.
// It is ignored once the session already holds an id.
func (s *CrawlSession) SeedSearchID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resolved {
		s.searchID = id
		s.resolved = true
	}
}

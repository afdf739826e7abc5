package review

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long fetched reviews stay fresh.
const DefaultTTL = time.Hour

type memoryEntry struct {
	reviews []Review
	expires time.Time
}

// MemoryCache is an in-process Cache with a fixed TTL.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a MemoryCache. A nil now uses time.Now.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, asin string) ([]Review, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[asin]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, asin)
		return nil, false, nil
	}
	return append([]Review(nil), e.reviews...), true, nil
}

func (c *MemoryCache) Put(_ context.Context, asin string, reviews []Review) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[asin] = memoryEntry{
		reviews: append([]Review(nil), reviews...),
		expires: c.now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, asin string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, asin)
	return nil
}

package listing

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the sliding expiry of a listing entry.
const DefaultTTL = 10 * time.Minute

// Cache stores listing pages under version-scoped keys.
type Cache interface {
	// Version returns the current catalog version.
	Version(ctx context.Context) (int64, error)
	// Get returns the page stored under key and extends its expiry.
	Get(ctx context.Context, key string) (*Page, bool, error)
	Set(ctx context.Context, key string, page *Page) error
	// Invalidate bumps the catalog version, retiring every existing entry.
	Invalidate(ctx context.Context) error
}

// MemoryCache is a process-local Cache for single-instance deployments.
type MemoryCache struct {
	mu      sync.Mutex
	version int64
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	page     *Page
	lastUsed time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source (tests).
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Version(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Page, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	now := c.now()
	if now.Sub(entry.lastUsed) > c.ttl {
		delete(c.entries, key)
		return nil, false, nil
	}
	entry.lastUsed = now
	return entry.page, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, page *Page) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memoryEntry{page: page, lastUsed: c.now()}
	return nil
}

// Invalidate bumps the version and drops every entry; nothing keyed under an
// older version could be read again anyway.
func (c *MemoryCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	c.entries = make(map[string]*memoryEntry)
	return nil
}

// CleanExpired removes idle entries (call periodically).
func (c *MemoryCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.lastUsed) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RunJanitor calls CleanExpired every interval until ctx is done.
func (c *MemoryCache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanExpired()
		}
	}
}

package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry is a single cache entry with its own expiry
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element // For LRU tracking
}

func (e *memoryEntry) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryStore is an in-memory LRU cache with TTL.
// Thread-safe implementation using sync.Mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lruList *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore holding at most maxSize entries, each
// living for ttl unless Set passes its own.
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached value or ErrMiss
func (c *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired(c.now()) {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return nil, ErrMiss
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return append([]byte(nil), entry.value...), nil
}

// Set stores a copy of value
func (c *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	stored := append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if entry, exists := c.entries[key]; exists {
		entry.value = stored
		entry.expiresAt = expiresAt
		c.lruList.MoveToFront(entry.element)
		return nil
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &memoryEntry{key: key, value: stored, expiresAt: expiresAt}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
	return nil
}

// Delete removes key; deleting an absent key is not an error
func (c *MemoryStore) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(key)
	return nil
}

// Stats returns cache statistics
func (c *MemoryStore) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.calculateHitRate(),
	}
}

// Stats represents cache statistics
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

func (c *MemoryStore) calculateHitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// removeEntry must be called with the lock held
func (c *MemoryStore) removeEntry(key string) {
	if entry, exists := c.entries[key]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictLRU must be called with the lock held
func (c *MemoryStore) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, key)
}

// CleanupExpired removes all expired entries and reports how many were dropped
func (c *MemoryStore) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []string
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeEntry(key)
	}
	return len(expired)
}

// StartCleanupWorker periodically drops expired entries until ctx is done
func (c *MemoryStore) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

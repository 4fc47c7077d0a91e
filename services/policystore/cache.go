package policystore

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/integration-gateway/models"
)

// cacheEntry represents a single cached revision with its insertion time
type cacheEntry struct {
	revision   *models.IntegrationPolicy
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

func (e *cacheEntry) isExpired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.insertedAt) > ttl
}

// RevisionCache is an in-memory LRU cache with TTL for policy revisions.
// Revisions are immutable, so entries never go stale; the TTL only bounds
// how long a revision of a detached integration stays resident.
type RevisionCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	lruList *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// NewRevisionCache creates a new RevisionCache with specified max size and TTL
func NewRevisionCache(maxSize int, ttl time.Duration) *RevisionCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &RevisionCache{
		entries: make(map[uuid.UUID]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached revision or nil if missing or expired
func (c *RevisionCache) Get(id uuid.UUID) *models.IntegrationPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists || entry.isExpired(c.ttl, c.now()) {
		c.misses++
		if exists {
			c.removeEntry(id)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.revision
}

// Set stores a revision
func (c *RevisionCache) Set(rev *models.IntegrationPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[rev.ID]; exists {
		entry.revision = rev
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		revision:   rev,
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(rev.ID)
	c.entries[rev.ID] = entry
}

// Invalidate removes a revision
func (c *RevisionCache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(id)
}

// InvalidateIntegration removes every revision of an integration
func (c *RevisionCache) InvalidateIntegration(integrationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.entries {
		if entry.revision.TerminalIntegrationID == integrationID {
			c.removeEntry(id)
		}
	}
}

// Clear removes all entries from the cache
func (c *RevisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uuid.UUID]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *RevisionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// removeEntry must be called with the lock held
func (c *RevisionCache) removeEntry(id uuid.UUID) {
	if entry, exists := c.entries[id]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, id)
	}
}

// evictLRU must be called with the lock held
func (c *RevisionCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(uuid.UUID)
	c.lruList.Remove(back)
	delete(c.entries, id)
}

// CleanupExpired removes all expired entries and returns how many were removed
func (c *RevisionCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, entry := range c.entries {
		if entry.isExpired(c.ttl, now) {
			c.removeEntry(id)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically removes expired entries until stopCh closes
func (c *RevisionCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

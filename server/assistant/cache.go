package assistant

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// CacheConfig configures the context cache.
type CacheConfig struct {
	Capacity        int           // maximum number of entries (default: 1000)
	DefaultTTL      time.Duration // default TTL for entries (default: 5 minutes)
	CleanupInterval time.Duration // interval for the expired-entry sweep (default: 1 minute)
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:        1000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// ContextCache is a TTL + capacity-bounded LRU cache of conversation
// contexts. The cache owns its own deep copies; callers never share a live
// reference with it.
type ContextCache struct {
	capacity   int
	defaultTTL time.Duration
	mu         sync.Mutex

	entries map[string]*cacheEntry
	order   *list.List // LRU ordering, front = most recently used

	hits      int64
	misses    int64
	evictions int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type cacheEntry struct {
	key          string
	value        *ConversationContext
	expiresAt    time.Time
	accessCount  int64
	lastAccessed time.Time
	element      *list.Element
}

// ContextKey builds the cache key for a session.
func ContextKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// NewContextCache creates a cache and starts its background sweep.
func NewContextCache(cfg CacheConfig) *ContextCache {
	defaults := DefaultCacheConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaults.Capacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaults.DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &ContextCache{
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		entries:    make(map[string]*cacheEntry),
		order:      list.New(),
		ctx:        ctx,
		cancel:     cancel,
	}

	c.wg.Add(1)
	go c.sweepLoop(cfg.CleanupInterval)

	return c
}

// Close stops the background sweep.
func (c *ContextCache) Close() {
	c.cancel()
	c.wg.Wait()
}

// Get returns a deep copy of the cached context, or a miss if the key is
// absent or expired. Expired entries are evicted lazily on access.
func (c *ContextCache) Get(key string) (*ConversationContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		c.misses++
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = time.Now()
	c.order.MoveToFront(e.element)
	c.hits++
	return e.value.Clone(), true
}

// Set stores a deep copy of the context. If the cache is at capacity and the
// key is new, the least-recently-used entry is evicted first. A zero ttl uses
// the cache default.
func (c *ContextCache) Set(key string, value *ConversationContext, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.entries[key]; ok {
		e.value = value.Clone()
		e.expiresAt = now.Add(ttl)
		e.lastAccessed = now
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	e := &cacheEntry{
		key:          key,
		value:        value.Clone(),
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	e.element = c.order.PushFront(e)
	c.entries[key] = e
}

// Delete removes a single entry.
func (c *ContextCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeEntry(e)
	}
}

// DeletePrefix removes every entry whose key starts with prefix and returns
// the number removed. Used to drop all sessions of one user.
func (c *ContextCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeEntry(e)
			count++
		}
	}
	return count
}

// Size returns the number of cached entries.
func (c *ContextCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// GetStats returns the cache counters.
func (c *ContextCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// evictOldest removes the least recently used entry. Lock must be held.
func (c *ContextCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeEntry(oldest.Value.(*cacheEntry))
	c.evictions++
}

// removeEntry removes an entry. Lock must be held.
func (c *ContextCache) removeEntry(e *cacheEntry) {
	c.order.Remove(e.element)
	delete(c.entries, e.key)
}

// sweepLoop periodically removes expired entries independent of access.
func (c *ContextCache) sweepLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *ContextCache) sweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*cacheEntry
	now := time.Now()
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		c.removeEntry(e)
	}
	return len(expired)
}

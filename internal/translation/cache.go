package translation

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Result is the outcome of one translation.
type Result struct {
	TranslatedText string
	DetectedLang   string
	Confidence     float64
}

type cacheEntry struct {
	key            string
	value          Result
	createdAt      time.Time
	expiresAt      time.Time
	lastAccessedAt time.Time
	hitCount       int
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Size     int
	Hits     uint64
	Misses   uint64
	Evicted  uint64
	HitRatio float64
}

// Cache is a bounded TTL+LRU cache for translation results. When an insert
// would exceed the maximum size, the least-recently-used ~10% of entries
// (never fewer than one) are evicted. Entries also expire individually after
// the configured TTL regardless of use.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	hits    uint64
	misses  uint64
	evicted uint64
	now     func() time.Time
}

// NewCache creates a cache holding at most maxSize entries.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// CacheKey derives the content hash for a (text, sourceLang, targetLang) triple.
func CacheKey(text, sourceLang, targetLang string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(sourceLang))
	h.Write([]byte{0})
	h.Write([]byte(targetLang))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, marking it most-recently-used.
// Expired entries are deleted and reported as misses.
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return Result{}, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return Result{}, false
	}

	entry.hitCount++
	entry.lastAccessedAt = c.now()
	c.order.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Put stores a result under key, evicting LRU entries if the cache is full.
func (c *Cache) Put(key string, value Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.createdAt = c.now()
		entry.expiresAt = c.now().Add(c.ttl)
		entry.lastAccessedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	entry := &cacheEntry{
		key:            key,
		value:          value,
		createdAt:      c.now(),
		expiresAt:      c.now().Add(c.ttl),
		lastAccessedAt: c.now(),
	}
	c.entries[key] = c.order.PushFront(entry)
}

// evictLocked removes the least-recently-used ~10% of entries, at least one.
func (c *Cache) evictLocked() {
	count := c.maxSize / 10
	if count < 1 {
		count = 1
	}
	for i := 0; i < count; i++ {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeLocked(back)
		c.evicted++
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}

// Sweep removes all expired entries; called on a timer independent of traffic.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			c.removeLocked(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len reports the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRatio = float64(c.hits) / float64(total)
	}
	return stats
}

package translation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache(10, time.Hour)

	key := CacheKey("hola", "es", "en")
	c.Put(key, Result{TranslatedText: "hello", DetectedLang: "es", Confidence: 0.9})

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "hello", got.TranslatedText)

	_, ok = c.Get(CacheKey("other", "es", "en"))
	assert.False(t, ok)
}

func TestCacheKey_DistinguishesLanguagePairs(t *testing.T) {
	assert.NotEqual(t, CacheKey("text", "es", "en"), CacheKey("text", "en", "es"))
	assert.NotEqual(t, CacheKey("text", "es", "en"), CacheKey("text", "es", "de"))
	assert.Equal(t, CacheKey("text", "es", "en"), CacheKey("text", "es", "en"))
}

// Inserting N+1 entries into a cache of max size N never leaves more than N present.
func TestCache_NeverExceedsMaxSize(t *testing.T) {
	const maxSize = 20
	c := NewCache(maxSize, time.Hour)

	for i := 0; i < maxSize+1; i++ {
		c.Put(fmt.Sprintf("key-%d", i), Result{TranslatedText: "t"})
		assert.LessOrEqual(t, c.Len(), maxSize)
	}
}

func TestCache_EvictsLRUTenPercent(t *testing.T) {
	c := NewCache(20, time.Hour)

	for i := 0; i < 20; i++ {
		c.Put(fmt.Sprintf("key-%d", i), Result{TranslatedText: fmt.Sprintf("v%d", i)})
	}
	// Touch key-0 so it becomes most recently used.
	_, ok := c.Get("key-0")
	require.True(t, ok)

	// Overflow: evicts 10% (2 entries), the LRU ones, which are key-1 and key-2.
	c.Put("key-20", Result{TranslatedText: "v20"})

	assert.Equal(t, 19, c.Len())
	_, ok = c.Get("key-0")
	assert.True(t, ok, "recently used entry must survive eviction")
	_, ok = c.Get("key-1")
	assert.False(t, ok, "LRU entry must be evicted")
	_, ok = c.Get("key-2")
	assert.False(t, ok, "second LRU entry must be evicted")
	_, ok = c.Get("key-3")
	assert.True(t, ok)
}

func TestCache_EvictsAtLeastOne(t *testing.T) {
	// maxSize 5 -> 10% rounds down to 0, but eviction must still free a slot.
	c := NewCache(5, time.Hour)
	for i := 0; i < 6; i++ {
		c.Put(fmt.Sprintf("key-%d", i), Result{})
	}
	assert.Equal(t, 5, c.Len())
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewCache(10, time.Hour)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("key", Result{TranslatedText: "x"})

	_, ok := c.Get("key")
	require.True(t, ok)

	current = current.Add(time.Hour + time.Minute)
	_, ok = c.Get("key")
	assert.False(t, ok, "expired entry must be treated as absent")
	assert.Equal(t, 0, c.Len(), "expired entry must be deleted on read")
}

func TestCache_Sweep(t *testing.T) {
	c := NewCache(10, time.Hour)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("a", Result{})
	c.Put("b", Result{})
	current = current.Add(30 * time.Minute)
	c.Put("c", Result{})

	current = current.Add(45 * time.Minute)
	removed := c.Sweep()

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestCache_Stats(t *testing.T) {
	c := NewCache(10, time.Hour)
	c.Put("a", Result{})

	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRatio, 0.001)
	assert.Equal(t, 1, stats.Size)
}

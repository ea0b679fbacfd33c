package linematch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheGetPut(t *testing.T) {
	c := NewResultCache(10)

	_, ok := c.Get(1, "q")
	assert.False(t, ok)

	c.Put(1, "q", true)
	found, ok := c.Get(1, "q")
	assert.True(t, ok)
	assert.True(t, found)

	c.Put(1, "neg", false)
	found, ok = c.Get(1, "neg")
	assert.True(t, ok)
	assert.False(t, found)
}

func TestCacheBound(t *testing.T) {
	c := NewResultCache(5)
	for i := 0; i < 20; i++ {
		c.Put(1, fmt.Sprintf("q%d", i), true)
	}
	assert.Equal(t, 5, c.Len())

	// the five most recent remain, the rest were evicted
	for i := 15; i < 20; i++ {
		_, ok := c.Get(1, fmt.Sprintf("q%d", i))
		assert.True(t, ok)
	}
	_, ok := c.Get(1, "q0")
	assert.False(t, ok)
}

func TestCacheRecentAccessSurvivesEviction(t *testing.T) {
	c := NewResultCache(3)
	c.Put(1, "a", true)
	c.Put(1, "b", true)
	c.Put(1, "c", true)

	// touch the oldest so "b" becomes the eviction victim
	_, ok := c.Get(1, "a")
	assert.True(t, ok)

	c.Put(1, "d", true)
	_, ok = c.Get(1, "a")
	assert.True(t, ok)
	_, ok = c.Get(1, "b")
	assert.False(t, ok)
}

func TestCacheGenerationInvalidation(t *testing.T) {
	c := NewResultCache(10)
	c.Put(1, "q", true)

	_, ok := c.Get(2, "q")
	assert.False(t, ok, "stale-generation entry must read as a miss")

	// a fresh Put at the new generation revives the key
	c.Put(2, "q", false)
	found, ok := c.Get(2, "q")
	assert.True(t, ok)
	assert.False(t, found)
}

func TestCacheStats(t *testing.T) {
	c := NewResultCache(10)
	c.Put(1, "q", true)
	c.Get(1, "q")
	c.Get(1, "q")
	c.Get(1, "miss")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 1e-9)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(2), c.Stats().Hits)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewResultCache(100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("q%d", i%150)
				c.Put(1, key, i%2 == 0)
				c.Get(1, key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 100)
}

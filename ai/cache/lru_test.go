package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCacheBasic(t *testing.T) {
	c := NewLRUCache[string, int](3, time.Minute)

	c.SetWithDefaultTTL("a", 1)
	c.SetWithDefaultTTL("b", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string, int](2, time.Minute)

	c.SetWithDefaultTTL("a", 1)
	c.SetWithDefaultTTL("b", 2)
	// Touch "a" so "b" becomes the eviction candidate.
	_, _ = c.Get("a")
	c.SetWithDefaultTTL("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCacheTTL(t *testing.T) {
	c := NewLRUCache[string, string](10, time.Minute)

	c.Set("short", "lived", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCacheInvalidate(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)
	for i := 0; i < 3; i++ {
		c.SetWithDefaultTTL(fmt.Sprintf("user:1:%d", i), i)
	}
	c.SetWithDefaultTTL("user:2:0", 9)

	assert.Equal(t, 3, c.Invalidate("user:1:*"))
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, 1, c.Invalidate("user:2:0"))
}

func TestLRUCacheCleanupExpired(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)
	c.Set("old", 1, 5*time.Millisecond)
	c.SetWithDefaultTTL("fresh", 2)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, c.CleanupExpired())
	assert.True(t, c.Contains("fresh"))
	assert.False(t, c.Contains("old"))
}

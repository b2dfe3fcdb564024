package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache[string, int](10, time.Hour)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int](10, time.Hour)
	c.Set("a", 1, time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheZeroTTLNotStored(t *testing.T) {
	c := NewTTLCache[string, int](10, time.Hour)
	c.Set("a", 1, 0)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheMaxTTLCap(t *testing.T) {
	c := NewTTLCache[string, int](10, time.Millisecond)
	c.Set("a", 1, time.Hour)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok, "entry should have been capped to maxTTL and expired")
}

func TestTTLCacheEviction(t *testing.T) {
	c := NewTTLCache[string, int](2, time.Hour)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute) // evicts "a" (least recently used)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTLCacheStats(t *testing.T) {
	c := NewTTLCache[string, int](10, time.Hour)
	c.Set("a", 1, time.Minute)
	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	hits, misses := c.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

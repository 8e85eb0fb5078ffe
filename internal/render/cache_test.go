package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLayerCachePutGet(t *testing.T) {
	c := NewLayerCache(10, time.Minute)

	assert.Nil(t, c.Get("CO", "E_TOTPOP"))

	c.Put("CO", "E_TOTPOP", []byte("styled"))
	assert.Equal(t, []byte("styled"), c.Get("CO", "E_TOTPOP"))
	assert.Equal(t, []byte("styled"), c.Get("co", "E_TOTPOP"), "state lookup is case-insensitive")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

func TestLayerCacheTTL(t *testing.T) {
	c := NewLayerCache(10, time.Millisecond)
	c.Put("CO", "E_TOTPOP", []byte("styled"))

	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, c.Get("CO", "E_TOTPOP"))
}

func TestLayerCacheEviction(t *testing.T) {
	c := NewLayerCache(2, time.Minute)
	c.Put("CO", "a", []byte("1"))
	c.Put("CO", "b", []byte("2"))
	c.Put("CO", "c", []byte("3"))

	assert.Nil(t, c.Get("CO", "a"), "oldest entry evicted")
	assert.NotNil(t, c.Get("CO", "b"))
	assert.NotNil(t, c.Get("CO", "c"))
}

func TestLayerCacheLRUOrder(t *testing.T) {
	c := NewLayerCache(2, time.Minute)
	c.Put("CO", "a", []byte("1"))
	c.Put("CO", "b", []byte("2"))

	// Touch "a" so "b" becomes the eviction candidate.
	c.Get("CO", "a")
	c.Put("CO", "c", []byte("3"))

	assert.NotNil(t, c.Get("CO", "a"))
	assert.Nil(t, c.Get("CO", "b"))
}

func TestLayerCacheInvalidate(t *testing.T) {
	c := NewLayerCache(10, time.Minute)
	c.Put("CO", "E_TOTPOP", []byte("1"))
	c.Put("CO", "E_POV150", []byte("2"))
	c.Put("NY", "E_TOTPOP", []byte("3"))

	assert.Equal(t, 2, c.Invalidate("CO"))
	assert.Nil(t, c.Get("CO", "E_TOTPOP"))
	assert.NotNil(t, c.Get("NY", "E_TOTPOP"))
}

// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("k", 42, time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	_, ok = c.Get("absent")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("k", "v", -time.Second) // already expired
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("fresh", "v", time.Minute)
	_, ok = c.Get("fresh")
	assert.True(t, ok)
}

func TestMemoryCacheDeleteExpired(t *testing.T) {
	c := NewMemoryCache(0).(*memoryCache)

	c.Set("dead1", 1, -time.Second)
	c.Set("dead2", 2, -time.Second)
	c.Set("live", 3, time.Minute)

	assert.Equal(t, 2, c.deleteExpired())
	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Evictions)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("k1", 1, time.Minute)
	c.Set("k2", 2, time.Minute)
	c.Delete("k1")
	_, ok := c.Get("k1")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Stats().CurrentSize)
}

func TestMemoryCacheJanitorStop(t *testing.T) {
	c := NewMemoryCache(time.Millisecond).(*memoryCache)
	c.Set("dead", 1, -time.Second)

	// The janitor sweeps on its own once started.
	assert.Eventually(t, func() bool {
		return c.Stats().CurrentSize == 0
	}, time.Second, 5*time.Millisecond)

	c.Stop()
}

func TestNoOpCache(t *testing.T) {
	c := NewNoOpCache()

	c.Set("k", "v", time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, Stats{}, c.Stats())
}

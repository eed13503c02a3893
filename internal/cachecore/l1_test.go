package cachecore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL1LRUEviction(t *testing.T) {
	tier := newL1Tier(3)

	tier.set("k1", []byte("v1"), 0)
	tier.set("k2", []byte("v2"), 0)
	tier.set("k3", []byte("v3"), 0)
	_, _ = tier.get("k1")
	tier.set("k4", []byte("v4"), 0)

	_, ok := tier.get("k2")
	assert.False(t, ok, "k2 should have been evicted as least-recently-used")

	for _, k := range []CacheKey{"k1", "k3", "k4"} {
		v, ok := tier.get(k)
		require.True(t, ok, "%s should still be present", k)
		assert.NotEmpty(t, v)
	}
}

func TestL1TTLExpiry(t *testing.T) {
	tier := newL1Tier(10)
	tier.set("x", []byte("v"), 30*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	_, ok := tier.get("x")
	assert.False(t, ok)

	_, ttlEvictions := tier.counters()
	assert.Equal(t, int64(1), ttlEvictions)
}

func TestL1InvalidateGlob(t *testing.T) {
	tier := newL1Tier(10)
	tier.set("v1|summarize|a|b|", []byte("v"), 0)
	tier.set("v1|summarize|c|d|", []byte("v"), 0)
	tier.set("v1|sentiment|a|b|", []byte("v"), 0)

	removed := tier.invalidateGlob("v1|summarize|*")
	assert.Equal(t, 2, removed)

	_, ok := tier.get("v1|sentiment|a|b|")
	assert.True(t, ok)
}

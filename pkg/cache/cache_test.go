package cache_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbconv/rbconv/pkg/cache"
)

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c := cache.New(0)
	key := cache.KeyFor("x = 1", "es2015|camelcase")

	text := strings.Repeat("let x = 1;\n", 100)
	c.Put(key, text)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, text, got)
}

func TestKeySeparatesSourceAndOptions(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, cache.KeyFor("x = 1", "es5"), cache.KeyFor("x = 1", "es2015"))
	assert.NotEqual(t, cache.KeyFor("a", "bc"), cache.KeyFor("ab", "c"))
}

func TestMissCountsAndHitRate(t *testing.T) {
	t.Parallel()

	c := cache.New(0)
	key := cache.KeyFor("y = 2", "es2015")

	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, "let y = 2;\n")

	_, ok = c.Get(key)
	require.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestEvictionKeepsSizeBounded(t *testing.T) {
	t.Parallel()

	c := cache.New(4096)

	// Incompressible-ish distinct payloads force real evictions.
	for i := range 64 {
		payload := fmt.Sprintf("output-%03d-%s", i, strings.Repeat(fmt.Sprint(i%10), 200))
		c.Put(cache.KeyFor(payload, "opts"), payload)
	}

	stats := c.Stats()
	assert.LessOrEqual(t, stats.CurrentSize, int64(4096))
	assert.Less(t, stats.Entries, 64)
}

func TestClear(t *testing.T) {
	t.Parallel()

	c := cache.New(0)
	key := cache.KeyFor("z = 3", "es2015")
	c.Put(key, "var z = 3;\n")

	c.Clear()

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Entries)
}

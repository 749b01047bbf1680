package segcache_test

import (
	"testing"

	"github.com/segmentlfs/lfs/internal/segcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsOnEmptyCache(t *testing.T) {
	c := segcache.New[int](2)
	assert.False(t, c.Contains(0))
}

func TestPutThenGet(t *testing.T) {
	c := segcache.New[string](2)
	c.Put(1, "burrito")
	require.True(t, c.Contains(1))
	assert.Equal(t, "burrito", c.Get(1))
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := segcache.New[string](2)
	c.Put(1, "burrito")
	c.Put(2, "taco") // least recently used once we touch 1 below
	c.Get(1)         // 1 is now most recently used, 2 is least

	c.Put(3, "enchilada")

	assert.False(t, c.Contains(2))
	assert.True(t, c.Contains(1))
	assert.True(t, c.Contains(3))
}

func TestInvalidateIsNoOpWhenAbsent(t *testing.T) {
	c := segcache.New[int](2)
	assert.NotPanics(t, func() { c.Invalidate(42) })
}

func TestInvalidateDropsEntry(t *testing.T) {
	c := segcache.New[int](2)
	c.Put(5, 500)
	c.Invalidate(5)
	assert.False(t, c.Contains(5))
}

func TestPutPanicsOnDuplicate(t *testing.T) {
	c := segcache.New[int](2)
	c.Put(1, 1)
	assert.Panics(t, func() { c.Put(1, 2) })
}

func TestGetPanicsWhenUncached(t *testing.T) {
	c := segcache.New[int](2)
	assert.Panics(t, func() { c.Get(1) })
}

package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUGetOrCreateReturnsSameValueForSameKey(t *testing.T) {
	c := newLRUCache(2)
	a := c.getOrCreate("twitter")
	b := c.getOrCreate("twitter")
	require.Same(t, a, b)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)
	c.getOrCreate("a")
	c.getOrCreate("b")
	require.Equal(t, 2, c.len())

	c.getOrCreate("c") // evicts "a" since "b" was touched more recently
	require.Equal(t, 2, c.len())

	aAgain := c.getOrCreate("a")
	require.Equal(t, listNew, aAgain.state)
}

func TestLRUGetRenewsRecency(t *testing.T) {
	c := newLRUCache(2)
	c.getOrCreate("a")
	c.getOrCreate("b")
	c.getOrCreate("a") // touch "a", making "b" the least recently used
	c.getOrCreate("c") // evicts "b"

	_, stillThere := c.elements["a"]
	require.True(t, stillThere)
	_, evicted := c.elements["b"]
	require.False(t, evicted)
}

package resolver

import (
	"container/list"
	"sync"
)

// lruCache is a fixed-capacity, get-renews-recency cache. None of the
// retrieved example repos or other_examples/ files import a third-party
// cache library (hashicorp/golang-lru and similar do not appear in the
// corpus), so this follows the teacher's own preference for small
// hand-rolled collections over unseen dependencies, directly
// implementing §9's "recursive mutex in LRU cache" design note with a
// plain (non-reentrant) sync.Mutex instead.
type lruCache struct {
	mu       sync.Mutex
	max      int
	ll       *list.List
	elements map[string]*list.Element
}

type lruEntry struct {
	key   string
	value *EndpointList
}

func newLRUCache(max int) *lruCache {
	if max < 1 {
		max = 1
	}
	return &lruCache{
		max:      max,
		ll:       list.New(),
		elements: make(map[string]*list.Element),
	}
}

// getOrCreate returns the cached EndpointList for key, creating one if
// absent, and always moves it to the front (most recently used).
func (c *lruCache) getOrCreate(key string) *EndpointList {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*lruEntry).value
	}

	v := newEndpointList()
	el := c.ll.PushFront(&lruEntry{key: key, value: v})
	c.elements[key] = el

	if c.ll.Len() > c.max {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.elements, oldest.Value.(*lruEntry).key)
		}
	}
	return v
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

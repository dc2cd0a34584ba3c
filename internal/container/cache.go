package container

import (
	"container/list"
)

type cacheEntry struct {
	block   uint32
	data    []byte
	element *list.Element
}

// blockCache is a read-path LRU over full blocks. Writes go straight to
// the file and refresh the cached copy, so a hit can never serve stale
// bytes.
type blockCache struct {
	capacity int
	items    map[uint32]*cacheEntry
	lru      *list.List
}

func newBlockCache(capacity int) *blockCache {
	return &blockCache{
		capacity: capacity,
		items:    make(map[uint32]*cacheEntry),
		lru:      list.New(),
	}
}

func (c *blockCache) get(block uint32) ([]byte, bool) {
	entry, ok := c.items[block]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(entry.element)

	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, true
}

func (c *blockCache) put(block uint32, data []byte) {
	stored := make([]byte, len(data))
	copy(stored, data)

	if entry, ok := c.items[block]; ok {
		entry.data = stored
		c.lru.MoveToFront(entry.element)
		return
	}

	if c.lru.Len() >= c.capacity {
		c.evict()
	}

	entry := &cacheEntry{block: block, data: stored}
	entry.element = c.lru.PushFront(entry)
	c.items[block] = entry
}

func (c *blockCache) evict() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.items, entry.block)
}

func (c *blockCache) clear() {
	c.items = make(map[uint32]*cacheEntry)
	c.lru.Init()
}

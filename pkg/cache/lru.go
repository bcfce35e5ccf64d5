package cache

import (
	"container/list"
	"sync"
)

// lru is the in-process tier: bounded by entry count and by total encoded bytes.
// A zero bound disables that limit.
type lru struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	bytes      int64
	order      *list.List // front = most recently used
	items      map[string]*list.Element
}

func newLRU(maxEntries int, maxBytes int64) *lru {
	return &lru{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (c *lru) get(fp string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[fp]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*Entry), true
}

// add stores e, evicting least recently used entries to stay within bounds.
// It returns the number of evictions. Entries larger than the byte budget are not kept.
func (c *lru) add(e *Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxBytes > 0 && e.Size > c.maxBytes {
		c.removeLocked(e.Fingerprint)
		return 0
	}

	if el, ok := c.items[e.Fingerprint]; ok {
		c.bytes -= el.Value.(*Entry).Size
		el.Value = e
		c.bytes += e.Size
		c.order.MoveToFront(el)
	} else {
		c.items[e.Fingerprint] = c.order.PushFront(e)
		c.bytes += e.Size
	}

	evicted := 0
	for c.overLocked() {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElementLocked(oldest)
		evicted++
	}
	return evicted
}

func (c *lru) remove(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(fp)
}

func (c *lru) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.bytes = 0
}

func (c *lru) stats() (entries int, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.bytes
}

func (c *lru) overLocked() bool {
	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		return true
	}
	return c.maxBytes > 0 && c.bytes > c.maxBytes
}

func (c *lru) removeLocked(fp string) {
	if el, ok := c.items[fp]; ok {
		c.removeElementLocked(el)
	}
}

func (c *lru) removeElementLocked(el *list.Element) {
	e := c.order.Remove(el).(*Entry)
	delete(c.items, e.Fingerprint)
	c.bytes -= e.Size
}

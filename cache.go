package rocksdb

import (
	"container/list"
	"sync"
)

// Handle is an opaque reference to a cache entry.
type Handle interface{}

// Cache is a sharded, reference counted mapping from keys to values
// with a capacity based eviction policy. Used for table handles and
// uncompressed blocks.
type Cache interface {
	// Insert maps key to value with the given charge against the cache
	// capacity. The returned handle must be released. deleter is called
	// once no references to the entry remain.
	Insert(key string, value interface{}, charge int, deleter func(key string, value interface{})) Handle

	// Lookup returns a handle for key, or nil. A non nil handle must be
	// released.
	Lookup(key string) Handle

	// Value returns the value stored under a handle from Insert or Lookup.
	Value(handle Handle) interface{}

	// Release releases a handle.
	Release(handle Handle)

	// Erase removes the entry for key. The entry stays alive until all
	// outstanding handles are released.
	Erase(key string)

	// NewID returns a numeric id unique within this cache. Used to
	// partition key spaces between multiple clients of a shared cache.
	NewID() uint64

	// TotalCharge returns the combined charge of all cached entries.
	TotalCharge() int

	// Close releases all entries. Outstanding handles must have been
	// released first.
	Close()
}

type lruHandle struct {
	key     string
	value   interface{}
	charge  int
	deleter func(key string, value interface{})
	refs    int
	inCache bool
	element *list.Element
}

type lruCache struct {
	mu       sync.Mutex
	capacity int
	usage    int
	lastID   uint64
	lru      *list.List
	table    map[string]*lruHandle
}

// NewLRUCache returns a Cache holding at most capacity units of charge.
func NewLRUCache(capacity int) Cache {
	return &lruCache{
		capacity: capacity,
		lru:      list.New(),
		table:    make(map[string]*lruHandle),
	}
}

func (c *lruCache) unref(h *lruHandle) {
	h.refs--
	if h.refs == 0 {
		h.deleter(h.key, h.value)
	}
}

func (c *lruCache) removeFromCache(h *lruHandle) {
	if !h.inCache {
		return
	}
	h.inCache = false
	c.lru.Remove(h.element)
	delete(c.table, h.key)
	c.usage -= h.charge
	c.unref(h)
}

func (c *lruCache) evict() {
	for c.usage > c.capacity && c.lru.Len() > 0 {
		oldest := c.lru.Front().Value.(*lruHandle)
		c.removeFromCache(oldest)
	}
}

func (c *lruCache) Insert(key string, value interface{}, charge int, deleter func(key string, value interface{})) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.table[key]; ok {
		c.removeFromCache(old)
	}
	h := &lruHandle{
		key:     key,
		value:   value,
		charge:  charge,
		deleter: deleter,
		refs:    2,
		inCache: true,
	}
	h.element = c.lru.PushBack(h)
	c.table[key] = h
	c.usage += charge
	c.evict()
	return h
}

func (c *lruCache) Lookup(key string) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.table[key]
	if !ok {
		return nil
	}
	h.refs++
	c.lru.MoveToBack(h.element)
	return h
}

func (c *lruCache) Value(handle Handle) interface{} {
	return handle.(*lruHandle).value
}

func (c *lruCache) Release(handle Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unref(handle.(*lruHandle))
}

func (c *lruCache) Erase(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.table[key]; ok {
		c.removeFromCache(h)
	}
}

func (c *lruCache) NewID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID++
	return c.lastID
}

func (c *lruCache) TotalCharge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *lruCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.lru.Len() > 0 {
		c.removeFromCache(c.lru.Front().Value.(*lruHandle))
	}
}

package rules

import "sync"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapCache is an unbounded, concurrency-safe ProgramCache.
type MapCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewMapCache returns an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{entries: make(map[string]any)}
}

// Get implements ProgramCache.
func (c *MapCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

// Set implements ProgramCache.
func (c *MapCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]any)
	}
	c.entries[key] = value
}

// Len returns the number of cached programs.
func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// namespaced prefixes keys so engines sharing one cache never collide.
type namespaced struct {
	prefix string
	cache  ProgramCache
}

func namespace(prefix string, cache ProgramCache) ProgramCache {
	if cache == nil {
		return nil
	}
	return namespaced{prefix: prefix + ":", cache: cache}
}

func (n namespaced) Get(key string) (any, bool) { return n.cache.Get(n.prefix + key) }

func (n namespaced) Set(key string, value any) { n.cache.Set(n.prefix+key, value) }

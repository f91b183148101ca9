package search

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheEntry is a response tagged with the snapshot it was computed on.
type cacheEntry struct {
	version  uint64
	response Response
}

// ResultCache is an LRU of responses with a TTL. Entries are valid for one
// snapshot version only: the first access that observes a newer version
// drops every entry, so a stale ranking is never served.
type ResultCache struct {
	mu      sync.Mutex
	lru     *expirable.LRU[string, cacheEntry]
	version uint64
}

// NewResultCache creates a cache holding up to size responses for ttl.
// A non-positive ttl disables expiry.
func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		size = DefaultConfig().CacheSize
	}
	return &ResultCache{lru: expirable.NewLRU[string, cacheEntry](size, nil, ttl)}
}

// CacheKey builds the key for a query. Whitespace is collapsed so trivially
// different spellings of one query share an entry.
func CacheKey(query string, mode Mode, w Weights, k int) string {
	norm := strings.Join(strings.Fields(query), " ")
	return fmt.Sprintf("%s\x00%s\x00%g\x00%g\x00%d", norm, mode, w.Lexical, w.Vector, k)
}

// Get returns the response cached under key for version.
func (c *ResultCache) Get(key string, version uint64) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observe(version)

	e, ok := c.lru.Get(key)
	if !ok {
		return Response{}, false
	}
	if e.version != version {
		// A reader on an older snapshot must not evict the current entry.
		if e.version < version {
			c.lru.Remove(key)
		}
		return Response{}, false
	}
	return e.response, true
}

// Put stores resp for version. A response computed on a snapshot older than
// the newest one seen is dropped.
func (c *ResultCache) Put(key string, version uint64, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observe(version)
	if version != c.version {
		return
	}
	c.lru.Add(key, cacheEntry{version: version, response: resp})
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of entries, expired ones included until evicted.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// observe must be called with mu held.
func (c *ResultCache) observe(version uint64) {
	if version > c.version {
		c.lru.Purge()
		c.version = version
	}
}

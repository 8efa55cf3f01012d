// Package cache holds the in-process result cache.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"netfinder/internal/model"
)

const DefaultSize = 10000

// LRU memoizes lookup results by the raw address string. Entries never
// expire; the least recently used entry is evicted once MaxEntries is reached.
type LRU struct {
	sync.Mutex
	cache     *lru.Cache
	hits      uint64
	misses    uint64
	evictions uint64
}

type Stats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

func NewLRU(maxEntries int) *LRU {
	if maxEntries <= 0 {
		maxEntries = DefaultSize
	}
	c := &LRU{
		cache: lru.New(maxEntries),
	}
	c.cache.OnEvicted = func(lru.Key, interface{}) {
		c.evictions++
	}
	return c
}

// Get returns a copy of the cached result, so callers can't mutate the entry.
func (c *LRU) Get(key string) (*model.LookupResult, bool) {
	c.Lock()
	defer c.Unlock()

	v, ok := c.cache.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	result := *v.(*model.LookupResult)
	return &result, true
}

func (c *LRU) Add(key string, result *model.LookupResult) {
	stored := *result

	c.Lock()
	defer c.Unlock()
	c.cache.Add(key, &stored)
}

func (c *LRU) Len() int {
	c.Lock()
	defer c.Unlock()
	return c.cache.Len()
}

func (c *LRU) Stats() Stats {
	c.Lock()
	defer c.Unlock()
	return Stats{
		Entries:   c.cache.Len(),
		Capacity:  c.cache.MaxEntries,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

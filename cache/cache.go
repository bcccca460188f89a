// Package cache holds recently extracted results so repeat scrapes of
// the same (url, spec) pair can be answered without a browser session,
// when the caller permits a max age.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/harvester/models"
)

type entry struct {
	key       string
	response  *models.ScrapeResponse
	createdAt time.Time
}

// Cache is a bounded in-memory LRU of successful scrape responses.
// Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	store      map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int

	// now is injectable for expiry tests.
	now func() time.Time
}

// New creates a Cache holding at most maxEntries responses. A
// background goroutine evicts entries older than 1 hour every 5
// minutes regardless of use.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
	go c.cleanupLoop()
	return c
}

// Key derives the cache key from the target URL and extraction spec.
func Key(url, spec string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(spec))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached response younger than maxAge seconds. maxAge <= 0
// disables lookup entirely.
func (c *Cache) Get(key string, maxAgeSec int) (*models.ScrapeResponse, bool) {
	if maxAgeSec <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.store[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.createdAt) > time.Duration(maxAgeSec)*time.Second {
		c.order.Remove(el)
		delete(c.store, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.response, true
}

// Set stores a response, evicting the least recently used entry when at
// capacity. Only successful responses belong here; callers must not
// cache failures.
func (c *Cache) Set(key string, resp *models.ScrapeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.store[key]; ok {
		el.Value.(*entry).response = resp
		el.Value.(*entry).createdAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if len(c.store) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.store, oldest.Value.(*entry).key)
		}
	}

	c.store[key] = c.order.PushFront(&entry{
		key:       key,
		response:  resp,
		createdAt: c.now(),
	})
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := c.now().Add(-1 * time.Hour)
		c.mu.Lock()
		for key, el := range c.store {
			if el.Value.(*entry).createdAt.Before(cutoff) {
				c.order.Remove(el)
				delete(c.store, key)
			}
		}
		c.mu.Unlock()
	}
}

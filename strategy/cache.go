package strategy

import "sync"

// DomainCache records which strategies succeeded or failed per domain.
// It is an explicitly constructed store shared across concurrent scrape
// calls; reads dominate writes, so it is guarded by an RWMutex.
type DomainCache struct {
	mu        sync.RWMutex
	successes map[string]Name
	failures  map[string]map[Name]struct{}
}

// NewDomainCache creates an empty cache.
func NewDomainCache() *DomainCache {
	return &DomainCache{
		successes: make(map[string]Name),
		failures:  make(map[string]map[Name]struct{}),
	}
}

// Success returns the last strategy that succeeded for domain, if any.
func (c *DomainCache) Success(domain string) (Name, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.successes[domain]
	return name, ok
}

// HasFailed reports whether the strategy is recorded as failed for domain.
func (c *DomainCache) HasFailed(domain string, name Name) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.failures[domain][name]
	return ok
}

// RecordSuccess remembers a working strategy for domain and clears it
// from the domain's failure set.
func (c *DomainCache) RecordSuccess(domain string, name Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes[domain] = name
	if set, ok := c.failures[domain]; ok {
		delete(set, name)
	}
}

// RecordFailure adds the strategy to the domain's failure set. A cached
// success for the same strategy is dropped so the next call does not
// repeat a strategy that has just stopped working.
func (c *DomainCache) RecordFailure(domain string, name Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.failures[domain]
	if !ok {
		set = make(map[Name]struct{})
		c.failures[domain] = set
	}
	set[name] = struct{}{}
	if c.successes[domain] == name {
		delete(c.successes, domain)
	}
}

// Reset clears all recorded history. Intended for tests.
func (c *DomainCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = make(map[string]Name)
	c.failures = make(map[string]map[Name]struct{})
}

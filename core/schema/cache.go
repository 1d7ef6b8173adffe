package schema

import (
	"crypto/sha256"
	"sync"
)

// Cache shares parsed descriptor trees across configuration documents.
// Keys are content fingerprints, so identical schema text parses once
// and every document for that schema version reuses the same immutable
// tree. Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	trees map[[sha256.Size]byte]*Descriptor
}

// NewCache creates an empty schema cache.
func NewCache() *Cache {
	return &Cache{trees: make(map[[sha256.Size]byte]*Descriptor)}
}

// GetOrParse returns the descriptor tree for the given schema bytes,
// parsing on first sight. The second return reports whether the tree
// came from the cache. Parse failures are not cached; the same bytes
// fail the same way on every call.
func (c *Cache) GetOrParse(data []byte) (*Descriptor, bool, error) {
	sum := sha256.Sum256(data)

	c.mu.RLock()
	d, ok := c.trees[sum]
	c.mu.RUnlock()
	if ok {
		return d, true, nil
	}

	d, err := Parse(data)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.trees[sum]; ok {
		// lost the race; keep the first tree so pointers stay stable
		return existing, true, nil
	}
	c.trees[sum] = d
	return d, false, nil
}

// Len returns the number of distinct schema versions cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.trees)
}

// Purge drops every cached tree.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees = make(map[[sha256.Size]byte]*Descriptor)
}

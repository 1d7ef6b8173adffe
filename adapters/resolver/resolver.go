// Package resolver provides VariantResolver implementations.
package resolver

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/artpar/conftree/ports"
)

// Static answers candidate lookups from a fixed in-memory table.
type Static map[string][]string

// Candidates returns a copy of the named collection.
func (s Static) Candidates(name string) ([]string, error) {
	vals, ok := s[name]
	if !ok {
		return nil, ports.ErrUnknownSource
	}
	out := make([]string, len(vals))
	copy(out, vals)
	return out, nil
}

// Ensure interface compliance.
var _ ports.VariantResolver = Static{}

// FromFile loads a Static table from a YAML file mapping collection
// names to value lists.
func FromFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variant sources: %w", err)
	}
	var table map[string][]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse variant sources: %w", err)
	}
	return Static(table), nil
}

// Cached wraps another resolver and remembers its answers. Lookups run
// on every validated write, so a slow backing resolver would otherwise
// be hit per keystroke.
type Cached struct {
	mu      sync.RWMutex
	backing ports.VariantResolver
	answers map[string][]string
}

// NewCached creates a caching wrapper around backing.
func NewCached(backing ports.VariantResolver) *Cached {
	return &Cached{backing: backing, answers: make(map[string][]string)}
}

// Candidates returns the cached answer, asking the backing resolver on
// first use. Errors are not cached.
func (c *Cached) Candidates(name string) ([]string, error) {
	c.mu.RLock()
	vals, ok := c.answers[name]
	c.mu.RUnlock()
	if ok {
		out := make([]string, len(vals))
		copy(out, vals)
		return out, nil
	}

	vals, err := c.backing.Candidates(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.answers[name] = vals
	c.mu.Unlock()

	out := make([]string, len(vals))
	copy(out, vals)
	return out, nil
}

// Forget drops one cached answer, forcing a fresh lookup.
func (c *Cached) Forget(name string) {
	c.mu.Lock()
	delete(c.answers, name)
	c.mu.Unlock()
}

// Ensure interface compliance.
var _ ports.VariantResolver = (*Cached)(nil)

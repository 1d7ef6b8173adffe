// Package structure provides StructureValidator implementations.
package structure

import (
	"fmt"
	"sync"

	"github.com/artpar/conftree/ports"
)

// Rule checks one structure value and returns the normalized form to
// store, or an error describing the rejection.
type Rule func(value any) (any, error)

// Registry maps rule names to validation functions. Register everything
// before handing the registry to a tree; trees check rule coverage up
// front.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register adds a rule under the given name, replacing any previous one.
func (r *Registry) Register(name string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[name] = rule
}

// Has reports whether a rule is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[name]
	return ok
}

// Names lists the registered rules.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules))
	for name := range r.rules {
		out = append(out, name)
	}
	return out
}

// Validate runs the named rule against value.
func (r *Registry) Validate(name string, value any) (any, error) {
	r.mu.RLock()
	rule, ok := r.rules[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ports.ErrUnknownRule
	}
	return rule(value)
}

// Ensure interface compliance.
var _ ports.StructureValidator = (*Registry)(nil)

// ObjectWithKeys builds a rule that accepts objects carrying at least
// the given keys. A starting point for schemas that only need shape
// checks.
func ObjectWithKeys(keys ...string) Rule {
	return func(value any) (any, error) {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("must be an object, got %T", value)
		}
		for _, k := range keys {
			if _, ok := m[k]; !ok {
				return nil, fmt.Errorf("missing key %q", k)
			}
		}
		return m, nil
	}
}

// StringList builds a rule that accepts arrays of strings.
func StringList() Rule {
	return func(value any) (any, error) {
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("must be an array, got %T", value)
		}
		for i, item := range items {
			if _, ok := item.(string); !ok {
				return nil, fmt.Errorf("element %d must be a string, got %T", i, item)
			}
		}
		return items, nil
	}
}

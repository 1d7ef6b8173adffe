// Package formatter provides a pluggable output formatting system for
// configuration trees, diffs, and version history. Formatters register
// themselves by name; commands pick one with --output.
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

// Formatter renders configuration data in a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// FormatTree renders the current values of a configuration tree,
	// fields in declaration order, secrets masked unless opts.Reveal.
	FormatTree(w io.Writer, name string, tr *tree.Tree, opts FormatOptions) error

	// FormatDiff renders field-level changes between two documents.
	FormatDiff(w io.Writer, name string, changes []diff.Change, opts FormatOptions) error

	// FormatHistory renders stored versions, newest first. Only version
	// metadata is rendered, never the document payload.
	FormatHistory(w io.Writer, name string, records []ports.Stored, opts FormatOptions) error

	// FormatError formats an error.
	FormatError(w io.Writer, err error) error
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Reveal prints real secret values instead of the mask.
	Reveal bool

	// NoHeader disables header rows for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (for json).
	Compact bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int
}

// treePolicy maps the reveal flag to a serialization policy.
func treePolicy(opts FormatOptions) tree.SecretPolicy {
	if opts.Reveal {
		return tree.ResendSecrets
	}
	return tree.MaskSecrets
}

// leafValue reads a leaf respecting the reveal flag.
func leafValue(n *tree.Node, opts FormatOptions) any {
	if opts.Reveal {
		return n.Reveal()
	}
	return n.Get()
}

// historyEntry is the renderable view of one stored version.
type historyEntry struct {
	Version     int64     `json:"version" yaml:"version"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	SchemaHash  string    `json:"schema_hash,omitempty" yaml:"schema_hash,omitempty"`
}

func historyView(records []ports.Stored) []historyEntry {
	out := make([]historyEntry, len(records))
	for i, r := range records {
		out[i] = historyEntry{
			Version:     r.Version,
			CreatedAt:   r.CreatedAt,
			Description: r.Description,
			SchemaHash:  r.SchemaHash,
		}
	}
	return out
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}

	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Default returns the default formatter.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[r.defaultFmt]
	if !ok {
		// Fallback to first available
		for _, fmt := range r.formatters {
			return fmt
		}
		return nil
	}
	return f
}

// SetDefault sets the default formatter.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[name]; !exists {
		return fmt.Errorf("formatter %q not registered", name)
	}

	r.defaultFmt = name
	return nil
}

// List returns all registered formatter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(f Formatter) error {
	return DefaultRegistry.Register(f)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, bool) {
	return DefaultRegistry.Get(name)
}

// Default returns the default formatter from the default registry.
func Default() Formatter {
	return DefaultRegistry.Default()
}

// List returns all formatter names from the default registry.
func List() []string {
	return DefaultRegistry.List()
}

package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatTree formats the document as JSON with group keys in
// declaration order.
func (f *JSONFormatter) FormatTree(w io.Writer, name string, tr *tree.Tree, opts FormatOptions) error {
	doc, err := tr.SerializeJSONWithPolicy(treePolicy(opts))
	if err != nil {
		return err
	}

	output := struct {
		Name    string          `json:"name"`
		Version int64           `json:"version"`
		Values  json.RawMessage `json:"values"`
	}{
		Name:    name,
		Version: tr.Version(),
		Values:  doc,
	}

	return f.encode(w, output, opts.Compact)
}

// FormatDiff formats changes as JSON.
func (f *JSONFormatter) FormatDiff(w io.Writer, name string, changes []diff.Change, opts FormatOptions) error {
	if changes == nil {
		changes = []diff.Change{}
	}

	output := struct {
		Name    string        `json:"name"`
		Count   int           `json:"count"`
		Changes []diff.Change `json:"changes"`
	}{
		Name:    name,
		Count:   len(changes),
		Changes: changes,
	}

	return f.encode(w, output, opts.Compact)
}

// FormatHistory formats stored versions as JSON.
func (f *JSONFormatter) FormatHistory(w io.Writer, name string, records []ports.Stored, opts FormatOptions) error {
	output := struct {
		Name     string         `json:"name"`
		Count    int            `json:"count"`
		Versions []historyEntry `json:"versions"`
	}{
		Name:     name,
		Count:    len(records),
		Versions: historyView(records),
	}

	return f.encode(w, output, opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}

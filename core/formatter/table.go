package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatTree formats the document as one row per field, in declaration
// order. Inactive groups and unset lists print a single row at the
// container path.
func (f *TableFormatter) FormatTree(w io.Writer, name string, tr *tree.Tree, opts FormatOptions) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if !opts.NoHeader {
		fmt.Fprintln(tw, "PATH\tTYPE\tVALUE")
	}

	for _, c := range tr.Root().Children() {
		f.writeNode(tw, c, opts)
	}

	return tw.Flush()
}

func (f *TableFormatter) writeNode(tw *tabwriter.Writer, n *tree.Node, opts FormatOptions) {
	d := n.Descriptor()
	switch d.Kind {
	case schema.KindGroup:
		for _, c := range n.Children() {
			f.writeNode(tw, c, opts)
		}

	case schema.KindActivatableGroup:
		if !n.Active() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Path(), d.Kind, "-")
			return
		}
		for _, c := range n.Children() {
			f.writeNode(tw, c, opts)
		}

	case schema.KindList:
		if n.Get() == nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Path(), d.Kind, "-")
			return
		}
		if n.Len() == 0 {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Path(), d.Kind, "[]")
			return
		}
		for _, e := range n.Elems() {
			f.writeNode(tw, e, opts)
		}

	default:
		val := f.formatValue(leafValue(n, opts), opts.MaxWidth)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Path(), d.Kind, val)
	}
}

// FormatDiff formats changes as a table.
func (f *TableFormatter) FormatDiff(w io.Writer, name string, changes []diff.Change, opts FormatOptions) error {
	if len(changes) == 0 {
		fmt.Fprintln(w, "No changes.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if !opts.NoHeader {
		fmt.Fprintln(tw, "PATH\tPREVIOUS\tCURRENT")
	}

	for _, c := range changes {
		prev := f.formatValue(c.Previous, opts.MaxWidth)
		curr := f.formatValue(c.Current, opts.MaxWidth)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Path, prev, curr)
	}

	return tw.Flush()
}

// FormatHistory formats stored versions as a table.
func (f *TableFormatter) FormatHistory(w io.Writer, name string, records []ports.Stored, opts FormatOptions) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No versions found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if !opts.NoHeader {
		fmt.Fprintln(tw, "VERSION\tCREATED\tDESCRIPTION")
	}

	for _, r := range records {
		desc := r.Description
		if desc == "" {
			desc = "-"
		}
		if opts.MaxWidth > 0 && len(desc) > opts.MaxWidth {
			desc = desc[:opts.MaxWidth-3] + "..."
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Version, r.CreatedAt.Format(time.RFC3339), desc)
	}

	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		if v {
			str = "true"
		} else {
			str = "false"
		}
	case json.Number:
		str = v.String()
	default:
		b, _ := json.Marshal(v)
		str = string(b)
	}

	// Multiline values would break row alignment.
	str = strings.ReplaceAll(str, "\n", `\n`)

	if maxWidth > 0 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}

	return str
}

func init() {
	Register(NewTableFormatter())
}

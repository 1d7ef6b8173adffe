package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatTree formats the document as YAML. Group keys keep declaration
// order, which a plain map marshal would sort away.
func (f *YAMLFormatter) FormatTree(w io.Writer, name string, tr *tree.Tree, opts FormatOptions) error {
	values, err := treeNode(tr.Root(), opts)
	if err != nil {
		return err
	}

	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	root.Content = append(root.Content,
		strNode("name"), strNode(name),
		strNode("version"), intNode(tr.Version()),
		strNode("values"), values,
	)

	return f.encode(w, root)
}

// FormatDiff formats changes as YAML.
func (f *YAMLFormatter) FormatDiff(w io.Writer, name string, changes []diff.Change, opts FormatOptions) error {
	view := make([]diff.Change, len(changes))
	for i, c := range changes {
		view[i] = diff.Change{
			Path:     c.Path,
			Previous: yamlValue(c.Previous),
			Current:  yamlValue(c.Current),
		}
	}

	output := struct {
		Name    string        `yaml:"name"`
		Count   int           `yaml:"count"`
		Changes []diff.Change `yaml:"changes"`
	}{
		Name:    name,
		Count:   len(view),
		Changes: view,
	}

	return f.encode(w, output)
}

// FormatHistory formats stored versions as YAML.
func (f *YAMLFormatter) FormatHistory(w io.Writer, name string, records []ports.Stored, opts FormatOptions) error {
	output := struct {
		Name     string         `yaml:"name"`
		Count    int            `yaml:"count"`
		Versions []historyEntry `yaml:"versions"`
	}{
		Name:     name,
		Count:    len(records),
		Versions: historyView(records),
	}

	return f.encode(w, output)
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output)
}

// encode writes YAML to the writer.
func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(data)
}

// treeNode converts a configuration node into a yaml document node,
// keeping group children in declaration order.
func treeNode(n *tree.Node, opts FormatOptions) (*yaml.Node, error) {
	switch n.Descriptor().Kind {
	case schema.KindGroup:
		return groupNode(n, opts)

	case schema.KindActivatableGroup:
		if !n.Active() {
			return nullNode(), nil
		}
		return groupNode(n, opts)

	case schema.KindList:
		if n.Get() == nil {
			return nullNode(), nil
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range n.Elems() {
			en, err := treeNode(e, opts)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, en)
		}
		return seq, nil

	default:
		return valueNode(leafValue(n, opts))
	}
}

func groupNode(n *tree.Node, opts FormatOptions) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, c := range n.Children() {
		cn, err := treeNode(c, opts)
		if err != nil {
			return nil, err
		}
		m.Content = append(m.Content, strNode(c.Descriptor().Name), cn)
	}
	return m, nil
}

// valueNode converts a plain Go value to a yaml node. json.Number keeps
// its decimal text instead of passing through a float.
func valueNode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case nil:
		return nullNode(), nil

	case string:
		return strNode(x), nil

	case bool:
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(x)}
		return n, nil

	case json.Number:
		n := &yaml.Node{Kind: yaml.ScalarNode, Value: x.String()}
		if strings.ContainsAny(n.Value, ".eE") {
			n.Tag = "!!float"
		} else {
			n.Tag = "!!int"
		}
		return n, nil

	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range keys {
			vn, err := valueNode(x[k])
			if err != nil {
				return nil, err
			}
			m.Content = append(m.Content, strNode(k), vn)
		}
		return m, nil

	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range x {
			en, err := valueNode(e)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, en)
		}
		return seq, nil

	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, err
		}
		return n, nil
	}
}

// yamlValue rewrites json.Number values so they marshal as numbers
// rather than quoted strings.
func yamlValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()

	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = yamlValue(e)
		}
		return out

	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = yamlValue(e)
		}
		return out

	default:
		return v
	}
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intNode(v int64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v, 10)}
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

func init() {
	if err := Register(NewYAMLFormatter()); err != nil {
		fmt.Printf("failed to register yaml formatter: %v\n", err)
	}
}

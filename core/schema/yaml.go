package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLToJSON converts a YAML document to JSON bytes. Mapping keys keep
// their declared order, which the parser needs for group children.
func YAMLToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty yaml document")
	}

	var buf bytes.Buffer
	if err := encodeYAMLNode(&buf, doc.Content[0]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeYAMLNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encodeYAMLNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeYAMLNode(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case yaml.ScalarNode:
		return encodeYAMLScalar(buf, n)

	case yaml.AliasNode:
		return encodeYAMLNode(buf, n.Alias)

	default:
		return fmt.Errorf("unsupported yaml node kind %d", n.Kind)
	}
}

func encodeYAMLScalar(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Tag {
	case "!!null":
		buf.WriteString("null")
		return nil

	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return fmt.Errorf("decode bool %q: %w", n.Value, err)
		}
		if b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil

	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return fmt.Errorf("decode integer %q: %w", n.Value, err)
		}
		out, err := json.Marshal(i)
		if err != nil {
			return err
		}
		buf.Write(out)
		return nil

	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return fmt.Errorf("decode number %q: %w", n.Value, err)
		}
		out, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode number %q: %w", n.Value, err)
		}
		buf.Write(out)
		return nil

	default:
		out, err := json.Marshal(n.Value)
		if err != nil {
			return err
		}
		buf.Write(out)
		return nil
	}
}

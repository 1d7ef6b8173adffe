package tree

import (
	"bytes"
	"encoding/json"

	"github.com/zclconf/go-cty/cty"

	"github.com/artpar/conftree/core/schema"
)

// Serialize renders the tree back to its wire form: deactivated groups
// as null, unset lists as null, secrets with their real values. Loading
// the result into a fresh tree reproduces this one.
func (t *Tree) Serialize() map[string]any {
	m, _ := t.SerializeWithPolicy(ResendSecrets)
	return m
}

// SerializeWithPolicy renders the tree, applying policy to secret
// fields. omitted lists the secret paths the policy dropped.
func (t *Tree) SerializeWithPolicy(policy SecretPolicy) (out map[string]any, omitted []schema.Path) {
	out = t.serializeGroup(t.root, policy, &omitted)
	return out, omitted
}

func (t *Tree) serializeGroup(n *Node, policy SecretPolicy, omitted *[]schema.Path) map[string]any {
	out := make(map[string]any, len(n.children))
	for _, c := range n.children {
		if policy == OmitUnchangedSecrets && c.desc.Kind.IsSecret() && c.unchangedSecret() {
			*omitted = append(*omitted, c.path)
			continue
		}
		out[c.desc.Name] = t.wireValue(c, policy, omitted)
	}
	return out
}

func (t *Tree) wireValue(n *Node, policy SecretPolicy, omitted *[]schema.Path) any {
	switch n.desc.Kind {
	case schema.KindGroup:
		return t.serializeGroup(n, policy, omitted)

	case schema.KindActivatableGroup:
		if !n.active {
			return nil
		}
		return t.serializeGroup(n, policy, omitted)

	case schema.KindList:
		if !n.present {
			return nil
		}
		out := make([]any, len(n.elems))
		for i, e := range n.elems {
			out[i] = t.wireValue(e, policy, omitted)
		}
		return out

	case schema.KindSecret, schema.KindSecretMap:
		if policy == MaskSecrets {
			return n.displayValue(true)
		}
		return ctyToAny(n.value)

	default:
		return ctyToAny(n.value)
	}
}

// unchangedSecret reports whether this secret still holds the value it
// was loaded with.
func (n *Node) unchangedSecret() bool {
	return n.loaded != cty.NilVal && n.value.RawEquals(n.loaded)
}

// SerializeJSON renders the tree as JSON bytes with group keys in
// declaration order and map keys sorted, so equal trees produce equal
// bytes. Numbers keep their exact decimal text.
func (t *Tree) SerializeJSON() ([]byte, error) {
	return t.SerializeJSONWithPolicy(ResendSecrets)
}

// SerializeJSONWithPolicy renders declaration-ordered JSON, applying
// policy to secret fields. MaskSecrets output is for display; loading
// it back would overwrite secrets with the mask string.
func (t *Tree) SerializeJSONWithPolicy(policy SecretPolicy) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.encodeGroupJSON(&buf, t.root, policy); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Tree) encodeGroupJSON(buf *bytes.Buffer, n *Node, policy SecretPolicy) error {
	buf.WriteByte('{')
	first := true
	for _, c := range n.children {
		if policy == OmitUnchangedSecrets && c.desc.Kind.IsSecret() && c.unchangedSecret() {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(c.desc.Name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := t.encodeNodeJSON(buf, c, policy); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (t *Tree) encodeNodeJSON(buf *bytes.Buffer, n *Node, policy SecretPolicy) error {
	switch n.desc.Kind {
	case schema.KindGroup:
		return t.encodeGroupJSON(buf, n, policy)

	case schema.KindActivatableGroup:
		if !n.active {
			buf.WriteString("null")
			return nil
		}
		return t.encodeGroupJSON(buf, n, policy)

	case schema.KindList:
		if !n.present {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('[')
		for i, e := range n.elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := t.encodeNodeJSON(buf, e, policy); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case schema.KindSecret, schema.KindSecretMap:
		if policy == MaskSecrets {
			return encodeValueJSON(buf, n.displayValue(true))
		}
		return encodeValueJSON(buf, ctyToAny(n.value))

	default:
		return encodeValueJSON(buf, ctyToAny(n.value))
	}
}

func encodeValueJSON(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case json.Number:
		buf.WriteString(x.String())
		return nil
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range sortedKeys(x) {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeValueJSON(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValueJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

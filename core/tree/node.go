package tree

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/artpar/conftree/core/schema"
)

// Node is the mutable holder of one field's current value, paired with
// its shared, read-only descriptor. Nodes are created by a Tree and
// stay owned by it; do not retain them across tree rebuilds.
type Node struct {
	desc *schema.Descriptor
	tree *Tree
	path schema.Path

	value  cty.Value // leaf kinds; groups and lists assemble on demand
	loaded cty.Value // value at load time, NilVal for nodes created since

	active bool // activatable groups only
	dirty  bool

	children []*Node // group kinds
	byName   map[string]*Node

	elems   []*Node // list elements
	present bool    // false means the list itself is unset (null)
}

// Descriptor returns the field definition this node carries values for.
func (n *Node) Descriptor() *schema.Descriptor {
	return n.desc
}

// Path returns the node's absolute location in the tree.
func (n *Node) Path() schema.Path {
	return n.path
}

// Dirty reports whether this node's value changed since load.
func (n *Node) Dirty() bool {
	return n.dirty
}

// Active reports the activation state. True for every kind except a
// deactivated ActivatableGroup.
func (n *Node) Active() bool {
	if n.desc.Kind == schema.KindActivatableGroup {
		return n.active
	}
	return true
}

// Len returns the element count of a list node.
func (n *Node) Len() int {
	return len(n.elems)
}

// Children returns a group's member nodes in declaration order. Nil for
// non-group kinds.
func (n *Node) Children() []*Node {
	return n.children
}

// Elems returns a list's element nodes in order. Nil for non-list kinds
// and for unset lists.
func (n *Node) Elems() []*Node {
	return n.elems
}

// Get returns the node's current value in plain Go form: groups as
// map[string]any, lists as []any, numbers as json.Number. Secret values
// come back masked; use Reveal to read them.
func (n *Node) Get() any {
	return n.displayValue(true)
}

// Reveal returns the value with secrets in the clear. Callers are
// responsible for deciding who may see it.
func (n *Node) Reveal() any {
	return n.displayValue(false)
}

func (n *Node) displayValue(masked bool) any {
	d := n.desc
	switch d.Kind {
	case schema.KindGroup:
		return n.groupDisplay(masked)

	case schema.KindActivatableGroup:
		if !n.active {
			return nil
		}
		return n.groupDisplay(masked)

	case schema.KindList:
		if !n.present {
			return nil
		}
		out := make([]any, len(n.elems))
		for i, e := range n.elems {
			out[i] = e.displayValue(masked)
		}
		return out

	case schema.KindSecret:
		if n.value.IsNull() {
			return nil
		}
		if masked {
			return Mask
		}
		return n.value.AsString()

	case schema.KindSecretMap:
		if n.value.IsNull() {
			return nil
		}
		m := make(map[string]any)
		for it := n.value.ElementIterator(); it.Next(); {
			k, v := it.Element()
			if masked {
				m[k.AsString()] = Mask
			} else {
				m[k.AsString()] = v.AsString()
			}
		}
		return m

	case schema.KindOption:
		if n.value.IsNull() {
			return nil
		}
		for _, o := range d.Options {
			if o.Payload.RawEquals(n.value) {
				return o.Key
			}
		}
		return ctyToAny(n.value)

	default:
		return ctyToAny(n.value)
	}
}

func (n *Node) groupDisplay(masked bool) map[string]any {
	m := make(map[string]any, len(n.children))
	for _, c := range n.children {
		m[c.desc.Name] = c.displayValue(masked)
	}
	return m
}

// Set validates raw and commits it. On failure the tree is unchanged.
// Writing the secret mask back to a secret field is a no-op; the stored
// secret survives. Option fields take the option key, not the payload.
func (n *Node) Set(raw any) error {
	d := n.desc
	if d.ReadOnly {
		return verrf(n.path, d, raw, "field is read-only")
	}

	switch d.Kind {
	case schema.KindGroup, schema.KindActivatableGroup:
		return verrf(n.path, d, nil, "group values are composite; write individual fields")
	case schema.KindList:
		return n.setList(raw)
	case schema.KindSecretMap:
		return n.setSecretMap(raw)
	case schema.KindSecret:
		if s, ok := raw.(string); ok && s == Mask {
			// the mask round-tripping back is not a new secret
			return nil
		}
	}

	val, err := n.tree.validateValue(d, n.path, raw, modeWrite)
	if err != nil {
		return err
	}
	n.commit(val)
	return nil
}

// commit stores a validated value. The dirty flag moves only when the
// value actually changes, so rewriting the current value is free.
func (n *Node) commit(val cty.Value) {
	if val.RawEquals(n.value) {
		return
	}
	n.value = val
	n.dirty = true
}

func (n *Node) setList(raw any) error {
	d := n.desc
	if raw == nil {
		if !d.Nullable {
			return verrf(n.path, d, raw, "null is not allowed")
		}
		if !n.present {
			return nil
		}
		n.elems = nil
		n.present = false
		n.dirty = true
		return nil
	}

	items, err := toSlice(raw)
	if err != nil {
		return verrf(n.path, d, raw, "%v", err)
	}
	if v := d.Constraints.CheckItems(len(items)); v != nil {
		return verrf(n.path, d, raw, "%s", v.Message)
	}

	elems := make([]*Node, len(items))
	for i, item := range items {
		val, verr := n.tree.validateValue(d.Elem, n.path.WithIndex(i), item, modeWrite)
		if verr != nil {
			return verr
		}
		elems[i] = &Node{desc: d.Elem, tree: n.tree, path: n.path.WithIndex(i), value: val, loaded: cty.NilVal}
	}

	if n.present && sameElems(n.elems, elems) {
		return nil
	}
	n.elems = elems
	n.present = true
	n.dirty = true
	return nil
}

func (n *Node) setSecretMap(raw any) error {
	d := n.desc
	if raw == nil {
		if !d.Nullable {
			return verrf(n.path, d, raw, "null is not allowed")
		}
		n.commit(cty.NullVal(cty.Map(cty.String)))
		return nil
	}

	m, err := toStringMap(raw)
	if err != nil {
		return verrf(n.path, d, raw, "%v", err)
	}

	// Masked entries keep their stored counterpart. A masked entry with
	// no stored counterpart is dropped rather than stored literally.
	merged := make(map[string]string, len(m))
	for k, v := range m {
		if v == Mask {
			if old, ok := n.storedEntry(k); ok {
				merged[k] = old
			}
			continue
		}
		merged[k] = v
	}
	n.commit(mapVal(merged))
	return nil
}

func (n *Node) storedEntry(key string) (string, bool) {
	if n.value == cty.NilVal || n.value.IsNull() {
		return "", false
	}
	for it := n.value.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if k.AsString() == key {
			return v.AsString(), true
		}
	}
	return "", false
}

// Activate switches an ActivatableGroup on, seeding its children from
// descriptor defaults. Activating an active group is a no-op.
func (n *Node) Activate() error {
	d := n.desc
	if d.Kind != schema.KindActivatableGroup {
		return verrf(n.path, d, nil, "field is not activatable")
	}
	if d.ReadOnly {
		return verrf(n.path, d, nil, "field is read-only")
	}
	if n.active {
		return nil
	}
	n.children = n.tree.defaultChildren(d)
	n.index()
	n.active = true
	n.dirty = true
	return nil
}

// Deactivate switches an ActivatableGroup off and discards its child
// values. They are not recoverable: a later Activate repopulates from
// descriptor defaults.
func (n *Node) Deactivate() error {
	d := n.desc
	if d.Kind != schema.KindActivatableGroup {
		return verrf(n.path, d, nil, "field is not activatable")
	}
	if d.ReadOnly {
		return verrf(n.path, d, nil, "field is read-only")
	}
	if !n.active {
		return nil
	}
	n.children = nil
	n.byName = nil
	n.active = false
	n.dirty = true
	return nil
}

// Append validates raw as a new last element of a list node.
func (n *Node) Append(raw any) error {
	d := n.desc
	if d.Kind != schema.KindList {
		return verrf(n.path, d, raw, "field is not a list")
	}
	if d.ReadOnly {
		return verrf(n.path, d, raw, "field is read-only")
	}
	if max := d.Constraints.MaxItems; max != nil && len(n.elems)+1 > *max {
		return verrf(n.path, d, raw, "must have at most %d items", *max)
	}

	idx := len(n.elems)
	val, err := n.tree.validateValue(d.Elem, n.path.WithIndex(idx), raw, modeWrite)
	if err != nil {
		return err
	}
	n.elems = append(n.elems, &Node{desc: d.Elem, tree: n.tree, path: n.path.WithIndex(idx), value: val, loaded: cty.NilVal})
	n.present = true
	n.dirty = true
	return nil
}

// RemoveAt deletes the i-th element of a list node.
func (n *Node) RemoveAt(i int) error {
	d := n.desc
	if d.Kind != schema.KindList {
		return verrf(n.path, d, nil, "field is not a list")
	}
	if d.ReadOnly {
		return verrf(n.path, d, nil, "field is read-only")
	}
	if !n.present || i < 0 || i >= len(n.elems) {
		return verrf(n.path, d, nil, "index %d out of range (%d elements)", i, len(n.elems))
	}
	if min := d.Constraints.MinItems; min != nil && len(n.elems)-1 < *min {
		return verrf(n.path, d, nil, "must have at least %d items", *min)
	}

	n.elems = append(n.elems[:i], n.elems[i+1:]...)
	n.reindexElems()
	n.dirty = true
	return nil
}

func (n *Node) reindexElems() {
	for i, e := range n.elems {
		e.path = n.path.WithIndex(i)
	}
}

func (n *Node) index() {
	n.byName = make(map[string]*Node, len(n.children))
	for _, c := range n.children {
		n.byName[c.desc.Name] = c
	}
}

func sameElems(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].value.RawEquals(b[i].value) {
			return false
		}
	}
	return true
}

func toSlice(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be an array, got %T", raw)
	}
}

package tree

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/ports"
)

// Collaborators supplies the external lookups validation may need. Both
// fields may be nil when the schema declares no variant or structure
// fields; a schema that does declare structure fields refuses to build
// without a validator for every rule.
type Collaborators struct {
	Variants   ports.VariantResolver
	Structures ports.StructureValidator
}

// Tree is one configuration document: a mutable value tree mirroring an
// immutable descriptor tree, plus the version counter the owning service
// uses for optimistic concurrency writes. A Tree must not be mutated
// from multiple goroutines; the descriptor tree may be shared freely.
type Tree struct {
	desc    *schema.Descriptor
	root    *Node
	collab  Collaborators
	version int64
}

// FromDefaults builds a tree seeded with every descriptor's default.
// ActivatableGroups whose schema default is non-null start active;
// fields without defaults start unset.
func FromDefaults(desc *schema.Descriptor, collab Collaborators) (*Tree, error) {
	t, err := newTree(desc, collab)
	if err != nil {
		return nil, err
	}
	t.root = t.defaultNode(desc)
	return t, nil
}

// FromDocument maps an existing wire document onto a fresh tree. The
// document must fit the descriptor tree exactly: unknown keys, missing
// required keys and mistyped values fail with SchemaMismatchError.
func FromDocument(desc *schema.Descriptor, doc map[string]any, collab Collaborators) (*Tree, error) {
	t, err := newTree(desc, collab)
	if err != nil {
		return nil, err
	}
	root, err := t.decodeGroup(desc, schema.Path{}, doc)
	if err != nil {
		return nil, err
	}
	t.root = root
	if err := t.recheckVariants(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromDocumentJSON decodes data and builds the tree. Numbers keep their
// exact decimal value.
func FromDocumentJSON(desc *schema.Descriptor, data []byte, collab Collaborators) (*Tree, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, &SchemaMismatchError{Path: "/", Reason: fmt.Sprintf("document must be a JSON object: %v", err)}
	}
	return FromDocument(desc, doc, collab)
}

func newTree(desc *schema.Descriptor, collab Collaborators) (*Tree, error) {
	if desc == nil || desc.Kind != schema.KindGroup {
		return nil, fmt.Errorf("root descriptor must be a group")
	}
	t := &Tree{desc: desc, collab: collab}
	if err := t.checkRules(desc); err != nil {
		return nil, err
	}
	return t, nil
}

// checkRules verifies every structure rule has a validator before any
// value work begins. An unresolvable rule is a schema fault, not a
// per-value failure.
func (t *Tree) checkRules(d *schema.Descriptor) error {
	if d.Kind == schema.KindStructure {
		if t.collab.Structures == nil || !t.collab.Structures.Has(d.Rule) {
			return &schema.SchemaError{
				Path:   d.Path().String(),
				Reason: fmt.Sprintf("structure rule %q has no validator", d.Rule),
			}
		}
	}
	for _, c := range d.Children {
		if err := t.checkRules(c); err != nil {
			return err
		}
	}
	if d.Elem != nil {
		return t.checkRules(d.Elem)
	}
	return nil
}

func (t *Tree) defaultNode(d *schema.Descriptor) *Node {
	n := &Node{desc: d, tree: t, path: d.Path()}
	switch d.Kind {
	case schema.KindGroup:
		n.children = t.defaultChildren(d)
		n.index()

	case schema.KindActivatableGroup:
		if d.DefaultActive() {
			n.active = true
			n.children = t.defaultChildren(d)
			n.index()
		}

	case schema.KindList:
		if d.HasDefault && !d.Default.IsNull() {
			n.present = true
			i := 0
			for it := d.Default.ElementIterator(); it.Next(); {
				_, ev := it.Element()
				n.elems = append(n.elems, &Node{
					desc: d.Elem, tree: t, path: d.Path().WithIndex(i),
					value: ev, loaded: ev,
				})
				i++
			}
		}

	default:
		if d.HasDefault {
			n.value = d.Default
		} else {
			n.value = cty.NullVal(nullType(d))
		}
		n.loaded = n.value
	}
	return n
}

func (t *Tree) defaultChildren(d *schema.Descriptor) []*Node {
	out := make([]*Node, len(d.Children))
	for i, c := range d.Children {
		out[i] = t.defaultNode(c)
	}
	return out
}

// unsetNode builds the node for a key the document left out: null for
// leaves, deactivated for activatable groups, unset for lists.
func (t *Tree) unsetNode(d *schema.Descriptor) *Node {
	n := &Node{desc: d, tree: t, path: d.Path()}
	switch d.Kind {
	case schema.KindGroup:
		n.children = make([]*Node, len(d.Children))
		for i, c := range d.Children {
			n.children[i] = t.unsetNode(c)
		}
		n.index()
	case schema.KindActivatableGroup, schema.KindList:
		// stays deactivated / unset
	default:
		n.value = cty.NullVal(nullType(d))
		n.loaded = n.value
	}
	return n
}

func (t *Tree) decodeGroup(d *schema.Descriptor, p schema.Path, raw map[string]any) (*Node, error) {
	for k := range raw {
		if d.Child(k) == nil {
			return nil, mismatch(p.Child(k), "unknown key %q", k)
		}
	}

	n := &Node{desc: d, tree: t, path: d.Path()}
	n.children = make([]*Node, 0, len(d.Children))
	for _, c := range d.Children {
		cp := p.Child(c.Name)
		rv, ok := raw[c.Name]

		var child *Node
		var err error
		switch {
		case !ok && c.Required:
			return nil, mismatch(cp, "missing required key")
		case !ok, rv == nil:
			// an explicit null reads the same as a missing key: unset.
			// The serializer writes unset fields as null, so anything it
			// produced must load back.
			child = t.unsetNode(c)
		default:
			child, err = t.decodeNode(c, cp, rv)
			if err != nil {
				return nil, err
			}
		}
		n.children = append(n.children, child)
	}
	n.index()
	return n, nil
}

// decodeNode maps one non-null document value onto a node. Nulls never
// reach here; decodeGroup turns them into unset nodes.
func (t *Tree) decodeNode(d *schema.Descriptor, p schema.Path, raw any) (*Node, error) {
	switch d.Kind {
	case schema.KindGroup:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, mismatch(p, "must be an object, got %T", raw)
		}
		return t.decodeGroup(d, p, m)

	case schema.KindActivatableGroup:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, mismatch(p, "must be an object or null, got %T", raw)
		}
		n, err := t.decodeGroup(d, p, m)
		if err != nil {
			return nil, err
		}
		n.active = true
		return n, nil

	case schema.KindList:
		items, ok := raw.([]any)
		if !ok {
			return nil, mismatch(p, "must be an array, got %T", raw)
		}
		n := &Node{desc: d, tree: t, path: d.Path()}
		if v := d.Constraints.CheckItems(len(items)); v != nil {
			return nil, mismatch(p, "%s", v.Message)
		}
		n.present = true
		for i, item := range items {
			ep := p.WithIndex(i)
			val, err := t.validateValue(d.Elem, ep, item, modeWire)
			if err != nil {
				return nil, wireErr(err)
			}
			n.elems = append(n.elems, &Node{desc: d.Elem, tree: t, path: ep, value: val, loaded: val})
		}
		return n, nil

	default:
		val, err := t.validateValue(d, p, raw, modeWire)
		if err != nil {
			return nil, wireErr(err)
		}
		return &Node{desc: d, tree: t, path: d.Path(), value: val, loaded: val}, nil
	}
}

// wireErr adapts a value failure during load into the load taxonomy.
// Schema faults pass through untouched.
func wireErr(err error) error {
	if ve, ok := err.(*ValidationError); ok {
		return &SchemaMismatchError{Path: ve.Path, Reason: ve.Reason, cause: ve}
	}
	return err
}

// recheckVariants runs variant membership once the whole tree exists.
// Wire decode defers it because config-sourced candidates live in the
// same document being loaded.
func (t *Tree) recheckVariants() error {
	var firstErr error
	walkNodes(t.root, func(n *Node) {
		if firstErr != nil || n.desc.Kind != schema.KindVariant {
			return
		}
		if n.value == cty.NilVal || n.value.IsNull() {
			return
		}
		if _, err := t.validateVariant(n.desc, n.path, n.value.AsString()); err != nil {
			firstErr = wireErr(err)
		}
	})
	return firstErr
}

func walkNodes(n *Node, fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		walkNodes(c, fn)
	}
	for _, e := range n.elems {
		walkNodes(e, fn)
	}
}

// Root returns the top-level group node.
func (t *Tree) Root() *Node {
	return t.root
}

// Descriptor returns the schema this tree was built against.
func (t *Tree) Descriptor() *schema.Descriptor {
	return t.desc
}

// Version returns the optimistic-concurrency counter loaded with the
// document.
func (t *Tree) Version() int64 {
	return t.version
}

// SetVersion records the counter the owning service returned. The tree
// never bumps it on its own.
func (t *Tree) SetVersion(v int64) {
	t.version = v
}

// Resolve walks a path to its value node. Failures carry the shortest
// failing prefix: NotFound for a name or index that does not exist,
// NotAddressable for descending into a deactivated group, an invisible
// field, or a leaf.
func (t *Tree) Resolve(p schema.Path) (*Node, error) {
	cur := t.root
	for i, seg := range p {
		prefix := p[:i+1]

		switch cur.desc.Kind {
		case schema.KindGroup:
		case schema.KindActivatableGroup:
			if !cur.active {
				return nil, schema.NotAddressable(p[:i], "group is deactivated")
			}
		default:
			return nil, schema.NotAddressable(p[:i], fmt.Sprintf("%s fields have no children", cur.desc.Kind))
		}

		child := cur.byName[seg.Name]
		if child == nil {
			return nil, schema.NotFound(prefix, "no such field")
		}
		if child.desc.Meta.IsInvisible {
			return nil, schema.NotAddressable(prefix, "field is not addressable")
		}
		cur = child

		if seg.Index >= 0 {
			if cur.desc.Kind != schema.KindList {
				return nil, schema.NotAddressable(prefix, "field is not a list")
			}
			if !cur.present || seg.Index >= len(cur.elems) {
				return nil, schema.NotFound(prefix, fmt.Sprintf("list has %d elements", len(cur.elems)))
			}
			cur = cur.elems[seg.Index]
		}
	}
	return cur, nil
}

// Lookup resolves a textual path.
func (t *Tree) Lookup(path string) (*Node, error) {
	p, err := schema.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return t.Resolve(p)
}

// Get reads the value at path, secrets masked.
func (t *Tree) Get(path string) (any, error) {
	n, err := t.Lookup(path)
	if err != nil {
		return nil, err
	}
	return n.Get(), nil
}

// Reveal reads the value at path with secrets in the clear.
func (t *Tree) Reveal(path string) (any, error) {
	n, err := t.Lookup(path)
	if err != nil {
		return nil, err
	}
	return n.Reveal(), nil
}

// Set writes a value at path. See Node.Set.
func (t *Tree) Set(path string, raw any) error {
	n, err := t.Lookup(path)
	if err != nil {
		return err
	}
	return n.Set(raw)
}

// Activate switches on the activatable group at path.
func (t *Tree) Activate(path string) error {
	n, err := t.Lookup(path)
	if err != nil {
		return err
	}
	return n.Activate()
}

// Deactivate switches off the activatable group at path.
func (t *Tree) Deactivate(path string) error {
	n, err := t.Lookup(path)
	if err != nil {
		return err
	}
	return n.Deactivate()
}

// Append adds an element to the list at path.
func (t *Tree) Append(path string, raw any) error {
	n, err := t.Lookup(path)
	if err != nil {
		return err
	}
	return n.Append(raw)
}

// RemoveAt deletes element i of the list at path.
func (t *Tree) RemoveAt(path string, i int) error {
	n, err := t.Lookup(path)
	if err != nil {
		return err
	}
	return n.RemoveAt(i)
}

// Dirty reports whether any node changed since load.
func (t *Tree) Dirty() bool {
	dirty := false
	walkNodes(t.root, func(n *Node) {
		dirty = dirty || n.dirty
	})
	return dirty
}

// DirtyPaths lists every changed node, outermost first.
func (t *Tree) DirtyPaths() []schema.Path {
	var out []schema.Path
	walkNodes(t.root, func(n *Node) {
		if n.dirty {
			out = append(out, n.path)
		}
	})
	return out
}

// MarkSaved re-baselines change tracking after a successful persist:
// every current value becomes the stored value, so Dirty reports false
// and unchanged secrets are recognized as unchanged again.
func (t *Tree) MarkSaved() {
	walkNodes(t.root, func(n *Node) {
		n.loaded = n.value
		n.dirty = false
	})
}

// MarkChangedSince compares this tree against base and flags every
// differing node as changed. Both trees must come from the same
// descriptor. Used after a document merge so surviving local edits
// stay visible as pending.
func (t *Tree) MarkChangedSince(base *Tree) {
	markChanged(t.root, base.root)
}

func markChanged(n, b *Node) {
	switch n.desc.Kind {
	case schema.KindGroup:
		for i, c := range n.children {
			markChanged(c, b.children[i])
		}

	case schema.KindActivatableGroup:
		if n.active != b.active {
			n.dirty = true
		}
		if n.active && b.active {
			for i, c := range n.children {
				markChanged(c, b.children[i])
			}
		}

	case schema.KindList:
		if n.present != b.present || len(n.elems) != len(b.elems) {
			n.dirty = true
		}
		for i, e := range n.elems {
			if i >= len(b.elems) {
				e.dirty = true
				continue
			}
			markChanged(e, b.elems[i])
		}

	default:
		if !n.value.RawEquals(b.value) {
			n.dirty = true
		}
	}
}

// Check reports everything that keeps the tree from being considered
// complete: required non-nullable fields still unset, lists below their
// minimum size. Serialization works on incomplete trees; persisting one
// is the caller's call.
func (t *Tree) Check() *CheckResult {
	res := &CheckResult{}
	t.checkNode(t.root, res)
	return res
}

func (t *Tree) checkNode(n *Node, res *CheckResult) {
	d := n.desc
	switch d.Kind {
	case schema.KindGroup:
		for _, c := range n.children {
			t.checkNode(c, res)
		}

	case schema.KindActivatableGroup:
		if n.active {
			for _, c := range n.children {
				t.checkNode(c, res)
			}
		}

	case schema.KindList:
		if !n.present {
			if d.Required && !d.Nullable {
				res.add(n.path, "required list has no value")
			}
			return
		}
		if v := d.Constraints.CheckItems(len(n.elems)); v != nil {
			res.add(n.path, "%s", v.Message)
		}

	default:
		if d.Required && !d.Nullable && n.value.IsNull() {
			res.add(n.path, "required field has no value")
		}
	}
}

package schema

import (
	"github.com/zclconf/go-cty/cty"
)

// Descriptor defines one configuration field. Descriptors form an
// immutable tree built once per schema version; value trees share them
// without copying. Treat every field as read-only after Parse.
type Descriptor struct {
	// Name is the field's key, unique within its parent.
	Name string

	// Title is the display name. Defaults to Name.
	Title string

	// Description is the field's documentation text.
	Description string

	// Kind tags the field. See Kind constants.
	Kind Kind

	// Nullable is derived from a oneOf [typed, null] schema shape.
	// ActivatableGroups are implicitly nullable: a deactivated group is
	// represented as null on the wire.
	Nullable bool

	// Required marks fields listed in the parent's required set.
	Required bool

	// ReadOnly fields reject writes.
	ReadOnly bool

	// Meta carries the vendor metadata flags.
	Meta Meta

	// HasDefault reports whether the schema declared a default.
	Default    cty.Value
	HasDefault bool

	// Constraints holds kind-specific validation limits.
	Constraints Constraints

	// Options lists the declared key/payload pairs for Option fields.
	Options []Option

	// Variant describes the candidate source for Variant fields.
	Variant *VariantSource

	// Rule names the external validator for Structure fields.
	Rule string

	// Children are the ordered child descriptors of a group.
	Children []*Descriptor

	// Elem is the single element template of a List.
	Elem *Descriptor

	path    Path
	byName  map[string]*Descriptor
	byTitle map[string]*Descriptor
}

// Meta holds the vendor metadata flags attached to a schema node.
// Unknown metadata keys are ignored on parse.
type Meta struct {
	// IsAdvanced marks fields hidden behind an "advanced" display toggle.
	IsAdvanced bool

	// IsInvisible fields load and serialize but are not addressable.
	IsInvisible bool

	// IsSecret values are masked on read.
	IsSecret bool

	// IsSynchronized fields are excluded from local diffing because the
	// owning service may change them out-of-band.
	IsSynchronized bool

	// IsMultiline is a display hint for Text fields.
	IsMultiline bool

	// Activatable marks a group that can be toggled on and off.
	Activatable bool
}

// Option is one declared choice of an Option field. The stored and
// transmitted value is the Payload; the Key is what callers write.
type Option struct {
	Key     string
	Payload cty.Value
}

// VariantSourceType identifies where a Variant field's candidates come from.
type VariantSourceType string

const (
	// VariantInline candidates are declared literally in the schema.
	VariantInline VariantSourceType = "inline"

	// VariantExternal candidates come from a named collection resolved
	// by a caller-supplied collaborator.
	VariantExternal VariantSourceType = "external"

	// VariantConfig candidates are read from a List field elsewhere in
	// the same tree, addressed by path.
	VariantConfig VariantSourceType = "config"
)

// VariantSource describes how to resolve a Variant field's candidate set.
type VariantSource struct {
	Type   VariantSourceType
	Name   string   // external collection name
	Values []string // inline candidates
	Path   Path     // config lookup into the same tree
}

// Path returns the descriptor's absolute location in the tree.
func (d *Descriptor) Path() Path {
	return d.path
}

// DisplayTitle returns Title, falling back to Name.
func (d *Descriptor) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// Child returns the named child of a group descriptor, or nil.
func (d *Descriptor) Child(name string) *Descriptor {
	return d.byName[name]
}

// ChildByTitle returns the child whose display title matches, or nil.
// Children without an explicit title match on their name.
func (d *Descriptor) ChildByTitle(title string) *Descriptor {
	return d.byTitle[title]
}

// Find resolves a path relative to this descriptor, or returns nil. An
// indexed segment resolves to the list's element template.
func (d *Descriptor) Find(p Path) *Descriptor {
	cur := d
	for _, seg := range p {
		next := cur.Child(seg.Name)
		if next == nil {
			return nil
		}
		cur = next
		if seg.Index >= 0 {
			if cur.Kind != KindList || cur.Elem == nil {
				return nil
			}
			cur = cur.Elem
		}
	}
	return cur
}

// Walk visits the descriptor and every descendant in declaration order.
// List element templates are not visited.
func (d *Descriptor) Walk(fn func(*Descriptor)) {
	fn(d)
	for _, c := range d.Children {
		c.Walk(fn)
	}
}

// SecretPaths returns the paths of every secret-kinded field in the tree.
func (d *Descriptor) SecretPaths() []Path {
	var out []Path
	d.Walk(func(c *Descriptor) {
		if c.Kind.IsSecret() {
			out = append(out, c.Path())
		}
	})
	return out
}

// DefaultActive reports whether an ActivatableGroup starts active. A
// non-null schema default means active; absent or null means inactive.
func (d *Descriptor) DefaultActive() bool {
	return d.Kind == KindActivatableGroup && d.HasDefault && !d.Default.IsNull()
}

// ValueType returns the cty type values of this field must conform to.
// Group kinds have no leaf type and return cty.NilType.
func (d *Descriptor) ValueType() cty.Type {
	switch d.Kind {
	case KindString, KindText, KindJSON, KindSecret, KindVariant:
		return cty.String
	case KindInteger, KindFloat:
		return cty.Number
	case KindBoolean:
		return cty.Bool
	case KindList:
		if d.Elem != nil {
			return cty.List(d.Elem.ValueType())
		}
		return cty.List(cty.DynamicPseudoType)
	case KindMap, KindSecretMap:
		return cty.Map(cty.String)
	case KindOption, KindStructure:
		return cty.DynamicPseudoType
	default:
		return cty.NilType
	}
}

// indexChildren builds the lookup maps after children are attached.
func (d *Descriptor) indexChildren() {
	d.byName = make(map[string]*Descriptor, len(d.Children))
	d.byTitle = make(map[string]*Descriptor, len(d.Children))
	for _, c := range d.Children {
		d.byName[c.Name] = c
		d.byTitle[c.DisplayTitle()] = c
	}
}

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// SchemaError reports a malformed schema document. Parsing aborts on the
// first one; retrying with the same document cannot succeed.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" || e.Path == "/" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
	return fmt.Sprintf("schema error at %s: %s", e.Path, e.Reason)
}

func schemaErrf(p Path, format string, args ...any) *SchemaError {
	return &SchemaError{Path: p.String(), Reason: fmt.Sprintf(format, args...)}
}

// ParseFile parses a schema document from a JSON or YAML file.
func ParseFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
	}

	return Parse(data)
}

// Parse parses a schema document into an immutable descriptor tree. The
// root must be a closed object; every node is classified by its declared
// type, its oneOf shape, and its vendor metadata block. Unknown metadata
// keys are tolerated.
func Parse(data []byte) (*Descriptor, error) {
	root, err := parseNode("", json.RawMessage(data), Path{})
	if err != nil {
		return nil, err
	}

	switch root.Kind {
	case KindGroup:
	case KindActivatableGroup:
		return nil, &SchemaError{Path: "/", Reason: "root group cannot be activatable"}
	default:
		return nil, &SchemaError{Path: "/", Reason: "root must be a closed object (additionalProperties: false)"}
	}

	if err := validateRefs(root, root); err != nil {
		return nil, err
	}

	return root, nil
}

// validateRefs checks cross-references after the whole tree exists:
// a Variant with a config source must address a List somewhere in the
// same tree.
func validateRefs(root, d *Descriptor) error {
	if d.Kind == KindVariant && d.Variant.Type == VariantConfig {
		target := root.Find(d.Variant.Path)
		if target == nil {
			return schemaErrf(d.path, "variant source path %s does not exist", d.Variant.Path)
		}
		if target.Kind != KindList {
			return schemaErrf(d.path, "variant source path %s must address a list, not %s", d.Variant.Path, target.Kind)
		}
	}
	for _, c := range d.Children {
		if err := validateRefs(root, c); err != nil {
			return err
		}
	}
	return nil
}

// vendor metadata block, decoded from the "x-meta" key
type metaBlock struct {
	IsAdvanced     bool `json:"isAdvanced"`
	IsInvisible    bool `json:"isInvisible"`
	IsSecret       bool `json:"isSecret"`
	IsSynchronized bool `json:"isSynchronized"`

	Activation *struct {
		IsAllowChange bool `json:"isAllowChange"`
	} `json:"activation"`

	StringExtra *struct {
		IsMultiline bool `json:"isMultiline"`
	} `json:"stringExtra"`

	Enum *struct {
		Labels []string `json:"labels"`
	} `json:"enum"`

	Structure *struct {
		Rule string `json:"rule"`
	} `json:"structure"`

	Variant *struct {
		Type   string   `json:"type"`
		Name   string   `json:"name"`
		Values []string `json:"values"`
		Path   string   `json:"path"`
	} `json:"variant"`
}

func parseNode(name string, raw json.RawMessage, path Path) (*Descriptor, error) {
	node, err := decodeObject(raw)
	if err != nil {
		return nil, schemaErrf(path, "node must be an object: %v", err)
	}

	d := &Descriptor{Name: name, path: path}

	if d.Title, err = optString(node, "title", path); err != nil {
		return nil, err
	}
	if d.Description, err = optString(node, "description", path); err != nil {
		return nil, err
	}
	if d.ReadOnly, err = optBool(node, "readOnly", path); err != nil {
		return nil, err
	}

	var mb metaBlock
	if metaRaw, ok := node["x-meta"]; ok {
		if err := json.Unmarshal(metaRaw, &mb); err != nil {
			return nil, schemaErrf(path, "x-meta must be an object: %v", err)
		}
	}
	d.Meta = Meta{
		IsAdvanced:     mb.IsAdvanced,
		IsInvisible:    mb.IsInvisible,
		IsSecret:       mb.IsSecret,
		IsSynchronized: mb.IsSynchronized,
		IsMultiline:    mb.StringExtra != nil && mb.StringExtra.IsMultiline,
		Activatable:    mb.Activation != nil && mb.Activation.IsAllowChange,
	}

	// A nullable field is declared as oneOf [typed, null]. The typed
	// branch supplies the shape; surface keys stay on the outer node.
	effective := node
	if oneOfRaw, ok := node["oneOf"]; ok {
		payload, err := unwrapNullable(oneOfRaw, path)
		if err != nil {
			return nil, err
		}
		effective = overlay(node, payload)
		d.Nullable = true
	}

	if err := classify(d, effective, mb, path); err != nil {
		return nil, err
	}

	if err := d.Constraints.compilePattern(); err != nil {
		return nil, schemaErrf(path, "%v", err)
	}

	if rawDef, ok := effective["default"]; ok {
		v, err := parseDefault(d, rawDef, path)
		if err != nil {
			return nil, err
		}
		if d.Kind != KindGroup {
			d.Default = v
			d.HasDefault = true
		}
	}

	return d, nil
}

// classify assigns the node's kind and parses its kind-specific fields.
// Precedence: variant and structure markers beat everything, then enum,
// then the declared type.
func classify(d *Descriptor, effective map[string]json.RawMessage, mb metaBlock, path Path) error {
	typ, err := optString(effective, "type", path)
	if err != nil {
		return err
	}
	format, err := optString(effective, "format", path)
	if err != nil {
		return err
	}

	switch {
	case mb.Variant != nil:
		d.Kind = KindVariant
		src, err := parseVariantSource(mb, path)
		if err != nil {
			return err
		}
		d.Variant = src
		return nil

	case mb.Structure != nil:
		if mb.Structure.Rule == "" {
			return schemaErrf(path, "structure metadata must name a validation rule")
		}
		d.Kind = KindStructure
		d.Rule = mb.Structure.Rule
		return nil

	case hasKey(effective, "enum"):
		d.Kind = KindOption
		opts, err := parseOptions(effective, mb, path)
		if err != nil {
			return err
		}
		d.Options = opts
		return nil
	}

	switch typ {
	case "object":
		closed, err := optBoolStrict(effective, "additionalProperties", path)
		if err != nil {
			return err
		}
		if closed != nil && !*closed {
			if d.Meta.Activatable {
				d.Kind = KindActivatableGroup
				d.Nullable = true
			} else {
				d.Kind = KindGroup
			}
			return parseGroup(d, effective, path)
		}
		if d.Meta.IsSecret {
			d.Kind = KindSecretMap
		} else {
			d.Kind = KindMap
		}
		return nil

	case "array":
		d.Kind = KindList
		return parseList(d, effective, path)

	case "string":
		switch {
		case d.Meta.IsSecret:
			d.Kind = KindSecret
		case format == "json":
			d.Kind = KindJSON
		case d.Meta.IsMultiline:
			d.Kind = KindText
		default:
			d.Kind = KindString
		}
		return parseStringConstraints(d, effective, path)

	case "integer":
		d.Kind = KindInteger
		return parseNumberConstraints(d, effective, path)

	case "number":
		d.Kind = KindFloat
		return parseNumberConstraints(d, effective, path)

	case "boolean":
		d.Kind = KindBoolean
		return nil

	case "":
		return schemaErrf(path, "node declares no type")

	default:
		return schemaErrf(path, "unsupported type %q", typ)
	}
}

func parseGroup(d *Descriptor, effective map[string]json.RawMessage, path Path) error {
	propsRaw, ok := effective["properties"]
	if !ok {
		return schemaErrf(path, "group requires properties")
	}

	order, err := propertyOrder(propsRaw)
	if err != nil {
		return schemaErrf(path, "properties: %v", err)
	}
	props, err := decodeObject(propsRaw)
	if err != nil {
		return schemaErrf(path, "properties must be an object: %v", err)
	}
	if len(order) != len(props) {
		return schemaErrf(path, "duplicate child name %q", firstDuplicate(order))
	}

	requiredSet := make(map[string]bool)
	if reqRaw, ok := effective["required"]; ok {
		var names []string
		if err := json.Unmarshal(reqRaw, &names); err != nil {
			return schemaErrf(path, "required must be an array of names: %v", err)
		}
		for _, n := range names {
			if _, ok := props[n]; !ok {
				return schemaErrf(path, "required lists unknown field %q", n)
			}
			requiredSet[n] = true
		}
	}

	d.Children = make([]*Descriptor, 0, len(order))
	for _, childName := range order {
		child, err := parseNode(childName, props[childName], path.Child(childName))
		if err != nil {
			return err
		}
		child.Required = requiredSet[childName]
		d.Children = append(d.Children, child)
	}
	d.indexChildren()
	return nil
}

func parseList(d *Descriptor, effective map[string]json.RawMessage, path Path) error {
	itemsRaw, ok := effective["items"]
	if !ok {
		return schemaErrf(path, "list requires items")
	}

	elem, err := parseNode("", itemsRaw, path)
	if err != nil {
		return err
	}
	if elem.Kind.IsGroup() {
		return schemaErrf(path, "list elements must not be groups")
	}
	d.Elem = elem

	if d.Constraints.MinItems, err = optInt(effective, "minItems", path); err != nil {
		return err
	}
	if d.Constraints.MaxItems, err = optInt(effective, "maxItems", path); err != nil {
		return err
	}
	return nil
}

func parseStringConstraints(d *Descriptor, effective map[string]json.RawMessage, path Path) error {
	var err error
	if d.Constraints.MinLength, err = optInt(effective, "minLength", path); err != nil {
		return err
	}
	if d.Constraints.MaxLength, err = optInt(effective, "maxLength", path); err != nil {
		return err
	}
	if d.Constraints.Pattern, err = optString(effective, "pattern", path); err != nil {
		return err
	}
	return nil
}

func parseNumberConstraints(d *Descriptor, effective map[string]json.RawMessage, path Path) error {
	var err error
	if d.Constraints.Min, err = optNumber(effective, "minimum", path); err != nil {
		return err
	}
	if d.Constraints.Max, err = optNumber(effective, "maximum", path); err != nil {
		return err
	}
	return nil
}

func parseVariantSource(mb metaBlock, path Path) (*VariantSource, error) {
	vb := mb.Variant
	src := &VariantSource{Type: VariantSourceType(vb.Type), Name: vb.Name, Values: vb.Values}

	switch src.Type {
	case VariantInline:
		if len(vb.Values) == 0 {
			return nil, schemaErrf(path, "inline variant source requires values")
		}
	case VariantExternal:
		if vb.Name == "" {
			return nil, schemaErrf(path, "external variant source requires a name")
		}
	case VariantConfig:
		if vb.Path == "" {
			return nil, schemaErrf(path, "config variant source requires a path")
		}
		p, err := ParsePath(vb.Path)
		if err != nil {
			return nil, schemaErrf(path, "config variant source: %v", err)
		}
		src.Path = p
	default:
		return nil, schemaErrf(path, "unknown variant source type %q", vb.Type)
	}

	return src, nil
}

func parseOptions(effective map[string]json.RawMessage, mb metaBlock, path Path) ([]Option, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(effective["enum"], &entries); err != nil {
		return nil, schemaErrf(path, "enum must be an array: %v", err)
	}
	if len(entries) == 0 {
		return nil, schemaErrf(path, "enum must not be empty")
	}

	var labels []string
	if mb.Enum != nil {
		labels = mb.Enum.Labels
	}
	if labels != nil && len(labels) != len(entries) {
		return nil, schemaErrf(path, "enum labels count %d does not match enum values count %d", len(labels), len(entries))
	}

	opts := make([]Option, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, raw := range entries {
		payload, err := decodeValue(raw)
		if err != nil {
			return nil, schemaErrf(path, "enum value %d: %v", i, err)
		}
		if payload.IsNull() {
			return nil, schemaErrf(path, "enum value %d must not be null", i)
		}

		var key string
		switch {
		case labels != nil:
			key = labels[i]
		case payload.Type().Equals(cty.String):
			key = payload.AsString()
		default:
			key = string(bytes.TrimSpace(raw))
		}
		if seen[key] {
			return nil, schemaErrf(path, "duplicate option key %q", key)
		}
		seen[key] = true

		opts = append(opts, Option{Key: key, Payload: payload})
	}
	return opts, nil
}

// parseDefault turns the declared default into an exact cty value typed
// for the field's kind. Plain groups ignore defaults (their children
// carry their own); activatable groups read null/non-null as the initial
// activation state.
func parseDefault(d *Descriptor, raw json.RawMessage, path Path) (cty.Value, error) {
	if isJSONNull(raw) {
		if d.Kind.IsGroup() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		return cty.NullVal(d.ValueType()), nil
	}

	switch d.Kind {
	case KindGroup:
		return cty.NilVal, nil
	case KindActivatableGroup:
		if _, err := decodeObject(raw); err != nil {
			return cty.NilVal, schemaErrf(path, "activatable group default must be null or an object")
		}
		return cty.EmptyObjectVal, nil
	}

	v, err := decodeValue(raw)
	if err != nil {
		return cty.NilVal, schemaErrf(path, "default: %v", err)
	}

	switch d.Kind {
	case KindOption:
		for _, opt := range d.Options {
			if opt.Payload.RawEquals(v) {
				return v, nil
			}
		}
		return cty.NilVal, schemaErrf(path, "default %s is not a declared option value", raw)

	case KindStructure:
		return v, nil

	case KindVariant:
		if !v.Type().Equals(cty.String) {
			return cty.NilVal, schemaErrf(path, "variant default must be a string")
		}
		if d.Variant.Type == VariantInline && !containsString(d.Variant.Values, v.AsString()) {
			return cty.NilVal, schemaErrf(path, "default %q is not an inline variant candidate", v.AsString())
		}
		return v, nil
	}

	conv, err := convert.Convert(v, d.ValueType())
	if err != nil {
		return cty.NilVal, schemaErrf(path, "default does not conform to %s: %v", d.Kind, err)
	}
	if d.Kind == KindInteger && !conv.IsNull() {
		if bf := conv.AsBigFloat(); !bf.IsInt() {
			return cty.NilVal, schemaErrf(path, "default %s is not an integer", raw)
		}
	}
	if d.Kind == KindJSON {
		if !json.Valid([]byte(conv.AsString())) {
			return cty.NilVal, schemaErrf(path, "default is not valid JSON text")
		}
	}
	return conv, nil
}

// ---- decoding helpers ----

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeValue decodes arbitrary JSON into a cty value of its implied
// type. Numbers keep full precision.
func decodeValue(raw json.RawMessage) (cty.Value, error) {
	t, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, t)
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func optString(m map[string]json.RawMessage, key string, path Path) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", schemaErrf(path, "%s must be a string", key)
	}
	return s, nil
}

func optBool(m map[string]json.RawMessage, key string, path Path) (bool, error) {
	raw, ok := m[key]
	if !ok {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, schemaErrf(path, "%s must be a boolean", key)
	}
	return b, nil
}

// optBoolStrict distinguishes an absent key from a declared value.
func optBoolStrict(m map[string]json.RawMessage, key string, path Path) (*bool, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, schemaErrf(path, "%s must be a boolean", key)
	}
	return &b, nil
}

func optInt(m map[string]json.RawMessage, key string, path Path) (*int, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, schemaErrf(path, "%s must be an integer", key)
	}
	if n < 0 {
		return nil, schemaErrf(path, "%s must not be negative", key)
	}
	return &n, nil
}

func optNumber(m map[string]json.RawMessage, key string, path Path) (*big.Float, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return nil, schemaErrf(path, "%s must be a number", key)
	}
	f, _, err := big.ParseFloat(num.String(), 10, 512, big.ToNearestEven)
	if err != nil {
		return nil, schemaErrf(path, "%s must be a number", key)
	}
	return f, nil
}

// unwrapNullable validates a oneOf wrapper and returns the typed branch.
func unwrapNullable(raw json.RawMessage, path Path) (map[string]json.RawMessage, error) {
	var branches []json.RawMessage
	if err := json.Unmarshal(raw, &branches); err != nil {
		return nil, schemaErrf(path, "oneOf must be an array")
	}
	if len(branches) != 2 {
		return nil, schemaErrf(path, "oneOf must contain exactly a typed branch and a null branch, got %d branches", len(branches))
	}

	var payload map[string]json.RawMessage
	nulls := 0
	for _, b := range branches {
		m, err := decodeObject(b)
		if err != nil {
			return nil, schemaErrf(path, "oneOf branch must be an object: %v", err)
		}
		t, err := optString(m, "type", path)
		if err != nil {
			return nil, err
		}
		if t == "null" {
			nulls++
			continue
		}
		payload = m
	}
	if nulls != 1 || payload == nil {
		return nil, schemaErrf(path, "oneOf must contain exactly a typed branch and a null branch")
	}
	return payload, nil
}

// overlay merges the typed branch over the outer node, dropping oneOf.
func overlay(outer, payload map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(outer)+len(payload))
	for k, v := range outer {
		if k == "oneOf" {
			continue
		}
		out[k] = v
	}
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// propertyOrder scans an object's keys in document order. The regular
// decoder loses ordering, and group children are an ordered sequence.
func propertyOrder(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("must be an object")
	}

	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", keyTok)
		}
		order = append(order, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return order, nil
}

// skipValue consumes one JSON value, descending into containers.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	for dec.More() {
		if delim == '{' {
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func firstDuplicate(names []string) string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n
		}
		seen[n] = true
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

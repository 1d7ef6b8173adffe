package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/ports"
)

// inputMode distinguishes the two entry points for raw values. User
// writes name options by key and may send the secret mask; wire
// documents carry option payloads and real secret values.
type inputMode int

const (
	modeWrite inputMode = iota
	modeWire
)

func verrf(p schema.Path, d *schema.Descriptor, raw any, format string, args ...any) *ValidationError {
	if d.Kind.IsSecret() {
		raw = Mask
	}
	return &ValidationError{
		Path:   p.String(),
		Kind:   d.Kind,
		Value:  raw,
		Reason: fmt.Sprintf(format, args...),
	}
}

// validateValue checks a raw scalar-ish value against its descriptor and
// returns the typed value to store. Never mutates the tree. Group and
// list kinds are assembled by their nodes, not here.
func (t *Tree) validateValue(d *schema.Descriptor, p schema.Path, raw any, mode inputMode) (cty.Value, error) {
	if raw == nil {
		if !d.Nullable {
			return cty.NilVal, verrf(p, d, raw, "null is not allowed")
		}
		return cty.NullVal(nullType(d)), nil
	}

	switch d.Kind {
	case schema.KindString, schema.KindText:
		s, ok := raw.(string)
		if !ok {
			return cty.NilVal, verrf(p, d, raw, "must be a string, got %T", raw)
		}
		if v := d.Constraints.CheckString(s); v != nil {
			return cty.NilVal, verrf(p, d, raw, "%s", v.Message)
		}
		return cty.StringVal(s), nil

	case schema.KindJSON:
		s, ok := raw.(string)
		if !ok {
			return cty.NilVal, verrf(p, d, raw, "must be a string, got %T", raw)
		}
		if !json.Valid([]byte(s)) {
			return cty.NilVal, verrf(p, d, raw, "must contain valid JSON text")
		}
		if v := d.Constraints.CheckString(s); v != nil {
			return cty.NilVal, verrf(p, d, raw, "%s", v.Message)
		}
		return cty.StringVal(s), nil

	case schema.KindSecret:
		s, ok := raw.(string)
		if !ok {
			return cty.NilVal, verrf(p, d, raw, "must be a string, got %T", raw)
		}
		if v := d.Constraints.CheckString(s); v != nil {
			return cty.NilVal, verrf(p, d, raw, "%s", v.Message)
		}
		return cty.StringVal(s), nil

	case schema.KindInteger:
		n, err := toNumber(raw)
		if err != nil {
			return cty.NilVal, verrf(p, d, raw, "%v", err)
		}
		if !n.IsInt() {
			return cty.NilVal, verrf(p, d, raw, "must be a whole number")
		}
		if v := d.Constraints.CheckNumber(n); v != nil {
			return cty.NilVal, verrf(p, d, raw, "%s", v.Message)
		}
		return cty.NumberVal(n), nil

	case schema.KindFloat:
		n, err := toNumber(raw)
		if err != nil {
			return cty.NilVal, verrf(p, d, raw, "%v", err)
		}
		if v := d.Constraints.CheckNumber(n); v != nil {
			return cty.NilVal, verrf(p, d, raw, "%s", v.Message)
		}
		return cty.NumberVal(n), nil

	case schema.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return cty.NilVal, verrf(p, d, raw, "must be a boolean, got %T", raw)
		}
		return cty.BoolVal(b), nil

	case schema.KindMap, schema.KindSecretMap:
		m, err := toStringMap(raw)
		if err != nil {
			return cty.NilVal, verrf(p, d, raw, "%v", err)
		}
		return mapVal(m), nil

	case schema.KindOption:
		return t.validateOption(d, p, raw, mode)

	case schema.KindVariant:
		if mode == modeWire {
			// membership runs again once the whole tree is loaded, so
			// config-sourced candidates can resolve
			s, ok := raw.(string)
			if !ok {
				return cty.NilVal, verrf(p, d, raw, "must be a string, got %T", raw)
			}
			return cty.StringVal(s), nil
		}
		return t.validateVariant(d, p, raw)

	case schema.KindStructure:
		return t.validateStructure(d, p, raw)

	default:
		return cty.NilVal, verrf(p, d, raw, "cannot write %s values directly", d.Kind)
	}
}

// validateOption maps an option key to its payload on writes, and
// matches the payload itself on wire decode.
func (t *Tree) validateOption(d *schema.Descriptor, p schema.Path, raw any, mode inputMode) (cty.Value, error) {
	if mode == modeWrite {
		key, ok := raw.(string)
		if !ok {
			return cty.NilVal, verrf(p, d, raw, "option keys are strings, got %T", raw)
		}
		for _, o := range d.Options {
			if o.Key == key {
				return o.Payload, nil
			}
		}
		return cty.NilVal, verrf(p, d, raw, "must be one of %s", optionKeys(d))
	}

	v, err := anyToCty(raw)
	if err != nil {
		return cty.NilVal, verrf(p, d, raw, "%v", err)
	}
	for _, o := range d.Options {
		if o.Payload.RawEquals(v) {
			return o.Payload, nil
		}
	}
	return cty.NilVal, verrf(p, d, raw, "is not a declared option value")
}

func optionKeys(d *schema.Descriptor) string {
	keys := make([]string, len(d.Options))
	for i, o := range d.Options {
		keys[i] = fmt.Sprintf("%q", o.Key)
	}
	return "[" + strings.Join(keys, ", ") + "]"
}

func (t *Tree) validateVariant(d *schema.Descriptor, p schema.Path, raw any) (cty.Value, error) {
	s, ok := raw.(string)
	if !ok {
		return cty.NilVal, verrf(p, d, raw, "must be a string, got %T", raw)
	}

	candidates, resolved, err := t.variantCandidates(d)
	if err != nil {
		return cty.NilVal, verrf(p, d, raw, "candidate source failed: %v", err)
	}
	if !resolved {
		if d.Required {
			return cty.NilVal, verrf(p, d, raw, "no candidate source available")
		}
		// unresolved source on an optional field: accept unchecked
		return cty.StringVal(s), nil
	}

	for _, c := range candidates {
		if c == s {
			return cty.StringVal(s), nil
		}
	}
	return cty.NilVal, verrf(p, d, raw, "is not a candidate value")
}

// variantCandidates resolves the allowed values for a variant field.
// resolved is false when no source is available, which is tolerated for
// optional fields. A failing resolver is an error for this field only.
func (t *Tree) variantCandidates(d *schema.Descriptor) (candidates []string, resolved bool, err error) {
	src := d.Variant
	switch src.Type {
	case schema.VariantInline:
		return src.Values, true, nil

	case schema.VariantConfig:
		node, rerr := t.Resolve(src.Path)
		if rerr != nil {
			return nil, false, nil
		}
		if node.desc.Kind != schema.KindList || !node.present {
			return nil, false, nil
		}
		out := make([]string, 0, len(node.elems))
		for _, e := range node.elems {
			if !e.value.IsNull() && e.value.Type().Equals(cty.String) {
				out = append(out, e.value.AsString())
			}
		}
		return out, true, nil

	case schema.VariantExternal:
		if t.collab.Variants == nil {
			return nil, false, nil
		}
		vals, cerr := t.collab.Variants.Candidates(src.Name)
		if errors.Is(cerr, ports.ErrUnknownSource) {
			return nil, false, nil
		}
		if cerr != nil {
			return nil, false, cerr
		}
		return vals, true, nil

	default:
		return nil, false, nil
	}
}

func (t *Tree) validateStructure(d *schema.Descriptor, p schema.Path, raw any) (cty.Value, error) {
	if t.collab.Structures == nil {
		return cty.NilVal, &schema.SchemaError{
			Path:   p.String(),
			Reason: fmt.Sprintf("structure rule %q has no validator", d.Rule),
		}
	}

	normalized, err := t.collab.Structures.Validate(d.Rule, raw)
	if errors.Is(err, ports.ErrUnknownRule) {
		return cty.NilVal, &schema.SchemaError{
			Path:   p.String(),
			Reason: fmt.Sprintf("structure rule %q has no validator", d.Rule),
		}
	}
	if err != nil {
		return cty.NilVal, verrf(p, d, raw, "%v", err)
	}

	v, cerr := anyToCty(normalized)
	if cerr != nil {
		return cty.NilVal, verrf(p, d, raw, "validator returned an unstorable value: %v", cerr)
	}
	return v, nil
}

// nullType picks the cty type for a null value of this descriptor.
func nullType(d *schema.Descriptor) cty.Type {
	if ty := d.ValueType(); ty != cty.NilType {
		return ty
	}
	return cty.DynamicPseudoType
}

// toNumber converts supported numeric inputs to an arbitrary-precision
// float. json.Number inputs keep their exact decimal value.
func toNumber(raw any) (*big.Float, error) {
	switch v := raw.(type) {
	case int:
		return new(big.Float).SetInt64(int64(v)), nil
	case int8:
		return new(big.Float).SetInt64(int64(v)), nil
	case int16:
		return new(big.Float).SetInt64(int64(v)), nil
	case int32:
		return new(big.Float).SetInt64(int64(v)), nil
	case int64:
		return new(big.Float).SetInt64(v), nil
	case uint:
		return new(big.Float).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Float).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Float).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Float).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Float).SetUint64(v), nil
	case float32:
		return new(big.Float).SetFloat64(float64(v)), nil
	case float64:
		return new(big.Float).SetFloat64(v), nil
	case json.Number:
		f, _, err := big.ParseFloat(v.String(), 10, 512, big.ToNearestEven)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return f, nil
	case *big.Float:
		return v, nil
	default:
		return nil, fmt.Errorf("must be a number, got %T", raw)
	}
}

func toStringMap(raw any) (map[string]string, error) {
	switch m := raw.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("map values must be strings, key %q holds %T", k, v)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be an object of string values, got %T", raw)
	}
}

func mapVal(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return cty.MapVal(vals)
}

// anyToCty converts an arbitrary Go value (structure results, option
// payload comparisons) into a cty value via its JSON form, keeping
// numbers exact.
func anyToCty(raw any) (cty.Value, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(data, ty)
}

// ctyToAny converts a stored value into the plain Go shape callers and
// the serializer work with. Numbers come back as json.Number so nothing
// is rounded on the way out.
func ctyToAny(v cty.Value) any {
	if v == cty.NilVal || v.IsNull() {
		return nil
	}
	ty := v.Type()
	switch {
	case ty.Equals(cty.String):
		return v.AsString()
	case ty.Equals(cty.Number):
		return json.Number(v.AsBigFloat().Text('f', -1))
	case ty.Equals(cty.Bool):
		return v.True()
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, ctyToAny(ev))
		}
		return out
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			out[kv.AsString()] = ctyToAny(ev)
		}
		return out
	default:
		return nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package diff

import (
	"encoding/json"
	"math/big"
	"reflect"

	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/core/tree"
)

// Change is one field-level difference between two wire documents.
// Secret values are masked on both sides; the fact of the change is
// reportable, the values are not.
type Change struct {
	Path     string `json:"path"`
	Previous any    `json:"previous"`
	Current  any    `json:"current"`
}

// Compute walks the descriptor tree and reports every field whose value
// differs between before and after. Fields marked as synchronized are
// skipped, since the owning service rewrites them out-of-band. Group
// activation flips show up as a single change at the group path, null on
// the deactivated side.
func Compute(desc *schema.Descriptor, before, after map[string]any) []Change {
	var out []Change
	for _, c := range desc.Children {
		computeNode(c, before[c.Name], after[c.Name], &out)
	}
	return out
}

func computeNode(d *schema.Descriptor, before, after any, out *[]Change) {
	if d.Meta.IsSynchronized {
		return
	}

	if d.Kind.IsGroup() {
		bm, bok := before.(map[string]any)
		am, aok := after.(map[string]any)
		if bok && aok {
			for _, c := range d.Children {
				computeNode(c, bm[c.Name], am[c.Name], out)
			}
			return
		}
	}

	if !valueEqual(before, after) {
		*out = append(*out, Change{
			Path:     d.Path().String(),
			Previous: masked(d, before),
			Current:  masked(d, after),
		})
	}
}

// masked replaces secret values with the read mask, at any depth the
// descriptor declares one.
func masked(d *schema.Descriptor, v any) any {
	if v == nil {
		return nil
	}
	if d.Kind.IsSecret() {
		return tree.Mask
	}

	switch d.Kind {
	case schema.KindGroup, schema.KindActivatableGroup:
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		out := make(map[string]any, len(m))
		for _, c := range d.Children {
			if cv, ok := m[c.Name]; ok {
				out[c.Name] = masked(c, cv)
			}
		}
		return out

	case schema.KindList:
		s, ok := v.([]any)
		if !ok {
			return v
		}
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = masked(d.Elem, e)
		}
		return out

	default:
		return v
	}
}

// valueEqual compares two wire values. Numbers compare numerically, so
// differing decimal spellings of the same value are not a change.
func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case json.Number:
		bv, ok := b.(json.Number)
		if !ok {
			return false
		}
		return numEqual(av, bv)

	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ae := range av {
			be, ok := bv[k]
			if !ok || !valueEqual(ae, be) {
				return false
			}
		}
		return true

	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true

	default:
		return reflect.DeepEqual(a, b)
	}
}

func numEqual(a, b json.Number) bool {
	af, _, aerr := big.ParseFloat(a.String(), 10, 512, big.ToNearestEven)
	bf, _, berr := big.ParseFloat(b.String(), 10, 512, big.ToNearestEven)
	if aerr != nil || berr != nil {
		return a == b
	}
	return af.Cmp(bf) == 0
}

package diff

import (
	"github.com/artpar/conftree/core/schema"
)

// Strategy picks the winning side when both the local tree and the
// stored document changed the same field since their common base.
type Strategy int

const (
	// LocalWins keeps local edits; remote changes fill in everywhere
	// the local side left the base value alone.
	LocalWins Strategy = iota
	// RemoteWins takes remote changes; local edits survive only on
	// fields the remote side left alone.
	RemoteWins
)

func (s Strategy) String() string {
	switch s {
	case LocalWins:
		return "local"
	case RemoteWins:
		return "remote"
	default:
		return "unknown"
	}
}

// Apply three-way merges wire documents field by field: base is the
// common ancestor, local and remote the two divergent descendants. The
// result is a fresh document sharing no structure with its inputs.
// Synchronized fields always take the remote value.
func (s Strategy) Apply(desc *schema.Descriptor, base, local, remote map[string]any) map[string]any {
	return mergeGroup(desc, base, local, remote, s)
}

// ApplyLocal merges with local edits winning on conflict.
func ApplyLocal(desc *schema.Descriptor, base, local, remote map[string]any) map[string]any {
	return LocalWins.Apply(desc, base, local, remote)
}

// ApplyRemote merges with remote edits winning on conflict.
func ApplyRemote(desc *schema.Descriptor, base, local, remote map[string]any) map[string]any {
	return RemoteWins.Apply(desc, base, local, remote)
}

func mergeGroup(d *schema.Descriptor, base, local, remote map[string]any, s Strategy) map[string]any {
	out := make(map[string]any, len(d.Children))
	for _, c := range d.Children {
		out[c.Name] = mergeNode(c, base[c.Name], local[c.Name], remote[c.Name], s)
	}
	return out
}

func mergeNode(d *schema.Descriptor, base, local, remote any, s Strategy) any {
	if d.Meta.IsSynchronized {
		return deepCopy(remote)
	}

	if d.Kind.IsGroup() {
		bm, bok := base.(map[string]any)
		lm, lok := local.(map[string]any)
		rm, rok := remote.(map[string]any)
		if bok && lok && rok {
			return mergeGroup(d, bm, lm, rm, s)
		}
		// an activation flip on either side is decided wholesale
	}

	if s == LocalWins {
		if !valueEqual(local, base) {
			return deepCopy(local)
		}
		return deepCopy(remote)
	}
	if !valueEqual(remote, base) {
		return deepCopy(remote)
	}
	return deepCopy(local)
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

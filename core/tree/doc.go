/*
Package tree holds the mutable value side of a configuration document:
a tree of nodes, one per schema descriptor, carrying typed values,
activation state and dirty flags.

# Building

Trees come from two constructors. FromDefaults seeds every node with
its schema default, which is how a brand-new document starts life.
FromDocument maps a stored wire document back onto the schema; any
disagreement between the two is a SchemaMismatchError naming the first
offending path.

# Reading and writing

Get masks secret values behind a fixed sentinel; Reveal returns them in
the clear. Set validates first and commits only on success, so a failed
write leaves the tree exactly as it was. Writes that restate the
current value change nothing, including the dirty flag.

Lists are edited element-wise with Append and RemoveAt, or wholesale by
writing a full slice. An unset list is distinct from an empty one: the
first serializes as null, the second as [].

# Activation

Activatable groups toggle with Activate and Deactivate. Deactivating
discards the children outright; activating again rebuilds them from
schema defaults, not from whatever was there before.

# Serialization

Serialize renders the wire document: deactivated groups as null, real
secret values, exact numbers. Loading the result reproduces the tree.
SerializeWithPolicy can instead omit secrets that never changed, for
targets that already hold them.
*/
package tree

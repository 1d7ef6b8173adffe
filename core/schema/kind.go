package schema

// Kind classifies a schema node. Every consumer (parser, validators,
// serializer) switches exhaustively on it.
type Kind string

const (
	// Scalar kinds
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindBoolean Kind = "boolean"
	KindText    Kind = "text"
	KindJSON    Kind = "json"

	// Collection kinds
	KindList Kind = "list"
	KindMap  Kind = "map"

	// Special kinds
	KindStructure Kind = "structure" // Validated by an external rule
	KindSecret    Kind = "secret"    // Masked on read
	KindSecretMap Kind = "secret_map"
	KindVariant   Kind = "variant" // Requires a candidate source
	KindOption    Kind = "option"  // Requires declared options

	// Container kinds
	KindGroup            Kind = "group"
	KindActivatableGroup Kind = "activatable_group"
)

// IsGroup reports whether the kind carries child descriptors.
func (k Kind) IsGroup() bool {
	return k == KindGroup || k == KindActivatableGroup
}

// IsSecret reports whether values of this kind are masked on read.
func (k Kind) IsSecret() bool {
	return k == KindSecret || k == KindSecretMap
}

// IsScalar reports whether the kind holds a single primitive value.
func (k Kind) IsScalar() bool {
	switch k {
	case KindString, KindInteger, KindFloat, KindBoolean, KindText, KindJSON, KindSecret:
		return true
	default:
		return false
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInteger, KindFloat, KindBoolean, KindText, KindJSON,
		KindList, KindMap, KindStructure, KindSecret, KindSecretMap,
		KindVariant, KindOption, KindGroup, KindActivatableGroup:
		return true
	default:
		return false
	}
}

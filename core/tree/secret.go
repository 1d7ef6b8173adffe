package tree

// Mask is the sentinel shown in place of secret values. Writing it back
// is a no-op, so a read-modify-write cycle over a masked view never
// destroys a stored secret.
const Mask = "******"

// SecretPolicy controls how Serialize treats secret fields.
type SecretPolicy int

const (
	// ResendSecrets writes every secret value into the output.
	ResendSecrets SecretPolicy = iota
	// OmitUnchangedSecrets drops secrets that still hold their loaded
	// value, for targets that already have them.
	OmitUnchangedSecrets
	// MaskSecrets replaces set secret values with Mask. The output is
	// for display only; loading it back would store the mask literally.
	MaskSecrets
)

func (p SecretPolicy) String() string {
	switch p {
	case ResendSecrets:
		return "resend"
	case OmitUnchangedSecrets:
		return "omit-unchanged"
	case MaskSecrets:
		return "mask"
	default:
		return "unknown"
	}
}

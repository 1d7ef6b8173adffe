package tree

import (
	"fmt"

	"github.com/artpar/conftree/core/schema"
)

// ValidationError reports a rejected write. The tree is left unmodified;
// the caller may retry with a corrected value. Value carries the
// offending input for field-level messages, masked for secret kinds.
type ValidationError struct {
	Path   string
	Kind   schema.Kind
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid %s value: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid value at %s (%s): %s", e.Path, e.Kind, e.Reason)
}

// SchemaMismatchError reports a wire document whose shape diverges from
// the descriptor tree: unknown keys, missing required keys, or values of
// the wrong type. Fatal for that load.
type SchemaMismatchError struct {
	Path   string
	Reason string
	cause  error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("document does not match schema at %s: %s", e.Path, e.Reason)
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.cause
}

func mismatch(p schema.Path, format string, args ...any) *SchemaMismatchError {
	return &SchemaMismatchError{Path: p.String(), Reason: fmt.Sprintf(format, args...)}
}

// Issue is one completeness finding from Check.
type Issue struct {
	Path    string
	Message string
}

// CheckResult lists everything that keeps a tree from being considered
// complete. An empty result means the document can be persisted.
type CheckResult struct {
	Issues []Issue
}

// Complete reports whether no issues were found.
func (r *CheckResult) Complete() bool {
	return len(r.Issues) == 0
}

func (r *CheckResult) add(p schema.Path, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Path: p.String(), Message: fmt.Sprintf(format, args...)})
}

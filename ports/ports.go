// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Random supplies random bytes. The sealer draws salts and nonces from
// it; tests substitute a deterministic source.
type Random interface {
	Bytes(n int) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Collaborator Ports
// -----------------------------------------------------------------------------
//
// The value tree calls these synchronously while validating writes. They
// must not block: implementations answer from memory, and anything that
// needs I/O refreshes itself out-of-band.

// ErrUnknownSource reports a variant collection no resolver knows about.
var ErrUnknownSource = errors.New("unknown variant source")

// ErrUnknownRule reports a structure rule no validator implements.
var ErrUnknownRule = errors.New("unknown structure rule")

// VariantResolver supplies candidate values for variant fields backed by
// a named external collection.
type VariantResolver interface {
	// Candidates returns the allowed values for the named collection.
	// Returns ErrUnknownSource when no such collection exists.
	Candidates(name string) ([]string, error)
}

// StructureValidator checks structure-kinded values against a named rule.
type StructureValidator interface {
	// Has reports whether the named rule is registered. The value tree
	// refuses to build against a schema whose rules it cannot resolve.
	Has(rule string) bool

	// Validate checks value against the named rule and returns the
	// normalized form to store. Returns ErrUnknownRule when the rule is
	// not registered; any other error describes why the value fails.
	Validate(rule string, value any) (any, error)
}

// -----------------------------------------------------------------------------
// Document Store Ports
// -----------------------------------------------------------------------------

// Stored is one persisted version of a configuration document. The
// store treats Document as opaque bytes; secrets are sealed before they
// get here.
type Stored struct {
	ID          string
	Name        string
	Version     int64
	SchemaHash  string
	Document    []byte
	Description string
	CreatedAt   time.Time
}

// ErrNotFound reports a document or version that does not exist.
var ErrNotFound = errors.New("document not found")

// PreconditionError reports a versioned save that lost a concurrent
// update race. The caller should reload, reapply, and retry.
type PreconditionError struct {
	Name     string
	Expected int64
	Actual   int64
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("document %q is at version %d, expected %d", e.Name, e.Actual, e.Expected)
}

// DocumentStore persists configuration documents with optimistic
// versioning. Versions are append-only; saving never rewrites history.
type DocumentStore interface {
	// Load returns the newest version of the named document.
	// Returns ErrNotFound when the document does not exist.
	Load(ctx context.Context, name string) (Stored, error)

	// LoadVersion returns one specific version.
	LoadVersion(ctx context.Context, name string, version int64) (Stored, error)

	// Save appends a new version. expected is the version the caller
	// loaded; a *PreconditionError means someone else saved first.
	// Saving a new document uses expected 0.
	Save(ctx context.Context, doc Stored, expected int64) (Stored, error)

	// History lists stored versions, newest first.
	History(ctx context.Context, name string, limit int) ([]Stored, error)
}

// -----------------------------------------------------------------------------
// Sealing Port
// -----------------------------------------------------------------------------

// Sealer encrypts secret values before documents reach the store and
// decrypts them on load. The store never sees plaintext secrets.
type Sealer interface {
	// Seal encrypts plaintext.
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts a previously sealed value.
	Open(sealed []byte) ([]byte, error)
}

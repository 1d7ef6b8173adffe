// Package idgen provides IDGenerator implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/artpar/conftree/ports"
)

// UUID generates random v4 identifiers. Document stores use these as
// row IDs for saved versions.
type UUID struct{}

// New returns a fresh UUID string.
func (UUID) New() string {
	return uuid.New().String()
}

// Ensure interface compliance.
var _ ports.IDGenerator = UUID{}

// Sequential generates prefixed counting IDs ("doc-1", "doc-2"), so
// tests can assert exact stored rows.
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential generator with the given prefix.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next ID in the sequence, starting at 1.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Reset restarts the sequence.
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

// Ensure interface compliance.
var _ ports.IDGenerator = (*Sequential)(nil)

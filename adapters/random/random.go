// Package random provides Random implementations.
package random

import (
	"crypto/rand"
	"sync"

	"github.com/artpar/conftree/ports"
)

// Real draws from crypto/rand. The sealer takes its salts and nonces
// from here.
type Real struct{}

// Bytes returns n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Ensure interface compliance.
var _ ports.Random = Real{}

// Fake is a deterministic source for tests. Preset values are handed
// out first in order; after those a counter pattern takes over, so two
// fakes started the same way draw the same bytes.
type Fake struct {
	mu      sync.Mutex
	counter int
	values  [][]byte
	index   int
}

// NewFake creates a fake random source.
func NewFake() *Fake {
	return &Fake{}
}

// WithValues queues byte slices to return before the counter pattern.
// Short slices are zero-padded to the requested length.
func (f *Fake) WithValues(values ...[]byte) *Fake {
	f.values = values
	f.index = 0
	return f
}

// Bytes returns the next preset value, or counter-derived bytes once
// the presets run out.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index < len(f.values) {
		v := f.values[f.index]
		f.index++
		if len(v) >= n {
			return v[:n], nil
		}
		out := make([]byte, n)
		copy(out, v)
		return out, nil
	}

	f.counter++
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((f.counter + i) % 256)
	}
	return b, nil
}

// Reset rewinds the presets and the counter.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter = 0
	f.index = 0
}

// Ensure interface compliance.
var _ ports.Random = (*Fake)(nil)

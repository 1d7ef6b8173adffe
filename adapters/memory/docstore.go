// Package memory provides in-memory implementations of storage ports.
package memory

import (
	"context"
	"sync"

	"github.com/artpar/conftree/ports"
)

// DocumentStore is an in-memory implementation of ports.DocumentStore.
// Versions are append-only per document name; nothing is ever deleted.
type DocumentStore struct {
	mu    sync.RWMutex
	docs  map[string][]ports.Stored // by name, ascending version
	ids   ports.IDGenerator
	clock ports.Clock
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore(ids ports.IDGenerator, clock ports.Clock) *DocumentStore {
	return &DocumentStore{
		docs:  make(map[string][]ports.Stored),
		ids:   ids,
		clock: clock,
	}
}

// Load returns the newest version of the named document.
func (s *DocumentStore) Load(ctx context.Context, name string) (ports.Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.docs[name]
	if len(versions) == 0 {
		return ports.Stored{}, ports.ErrNotFound
	}
	return copyStored(versions[len(versions)-1]), nil
}

// LoadVersion returns one specific version.
func (s *DocumentStore) LoadVersion(ctx context.Context, name string, version int64) (ports.Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.docs[name] {
		if doc.Version == version {
			return copyStored(doc), nil
		}
	}
	return ports.Stored{}, ports.ErrNotFound
}

// Save appends a new version. The store assigns ID, Version and
// CreatedAt; a stale expected version fails with PreconditionError.
func (s *DocumentStore) Save(ctx context.Context, doc ports.Stored, expected int64) (ports.Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.docs[doc.Name]
	var actual int64
	if len(versions) > 0 {
		actual = versions[len(versions)-1].Version
	}
	if actual != expected {
		return ports.Stored{}, &ports.PreconditionError{Name: doc.Name, Expected: expected, Actual: actual}
	}

	doc.ID = s.ids.New()
	doc.Version = actual + 1
	doc.CreatedAt = s.clock.Now().UTC()

	s.docs[doc.Name] = append(versions, copyStored(doc))
	return copyStored(doc), nil
}

// History lists stored versions, newest first. limit 0 means all.
func (s *DocumentStore) History(ctx context.Context, name string, limit int) ([]ports.Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.docs[name]
	if len(versions) == 0 {
		return nil, ports.ErrNotFound
	}

	out := make([]ports.Stored, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		out = append(out, copyStored(versions[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func copyStored(doc ports.Stored) ports.Stored {
	out := doc
	out.Document = make([]byte, len(doc.Document))
	copy(out.Document, doc.Document)
	return out
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocumentStore)(nil)

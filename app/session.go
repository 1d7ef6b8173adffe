// Package app orchestrates configuration sessions over the storage and
// sealing ports.
package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

// Session binds one named configuration document to a store. It owns the
// working tree, carries documents between tree and store, seals secrets
// on the way out and opens them on the way in.
type Session struct {
	name   string
	desc   *schema.Descriptor
	hash   string
	collab tree.Collaborators
	store  ports.DocumentStore
	sealer ports.Sealer
	logger zerolog.Logger

	tree *tree.Tree
	base map[string]any // wire document the working tree started from
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithCollaborators injects the tree's variant and structure collaborators.
func WithCollaborators(c tree.Collaborators) SessionOption {
	return func(s *Session) { s.collab = c }
}

// WithSealer seals secret values before documents reach the store and
// opens them on load. Documents saved with a sealer can only be loaded
// with the same sealer.
func WithSealer(sl ports.Sealer) SessionOption {
	return func(s *Session) { s.sealer = sl }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession parses schemaData and opens a session on the named
// document. The working tree starts from schema defaults; call Load to
// adopt a stored version.
func NewSession(name string, schemaData []byte, store ports.DocumentStore, opts ...SessionOption) (*Session, error) {
	s := &Session{
		name:   name,
		hash:   fmt.Sprintf("%x", sha256.Sum256(schemaData)),
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	desc, err := schema.Parse(schemaData)
	if err != nil {
		return nil, err
	}
	s.desc = desc

	tr, err := tree.FromDefaults(desc, s.collab)
	if err != nil {
		return nil, err
	}
	s.tree = tr
	s.base = tr.Serialize()
	return s, nil
}

// Name returns the document name the session is bound to.
func (s *Session) Name() string {
	return s.name
}

// Descriptor returns the parsed schema.
func (s *Session) Descriptor() *schema.Descriptor {
	return s.desc
}

// Tree returns the working value tree.
func (s *Session) Tree() *tree.Tree {
	return s.tree
}

// Load replaces the working tree with the newest stored version.
// Returns ports.ErrNotFound when nothing was ever saved.
func (s *Session) Load(ctx context.Context) error {
	stored, err := s.store.Load(ctx, s.name)
	if err != nil {
		return err
	}
	return s.adopt(stored)
}

// LoadVersion replaces the working tree with one specific version.
func (s *Session) LoadVersion(ctx context.Context, version int64) error {
	stored, err := s.store.LoadVersion(ctx, s.name, version)
	if err != nil {
		return err
	}
	return s.adopt(stored)
}

func (s *Session) adopt(stored ports.Stored) error {
	if stored.SchemaHash != "" && stored.SchemaHash != s.hash {
		s.logger.Warn().
			Str("name", s.name).
			Int64("version", stored.Version).
			Str("stored_hash", stored.SchemaHash).
			Msg("document was saved under a different schema")
	}

	doc, err := s.decode(stored.Document)
	if err != nil {
		return err
	}
	tr, err := tree.FromDocument(s.desc, doc, s.collab)
	if err != nil {
		return err
	}
	tr.SetVersion(stored.Version)

	s.tree = tr
	s.base = doc

	s.logger.Info().
		Str("name", s.name).
		Int64("version", stored.Version).
		Msg("document loaded")
	return nil
}

// decode unmarshals stored bytes and opens sealed secrets.
func (s *Session) decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	if err := s.openSecrets(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save seals and appends a new version, using the working tree's version
// as the optimistic-concurrency precondition. A stale version surfaces
// as *ports.PreconditionError. On success the tree re-baselines: nothing
// is dirty and the assigned version is adopted. Incomplete documents
// save with a warning; completeness gates deployment, not persistence.
func (s *Session) Save(ctx context.Context, description string) (ports.Stored, error) {
	if res := s.tree.Check(); !res.Complete() {
		for _, issue := range res.Issues {
			s.logger.Warn().Str("path", issue.Path).Msg(issue.Message)
		}
	}

	doc := s.tree.Serialize()
	if err := s.sealSecrets(doc); err != nil {
		return ports.Stored{}, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return ports.Stored{}, fmt.Errorf("encode document: %w", err)
	}

	saved, err := s.store.Save(ctx, ports.Stored{
		Name:        s.name,
		SchemaHash:  s.hash,
		Document:    data,
		Description: description,
	}, s.tree.Version())
	if err != nil {
		return ports.Stored{}, err
	}

	s.tree.SetVersion(saved.Version)
	s.tree.MarkSaved()
	s.base = s.tree.Serialize()

	s.logger.Info().
		Str("name", s.name).
		Int64("version", saved.Version).
		Str("description", description).
		Msg("document saved")
	return saved, nil
}

// Reset discards every pending change by rebuilding the working tree
// from its base document. The version is kept.
func (s *Session) Reset() error {
	version := s.tree.Version()
	tr, err := tree.FromDocument(s.desc, s.base, s.collab)
	if err != nil {
		return err
	}
	tr.SetVersion(version)
	s.tree = tr
	return nil
}

// Diff lists pending changes against the base document, secret values
// masked on both sides.
func (s *Session) Diff() []diff.Change {
	return diff.Compute(s.desc, s.base, s.tree.Serialize())
}

// Refresh three-way merges the newest stored version into the working
// tree: base is the document this tree started from, local the working
// values, remote the stored head. strategy picks the winner where both
// sides changed the same field. Surviving local edits stay marked as
// pending. Reports whether a newer version was merged.
func (s *Session) Refresh(ctx context.Context, strategy diff.Strategy) (bool, error) {
	head, err := s.store.Load(ctx, s.name)
	if err != nil {
		return false, err
	}
	if head.Version == s.tree.Version() {
		return false, nil
	}

	remote, err := s.decode(head.Document)
	if err != nil {
		return false, err
	}

	merged := strategy.Apply(s.desc, s.base, s.tree.Serialize(), remote)
	tr, err := tree.FromDocument(s.desc, merged, s.collab)
	if err != nil {
		return false, fmt.Errorf("merged document does not load: %w", err)
	}
	remoteTree, err := tree.FromDocument(s.desc, remote, s.collab)
	if err != nil {
		return false, err
	}
	tr.MarkChangedSince(remoteTree)
	tr.SetVersion(head.Version)

	s.tree = tr
	s.base = remote

	s.logger.Info().
		Str("name", s.name).
		Int64("version", head.Version).
		Str("strategy", strategy.String()).
		Msg("merged newer stored version")
	return true, nil
}

// History lists stored versions of this document, newest first.
func (s *Session) History(ctx context.Context, limit int) ([]ports.Stored, error) {
	return s.store.History(ctx, s.name, limit)
}

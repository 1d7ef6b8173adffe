// Package e2e provides end-to-end tests for the complete configuration
// flow: schema files on disk, sessions over a SQLite store, sealed
// secrets, concurrent editors, and file watching.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/conftree/adapters/clock"
	"github.com/artpar/conftree/adapters/idgen"
	"github.com/artpar/conftree/adapters/random"
	"github.com/artpar/conftree/adapters/sealer"
	"github.com/artpar/conftree/adapters/sqlite"
	"github.com/artpar/conftree/adapters/watch"
	"github.com/artpar/conftree/app"
	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

const e2eSchema = `{
	"type": "object",
	"additionalProperties": false,
	"propertyOrder": ["name", "port", "hosts", "token", "tuning"],
	"required": ["name", "port"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "default": "core"},
		"port": {"type": "integer", "minimum": 1, "default": 8080},
		"hosts": {"type": "array", "items": {"type": "string"}, "default": ["a.example"]},
		"token": {"oneOf": [{"type": "string"}, {"type": "null"}], "x-meta": {"isSecret": true}},
		"tuning": {
			"type": "object",
			"additionalProperties": false,
			"propertyOrder": ["level"],
			"properties": {"level": {"type": "integer", "default": 2}},
			"x-meta": {"activation": {"isAllowChange": true}}
		}
	}
}`

// TestE2E_FullConfigurationFlow walks the whole persistence loop:
// 1. Open a SQLite store on disk
// 2. Save edited values as version 1
// 3. Load them back through a fresh session
// 4. Save version 2 and inspect history and the version diff
func TestE2E_FullConfigurationFlow(t *testing.T) {
	store, closeStore := openStore(t)
	defer closeStore()
	ctx := context.Background()

	// 2. First editor saves version 1
	first := newSession(t, store)
	mustSet(t, first, "/name", "relay")
	mustSet(t, first, "/port", 2525)
	saved, err := first.Save(ctx, "initial rollout")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("Version = %d, want 1", saved.Version)
	}

	// 3. A fresh session sees the stored values
	second := newSession(t, store)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, _ := second.Tree().Get("/name"); got != "relay" {
		t.Errorf("/name = %v, want relay", got)
	}
	if got, _ := second.Tree().Get("/port"); got != json.Number("2525") {
		t.Errorf("/port = %v, want 2525", got)
	}

	// 4. Version 2, then history and diff
	mustSet(t, second, "/port", 9025)
	if _, err := second.Save(ctx, "move port"); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	records, err := second.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("history length = %d, want 2", len(records))
	}
	if records[0].Version != 2 || records[1].Version != 1 {
		t.Errorf("history order = [%d %d], want [2 1]", records[0].Version, records[1].Version)
	}
	if records[0].Description != "move port" {
		t.Errorf("head description = %q", records[0].Description)
	}

	if err := second.LoadVersion(ctx, 1); err != nil {
		t.Fatalf("LoadVersion(1): %v", err)
	}
	before := second.Tree().Serialize()
	if err := second.Load(ctx); err != nil {
		t.Fatalf("reload head: %v", err)
	}
	changes := diff.Compute(second.Descriptor(), before, second.Tree().Serialize())
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want one", changes)
	}
	if changes[0].Path != "/port" {
		t.Errorf("changed path = %s, want /port", changes[0].Path)
	}
}

// TestE2E_SealedSecretsAtRest verifies that a passphrase session never
// writes secret plaintext into the store, and that only the right
// passphrase opens it again.
func TestE2E_SealedSecretsAtRest(t *testing.T) {
	store, closeStore := openStore(t)
	defer closeStore()
	ctx := context.Background()

	sealed := newSession(t, store, app.WithSealer(sealer.NewSecretBox("letmein", 0, random.Real{})))
	mustSet(t, sealed, "/token", "hunter2")
	if _, err := sealed.Save(ctx, "with secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Raw stored bytes carry the sealed form only
	stored, err := store.Load(ctx, "service")
	if err != nil {
		t.Fatalf("store Load: %v", err)
	}
	if bytes.Contains(stored.Document, []byte("hunter2")) {
		t.Fatalf("stored document leaks the secret: %s", stored.Document)
	}
	if !bytes.Contains(stored.Document, []byte(`"token"`)) {
		t.Errorf("stored document lost the token field: %s", stored.Document)
	}

	// Same passphrase opens it
	reader := newSession(t, store, app.WithSealer(sealer.NewSecretBox("letmein", 0, random.Real{})))
	if err := reader.Load(ctx); err != nil {
		t.Fatalf("Load with passphrase: %v", err)
	}
	if got, _ := reader.Tree().Reveal("/token"); got != "hunter2" {
		t.Errorf("revealed token = %v, want hunter2", got)
	}
	if got, _ := reader.Tree().Get("/token"); got != tree.Mask {
		t.Errorf("masked token = %v, want %q", got, tree.Mask)
	}

	// Wrong passphrase fails to open
	wrong := newSession(t, store, app.WithSealer(sealer.NewSecretBox("nope", 0, random.Real{})))
	if err := wrong.Load(ctx); err == nil {
		t.Error("Load with wrong passphrase succeeded")
	}
}

// TestE2E_ConcurrentEditors reproduces two editors on one store:
// 1. Both load version 1
// 2. Editor A saves version 2
// 3. Editor B's save fails the version precondition
// 4. B refreshes with local edits winning and saves version 3
func TestE2E_ConcurrentEditors(t *testing.T) {
	store, closeStore := openStore(t)
	defer closeStore()
	ctx := context.Background()

	seed := newSession(t, store)
	if _, err := seed.Save(ctx, "baseline"); err != nil {
		t.Fatalf("seed Save: %v", err)
	}

	editorA := newSession(t, store)
	editorB := newSession(t, store)
	if err := editorA.Load(ctx); err != nil {
		t.Fatalf("A Load: %v", err)
	}
	if err := editorB.Load(ctx); err != nil {
		t.Fatalf("B Load: %v", err)
	}

	// 2. A wins the race
	mustSet(t, editorA, "/port", 9000)
	if _, err := editorA.Save(ctx, "A: port"); err != nil {
		t.Fatalf("A Save: %v", err)
	}

	// 3. B is now stale
	mustSet(t, editorB, "/name", "edge")
	_, err := editorB.Save(ctx, "B: name")
	var pre *ports.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("B Save error = %v, want PreconditionError", err)
	}

	// 4. Merge keeps B's edit and adopts A's
	merged, err := editorB.Refresh(ctx, diff.LocalWins)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !merged {
		t.Fatal("Refresh reported no newer version")
	}
	if got, _ := editorB.Tree().Get("/name"); got != "edge" {
		t.Errorf("after merge /name = %v, want edge", got)
	}
	if got, _ := editorB.Tree().Get("/port"); got != json.Number("9000") {
		t.Errorf("after merge /port = %v, want 9000", got)
	}

	saved, err := editorB.Save(ctx, "B: name after merge")
	if err != nil {
		t.Fatalf("B Save after merge: %v", err)
	}
	if saved.Version != 3 {
		t.Errorf("merged save version = %d, want 3", saved.Version)
	}
}

// TestE2E_WatchPipeline edits a watched values file on disk and waits
// for the holder to pick the change up.
func TestE2E_WatchPipeline(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	docPath := filepath.Join(dir, "values.json")
	doc := `{"name": "svc", "port": 8080, "hosts": ["a.example"], "token": null, "tuning": null}`
	if err := os.WriteFile(schemaPath, []byte(e2eSchema), 0644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	if err := os.WriteFile(docPath, []byte(doc), 0644); err != nil {
		t.Fatalf("write document: %v", err)
	}

	h, err := watch.NewHolder(schemaPath, docPath, tree.Collaborators{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var reloads int
	h.OnChange(func(*tree.Tree) {
		mu.Lock()
		reloads++
		mu.Unlock()
	})
	if err := h.WatchFiles(); err != nil {
		t.Fatalf("WatchFiles: %v", err)
	}

	next := `{"name": "svc", "port": 9090, "hosts": ["a.example"], "token": null, "tuning": null}`
	if err := os.WriteFile(docPath, []byte(next), 0644); err != nil {
		t.Fatalf("rewrite document: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := reloads
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("file watcher did not trigger reload")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got, _ := h.Get().Get("/port"); got != json.Number("9090") {
		t.Errorf("after reload /port = %v, want 9090", got)
	}
}

func openStore(t *testing.T) (*sqlite.DocumentStore, func()) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "conf.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("Migrate: %v", err)
	}
	return sqlite.NewDocumentStore(db, idgen.UUID{}, clock.Real{}), func() { db.Close() }
}

func newSession(t *testing.T, store ports.DocumentStore, opts ...app.SessionOption) *app.Session {
	t.Helper()
	s, err := app.NewSession("service", []byte(e2eSchema), store, opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func mustSet(t *testing.T, s *app.Session, path string, v any) {
	t.Helper()
	if err := s.Tree().Set(path, v); err != nil {
		t.Fatalf("Set(%s): %v", path, err)
	}
}

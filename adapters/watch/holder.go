// Package watch provides hot reload of schema and document files from disk.
package watch

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/artpar/conftree/adapters/metrics"
	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/core/tree"
)

// Holder provides thread-safe access to a configuration tree with hot
// reload support. It watches two files: the schema and the serialized
// document. A change to either only replaces the current tree after
// the document validates against the schema.
type Holder struct {
	mu         sync.RWMutex
	tree       *tree.Tree
	desc       *schema.Descriptor
	collab     tree.Collaborators
	cache      *schema.Cache
	schemaPath string
	docPath    string
	logger     zerolog.Logger
	metrics    *metrics.Collector
	watcher    *fsnotify.Watcher
	onChange   []func(*tree.Tree)
	stopCh     chan struct{}
}

// NewHolder creates a new holder and loads the initial schema and
// document.
func NewHolder(schemaPath, docPath string, collab tree.Collaborators, logger zerolog.Logger) (*Holder, error) {
	absSchema, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("absolute schema path: %w", err)
	}
	absDoc, err := filepath.Abs(docPath)
	if err != nil {
		return nil, fmt.Errorf("absolute document path: %w", err)
	}

	h := &Holder{
		collab:     collab,
		cache:      schema.NewCache(),
		schemaPath: absSchema,
		docPath:    absDoc,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}

	desc, t, err := h.load()
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	h.desc = desc
	h.tree = t

	return h, nil
}

// NewHolderWithMetrics creates a new holder that records reloads on
// the given collector.
func NewHolderWithMetrics(schemaPath, docPath string, collab tree.Collaborators, logger zerolog.Logger, m *metrics.Collector) (*Holder, error) {
	h, err := NewHolder(schemaPath, docPath, collab, logger)
	if err != nil {
		return nil, err
	}
	h.metrics = m
	return h, nil
}

// Get returns the current tree (thread-safe).
func (h *Holder) Get() *tree.Tree {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tree
}

// Descriptor returns the current schema descriptor (thread-safe).
func (h *Holder) Descriptor() *schema.Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.desc
}

// Reload re-reads both files from disk.
// Returns error if reading, parsing, or validation fails (keeps the
// old tree).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.docPath).Msg("reloading document")

	newDesc, newTree, err := h.load()
	if err != nil {
		h.logger.Error().Err(err).Msg("reload failed, keeping old tree")
		if h.metrics != nil {
			h.metrics.ReloadErrors.Inc()
		}
		return fmt.Errorf("reload document: %w", err)
	}

	h.mu.Lock()
	oldTree := h.tree
	h.desc = newDesc
	h.tree = newTree
	h.mu.Unlock()

	// Log what changed
	h.logChanges(newDesc, oldTree, newTree)

	if h.metrics != nil {
		h.metrics.Reloads.Inc()
		h.metrics.LastReload.SetToCurrentTime()
	}

	// Notify listeners
	for _, fn := range h.onChange {
		fn(newTree)
	}

	h.logger.Info().Msg("document reloaded successfully")
	return nil
}

// OnChange registers a callback to be called when the tree changes.
func (h *Holder) OnChange(fn func(*tree.Tree)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFiles starts watching the schema and document files for
// changes. Changes trigger automatic reload.
func (h *Holder) WatchFiles() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directories (more reliable for editors that do atomic saves)
	dirs := map[string]struct{}{
		filepath.Dir(h.schemaPath): {},
		filepath.Dir(h.docPath):    {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch directory: %w", err)
		}
	}

	go h.watchLoop()

	h.logger.Info().
		Str("schema", h.schemaPath).
		Str("document", h.docPath).
		Msg("watching files for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading document")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload document")
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	close(h.stopCh)
	if h.watcher != nil {
		h.watcher.Close()
	}
}

func (h *Holder) load() (*schema.Descriptor, *tree.Tree, error) {
	schemaData, err := os.ReadFile(h.schemaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read schema: %w", err)
	}
	switch strings.ToLower(filepath.Ext(h.schemaPath)) {
	case ".yaml", ".yml":
		schemaData, err = schema.YAMLToJSON(schemaData)
		if err != nil {
			return nil, nil, fmt.Errorf("convert schema: %w", err)
		}
	}
	desc, cached, err := h.cache.GetOrParse(schemaData)
	if err != nil {
		return nil, nil, fmt.Errorf("parse schema: %w", err)
	}
	if !cached {
		h.logger.Debug().Str("path", h.schemaPath).Msg("schema parsed")
	}

	docData, err := os.ReadFile(h.docPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read document: %w", err)
	}
	switch strings.ToLower(filepath.Ext(h.docPath)) {
	case ".yaml", ".yml":
		docData, err = schema.YAMLToJSON(docData)
		if err != nil {
			return nil, nil, fmt.Errorf("convert document: %w", err)
		}
	}
	t, err := tree.FromDocumentJSON(desc, docData, h.collab)
	if err != nil {
		return nil, nil, err
	}

	if res := t.Check(); !res.Complete() {
		for _, issue := range res.Issues {
			h.logger.Warn().Str("path", issue.Path).Msg(issue.Message)
		}
	}

	return desc, t, nil
}

func (h *Holder) watchLoop() {
	schemaName := filepath.Base(h.schemaPath)
	docName := filepath.Base(h.docPath)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// Only react to our two files
			name := filepath.Base(event.Name)
			if name != schemaName && name != docName {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("watched file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

// logChanges reports every changed field. Secret values come through
// already masked.
func (h *Holder) logChanges(desc *schema.Descriptor, old, new *tree.Tree) {
	for _, c := range diff.Compute(desc, old.Serialize(), new.Serialize()) {
		h.logger.Info().
			Str("path", c.Path).
			Interface("old", c.Previous).
			Interface("new", c.Current).
			Msg("field changed")
	}
}

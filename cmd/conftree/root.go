package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/conftree/adapters/clock"
	"github.com/artpar/conftree/adapters/idgen"
	"github.com/artpar/conftree/adapters/memory"
	"github.com/artpar/conftree/adapters/random"
	"github.com/artpar/conftree/adapters/resolver"
	"github.com/artpar/conftree/adapters/sealer"
	"github.com/artpar/conftree/adapters/sqlite"
	"github.com/artpar/conftree/adapters/structure"
	"github.com/artpar/conftree/app"
	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

var (
	// Global flags
	schemaPath   string
	storePath    string
	docName      string
	variantsPath string
	passphrase   string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conftree",
	Short: "Schema-driven configuration documents with versioned storage",
	Long: `Conftree reads a configuration schema and manages typed, versioned
value documents against it.

Every command needs a schema (--schema). Documents live in a SQLite
store (--store) or, without one, in memory for the life of the command.

Quick start:
  conftree validate -s schema.json            # Check the schema
  conftree show -s schema.json                # Show schema defaults
  conftree set -s schema.json --store conf.db /smtp/host mail.example.com
  conftree get -s schema.json --store conf.db /smtp/host

Inspection:
  conftree diff      # Compare versions or a file against the store
  conftree history   # List saved versions
  conftree watch     # Reload a document on file changes`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&schemaPath, "schema", "s", "", "schema file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "SQLite database path (default: in-memory)")
	rootCmd.PersistentFlags().StringVarP(&docName, "name", "n", "default", "document name in the store")
	rootCmd.PersistentFlags().StringVar(&variantsPath, "variants", "", "JSON file with external variant candidates")
	rootCmd.PersistentFlags().StringVar(&passphrase, "passphrase", "", "seal secret values at rest with this passphrase")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func newLogger(level zerolog.Level) zerolog.Logger {
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// readSchema returns the schema file as JSON bytes, converting YAML by
// file extension.
func readSchema() ([]byte, error) {
	if schemaPath == "" {
		return nil, fmt.Errorf("no schema file: pass --schema")
	}
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	switch strings.ToLower(filepath.Ext(schemaPath)) {
	case ".yaml", ".yml":
		data, err = schema.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", schemaPath, err)
		}
	}
	return data, nil
}

func newCollaborators() (tree.Collaborators, error) {
	rules := structure.NewRegistry()
	rules.Register("string-list", structure.StringList())

	collab := tree.Collaborators{Structures: rules}
	if variantsPath != "" {
		static, err := resolver.FromFile(variantsPath)
		if err != nil {
			return tree.Collaborators{}, err
		}
		collab.Variants = resolver.NewCached(static)
	}
	return collab, nil
}

// openStore returns the document store and a close function. Without
// --store documents only live for the duration of the command.
func openStore() (ports.DocumentStore, func(), error) {
	if storePath == "" {
		return memory.NewDocumentStore(idgen.UUID{}, clock.Real{}), func() {}, nil
	}

	db, err := sqlite.Open(storePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}
	return sqlite.NewDocumentStore(db, idgen.UUID{}, clock.Real{}), func() { db.Close() }, nil
}

// openSession wires schema, collaborators, store, and sealer into a
// session on --name. The caller must invoke the returned close function.
func openSession() (*app.Session, func(), error) {
	schemaData, err := readSchema()
	if err != nil {
		return nil, nil, err
	}
	collab, err := newCollaborators()
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	opts := []app.SessionOption{
		app.WithCollaborators(collab),
		app.WithLogger(newLogger(zerolog.WarnLevel)),
	}
	if passphrase != "" {
		opts = append(opts, app.WithSealer(sealer.NewSecretBox(passphrase, 0, random.Real{})))
	}

	sess, err := app.NewSession(docName, schemaData, store, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return sess, closeStore, nil
}

// loadValuesFile loads a JSON or YAML values document from disk against
// the descriptor.
func loadValuesFile(desc *schema.Descriptor, path string) (*tree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = schema.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
	}
	collab, err := newCollaborators()
	if err != nil {
		return nil, err
	}
	return tree.FromDocumentJSON(desc, data, collab)
}

// resolveNode finds the node at ref, accepting field names or display
// titles per segment. "/smtp/host" and "Relay Settings/Relay Host" name
// the same node.
func resolveNode(tr *tree.Tree, ref string) (*tree.Node, error) {
	node, lookupErr := tr.Lookup(ref)
	if lookupErr == nil {
		return node, nil
	}

	desc := tr.Descriptor()
	p := schema.Path{}
	for _, part := range strings.Split(strings.Trim(ref, "/"), "/") {
		name, index := part, -1
		if i := strings.IndexByte(part, '['); i >= 0 && strings.HasSuffix(part, "]") {
			n, err := strconv.Atoi(part[i+1 : len(part)-1])
			if err != nil {
				return nil, lookupErr
			}
			name, index = part[:i], n
		}
		child := desc.Child(name)
		if child == nil {
			child = desc.ChildByTitle(name)
		}
		if child == nil {
			return nil, lookupErr
		}
		p = append(p, schema.Segment{Name: child.Name, Index: index})
		if index >= 0 && child.Elem != nil {
			desc = child.Elem
		} else {
			desc = child
		}
	}
	node, err := tr.Resolve(p)
	if err != nil {
		return nil, lookupErr
	}
	return node, nil
}

// parseCLIValue interprets raw as JSON where it can, so "8080" becomes a
// number, "true" a bool, and "[1,2]" a list. Anything else stays a
// string.
func parseCLIValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	if dec.More() {
		return raw
	}
	return v
}

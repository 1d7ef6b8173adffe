package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/conftree/ports"
)

// DocumentStore implements ports.DocumentStore using SQLite. Versions
// are append-only rows; the head of a document is its highest version.
type DocumentStore struct {
	db    *DB
	ids   ports.IDGenerator
	clock ports.Clock
}

// NewDocumentStore creates a new document store. The generator and
// clock stamp ID and CreatedAt on save.
func NewDocumentStore(db *DB, ids ports.IDGenerator, clock ports.Clock) *DocumentStore {
	return &DocumentStore{db: db, ids: ids, clock: clock}
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocumentStore)(nil)

const storedColumns = `id, name, version, schema_hash, document, description, created_at`

// Load retrieves the newest version of the named document.
func (s *DocumentStore) Load(ctx context.Context, name string) (ports.Stored, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+storedColumns+` FROM documents
		WHERE name = ? ORDER BY version DESC LIMIT 1`,
		name,
	)
	return scanStored(row)
}

// LoadVersion retrieves one specific version of the named document.
func (s *DocumentStore) LoadVersion(ctx context.Context, name string, version int64) (ports.Stored, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+storedColumns+` FROM documents
		WHERE name = ? AND version = ?`,
		name, version,
	)
	return scanStored(row)
}

// Save appends a new version. The head version is checked against
// expected inside the transaction, so two racing saves cannot both
// land on the same version.
func (s *DocumentStore) Save(ctx context.Context, doc ports.Stored, expected int64) (ports.Stored, error) {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return ports.Stored{}, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var actual int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM documents WHERE name = ?`,
		doc.Name,
	).Scan(&actual)
	if err != nil {
		return ports.Stored{}, fmt.Errorf("read head version: %w", err)
	}
	if actual != expected {
		return ports.Stored{}, &ports.PreconditionError{Name: doc.Name, Expected: expected, Actual: actual}
	}

	doc.ID = s.ids.New()
	doc.Version = actual + 1
	doc.CreatedAt = s.clock.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (`+storedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.Version, doc.SchemaHash, doc.Document, doc.Description,
		doc.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ports.Stored{}, fmt.Errorf("insert version %d: %w", doc.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return ports.Stored{}, fmt.Errorf("commit save: %w", err)
	}
	return doc, nil
}

// History lists stored versions, newest first. A limit of zero or
// less means all versions.
func (s *DocumentStore) History(ctx context.Context, name string, limit int) ([]ports.Stored, error) {
	if limit <= 0 {
		limit = -1 // sqlite reads a negative limit as "no limit"
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+storedColumns+` FROM documents
		WHERE name = ? ORDER BY version DESC LIMIT ?`,
		name, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.Stored
	for rows.Next() {
		doc, err := scanStoredRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ports.ErrNotFound
	}
	return out, nil
}

func scanStored(row *sql.Row) (ports.Stored, error) {
	var doc ports.Stored
	var createdAt string

	err := row.Scan(
		&doc.ID, &doc.Name, &doc.Version, &doc.SchemaHash, &doc.Document, &doc.Description, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Stored{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.Stored{}, err
	}

	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return doc, nil
}

func scanStoredRows(rows *sql.Rows) (ports.Stored, error) {
	var doc ports.Stored
	var createdAt string

	err := rows.Scan(
		&doc.ID, &doc.Name, &doc.Version, &doc.SchemaHash, &doc.Document, &doc.Description, &createdAt,
	)
	if err != nil {
		return ports.Stored{}, err
	}

	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return doc, nil
}

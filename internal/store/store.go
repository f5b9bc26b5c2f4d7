package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stratahq/strata/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (model registry; per-hierarchy tables are dynamic)
const currentSchemaVersion = 1

// Store provides durable storage for entity rows.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db    *sql.DB
	model *schema.Model
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the base schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	// Open database (creates file if doesn't exist)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool for SQLite
	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1) // Keep one connection ready

	// Apply required pragmas
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	// Apply base schema
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens a fresh in-memory store. Each call returns an
// isolated database; used by the harness and tests.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Model returns the loaded model, nil before LoadModel.
func (s *Store) Model() *schema.Model { return s.model }

// LoadModel registers a model and creates one row table per hierarchy.
// Loading the same model again is a no-op; a different model under the
// same name is an error.
func (s *Store) LoadModel(ctx context.Context, model *schema.Model) error {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM models WHERE name = ?`, model.Name(),
	).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO models (name, hash) VALUES (?, ?)`,
			model.Name(), model.Hash(),
		); err != nil {
			return fmt.Errorf("load model: register: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load model: lookup: %w", err)
	case existing != model.Hash():
		return fmt.Errorf("load model: %q is already registered with a different hash", model.Name())
	}

	for _, root := range model.Roots() {
		if _, err := s.db.ExecContext(ctx, createTableSQL(root)); err != nil {
			return fmt.Errorf("load model: create table for %s: %w", root.Name, err)
		}
	}
	s.model = model
	return nil
}

// tableName derives the row table for a hierarchy root.
func tableName(root *schema.Entity) string {
	return "rows_" + strings.ToLower(root.Name)
}

// createTableSQL builds the per-hierarchy table: seq for storage order,
// then one column per layout slot. Column c0 is the discriminator tag.
func createTableSQL(root *schema.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %q (\n", tableName(root))
	b.WriteString("    seq INTEGER PRIMARY KEY AUTOINCREMENT")
	for i := 0; i < root.Width(); i++ {
		fmt.Fprintf(&b, ",\n    c%d %s", i, columnAffinity(root, i))
	}
	b.WriteString("\n)")
	return b.String()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the base tables if they don't exist.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

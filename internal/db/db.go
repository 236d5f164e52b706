// Package db provides the embedded relational index for trellis.
//
// The index mirrors every task's metadata, materialized path, and sibling
// order into SQLite so tree queries, ordering, and memory lookups stay
// fast, while the task files remain the durable source of truth. WAL mode
// keeps readers non-blocking against a consistent snapshot while a single
// writer holds a transaction.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Index wraps the SQLite connection holding the task index.
type Index struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the index database at the given path and
// applies pending schema migrations. Idempotent.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(path)
}

// OpenInMemory opens an isolated in-memory index. Much faster than
// file-based databases and ideal for testing.
func OpenInMemory() (*Index, error) {
	return open(":memory:")
}

func open(dsn string) (*Index, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Every pooled connection would otherwise get its own empty
	// in-memory database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Foreign keys, WAL, and a busy timeout for concurrent access.
	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	idx := &Index{db: db, path: dsn}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the database connection.
func (i *Index) Close() error {
	return i.db.Close()
}

// Path returns the database path or ":memory:".
func (i *Index) Path() string {
	return i.path
}

// migrate applies pending schema files (schema/index_NNN.sql), tracking
// applied versions in a _migrations table.
func (i *Index) migrate() error {
	ctx := context.Background()

	if _, err := i.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := i.db.QueryContext(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return fmt.Errorf("query migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate migrations: %w", err)
	}

	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	var migrations []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "index_") && strings.HasSuffix(e.Name(), ".sql") {
			migrations = append(migrations, e.Name())
		}
	}
	sort.Strings(migrations)

	for _, name := range migrations {
		version := extractVersion(name)
		if applied[version] {
			continue
		}

		content, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := i.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}

	return nil
}

// extractVersion extracts the version number from a migration filename,
// e.g. "index_001.sql" returns 1.
func extractVersion(name string) int {
	s := strings.TrimPrefix(name, "index_")
	s = strings.TrimSuffix(s, ".sql")
	var v int
	_, _ = fmt.Sscanf(s, "%d", &v)
	return v
}

// isUniqueViolation reports whether err is a SQLite UNIQUE/PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: tasks.path") ||
		strings.Contains(msg, "PRIMARY KEY constraint")
}

// Package storage mirrors the in-memory knowledge store into SQLite so
// restarts can rehydrate it. The in-memory store stays authoritative; a
// snapshot is a full replacement, never an incremental sync.
package storage

import (
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	apperrors "github.com/docfold/memoria/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// Store manages the snapshot database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the snapshot database at path and applies the
// schema. Pass ":memory:" for an ephemeral database.
func New(path string) (*Store, error) {
	inMemory := strings.TrimSpace(path) == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "create database directory")
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "open database")
	}

	// WAL allows concurrent readers alongside the single writer.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)
	if inMemory {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "apply pragma").
				WithContext("pragma", pragma)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

type migration struct {
	Version int
	Name    string
	Apply   func(db *sql.DB) error
}

// migrations is the ordered list of versioned schema changes. The base
// schema itself is idempotent and applied before any of these run.
var migrations = []migration{
	{1, "initial_schema", func(*sql.DB) error { return nil }},
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "apply base schema")
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := m.Apply(db); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "apply migration").
				WithContext("version", m.Version).
				WithContext("name", m.Name)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "record migration").
				WithContext("version", m.Version)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "read schema version")
	}
	return version, nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	return schemaVersion(s.db)
}

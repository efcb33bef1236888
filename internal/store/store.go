package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists exported analysis snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT NOT NULL,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS modules (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  name            TEXT NOT NULL,
  parent_id       INTEGER REFERENCES modules(id),
  file_id         INTEGER NOT NULL REFERENCES files(id),
  inline          BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS items (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  visibility      TEXT NOT NULL,
  def_id          INTEGER NOT NULL,
  file_id         INTEGER REFERENCES files(id),
  slot            INTEGER NOT NULL,
  macro           TEXT
);

CREATE TABLE IF NOT EXISTS imports (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  path            TEXT NOT NULL,
  alias           TEXT,
  glob            BOOLEAN DEFAULT FALSE,
  visibility      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bindings (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  def_id          INTEGER NOT NULL,
  def_kind        TEXT,
  target_path     TEXT
);

CREATE TABLE IF NOT EXISTS reexports (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  from_module_id  INTEGER NOT NULL REFERENCES modules(id),
  name            TEXT,
  def_id          INTEGER,
  glob            BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  module_path     TEXT NOT NULL,
  name            TEXT,
  severity        TEXT NOT NULL,
  message         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_module ON items(module_id);
CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);
CREATE INDEX IF NOT EXISTS idx_imports_module ON imports(module_id);
CREATE INDEX IF NOT EXISTS idx_bindings_module ON bindings(module_id);
CREATE INDEX IF NOT EXISTS idx_bindings_name ON bindings(name);
CREATE INDEX IF NOT EXISTS idx_reexports_module ON reexports(module_id);
`

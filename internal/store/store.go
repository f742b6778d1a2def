package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (projects, artifacts, cache_metadata, marketplace_entries)
const currentSchemaVersion = 1

// Store provides durable storage for cached project/artifact metadata.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db    *sql.DB
	path  string
	log   *slog.Logger
	retry RetryPolicy
}

// Option configures a Store during Open.
type Option func(*Store)

// WithLogger sets the logger used for retry diagnostics.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithRetryPolicy overrides the write retry/backoff policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Store) { s.retry = p }
}

// Open creates or opens the cache database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times. All failures
// are reported as INIT_FAILED store errors: the caller decides whether to
// drop and rebuild the file (the cache is not a source of truth).
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, initErr("create cache directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, initErr("open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, initErr("connect to database", err)
	}

	// SQLite only supports one writer at a time, so funnel all statements
	// through a single connection to avoid SQLITE_BUSY between our own
	// goroutines. Cross-process contention is still possible and handled
	// by the retry policy.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, initErr("apply pragmas", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, initErr("apply schema", err)
	}

	s := &Store{
		db:    db,
		path:  path,
		log:   slog.Default(),
		retry: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenOrRebuild opens the database, and on an initialization failure drops
// the file (plus WAL sidecars) and tries once more with a fresh schema.
//
// The cache is not a source of truth, so a corrupt database is rebuilt
// rather than reported to the caller. Rebuilds are logged; callers observe
// degraded status (zero counts, everything implicitly stale) until the next
// refresh repopulates.
func OpenOrRebuild(path string, opts ...Option) (*Store, error) {
	s, err := Open(path, opts...)
	if err == nil {
		return s, nil
	}
	if !IsInit(err) {
		return nil, err
	}

	slog.Warn("cache database unusable, rebuilding", "path", path, "error", err)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if rmErr := os.Remove(path + suffix); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, initErr("remove corrupt database", rmErr)
		}
	}
	return Open(path, opts...)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// FileSize returns the size of the database file in bytes.
// Returns 0 if the file cannot be stat'd (e.g., in-memory database).
func (s *Store) FileSize() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func initErr(what string, err error) error {
	return &StoreError{Code: ErrCodeInit, Err: fmt.Errorf("%s: %w", what, err)}
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
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	// No incremental migrations yet: version 1 is fully described by
	// schema.sql. Future versions add steps here, sequentially.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	// Mirror the schema version into cache_metadata so it is visible to
	// status queries without a PRAGMA round trip.
	if _, err := db.Exec(`
		INSERT INTO cache_metadata (id, schema_version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET schema_version = excluded.schema_version
	`, currentSchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (records table only)
// 1 - Added index on records(kind, seq, id)
const currentSchemaVersion = 1

// ErrSeedMissing is returned when a seed snapshot was requested but the
// snapshot file does not exist.
var ErrSeedMissing = errors.New("seed snapshot not found")

// Store is the durable record store.
// Uses SQLite with WAL mode for concurrent read access.
//
// Thread-safety: all methods are safe for concurrent use. Writes are
// serialized by the single database connection.
type Store struct {
	db       *sql.DB
	path     string
	ids      IDGenerator
	compiler *query.Compiler
}

// Option configures a Store.
type Option func(*options)

type options struct {
	seed     string
	ids      IDGenerator
	compiler *query.Compiler
}

// WithSeed copies the snapshot at path to the database location before
// opening, if no database exists there yet.
func WithSeed(path string) Option {
	return func(o *options) {
		o.seed = path
	}
}

// WithIDGenerator overrides the permanent identity generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.ids = g
		}
	}
}

// WithCompiler shares a predicate compiler (and its program cache).
func WithCompiler(c *query.Compiler) Option {
	return func(o *options) {
		if c != nil {
			o.compiler = c
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// When a seed snapshot is configured and no file exists at path, the
// snapshot is copied to path first. An existing database is never replaced.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.compiler == nil {
		o.compiler = query.NewCompiler(query.DefaultCacheSize)
	}

	if o.seed != "" {
		if err := seedDatabase(o.seed, path); err != nil {
			return nil, fmt.Errorf("failed to seed database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, path: path, ids: o.ids, compiler: o.compiler}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Compiler returns the predicate compiler the store evaluates with.
func (s *Store) Compiler() *query.Compiler {
	return s.compiler
}

// ObtainPermanentIDs issues n permanent identities.
func (s *Store) ObtainPermanentIDs(_ context.Context, n int) ([]ir.ObjectID, error) {
	out := make([]ir.ObjectID, 0, n)
	for i := 0; i < n; i++ {
		id, ok := permanentID(s.ids.Generate())
		if !ok {
			return nil, fmt.Errorf("obtain permanent ids: generator returned unusable identity %q", id)
		}
		out = append(out, id)
	}
	return out, nil
}

// seedDatabase copies the snapshot to dst unless dst already exists.
func seedDatabase(snapshot, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", dst, err)
	}

	src, err := os.Open(snapshot)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrSeedMissing, snapshot)
	}
	if err != nil {
		return fmt.Errorf("open seed %s: %w", snapshot, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy seed: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the (kind, seq, id) index for databases created before it
// was part of schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_kind_seq
		ON records(kind, seq, id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	q := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(q).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

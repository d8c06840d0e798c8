package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/testutil"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
	assert.Equal(t, path, s.Path())
}

func TestOpen_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	insertRows(t, s1, testRow("p-1", "Order", 1, ir.NewObject(ir.O("total", ir.Int(5)))))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	row, found, err := s2.Lookup(context.Background(), "p-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.Int(5), row.Fields["total"])
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/directory/test.db")
	assert.Error(t, err)
}

func TestClose_MultipleCalls(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.Close())
	// database/sql tolerates a second close
	assert.NoError(t, s.Close())
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1")) // NORMAL
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestSchema_RecordsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.DB(), "records")
	assert.Equal(t, []string{"id", "kind", "fields", "seq"}, columns)

	indexes := getTableIndexes(t, s.DB(), "records")
	assert.Contains(t, indexes, "idx_records_kind_seq")
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// A version 0 database: records table without the kind/seq index.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE records (
		id TEXT PRIMARY KEY, kind TEXT NOT NULL, fields TEXT NOT NULL, seq INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO records VALUES ('p-1', 'Order', '{"total":1}', 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
	assert.Contains(t, getTableIndexes(t, s.DB(), "records"), "idx_records_kind_seq")

	n, err := s.Count(context.Background(), "Order")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "existing rows survive the migration")
}

func TestOpen_WithSeedCopiesSnapshot(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.sqlite")

	seed, err := Open(seedPath)
	require.NoError(t, err)
	insertRows(t, seed, testRow("p-seed", "Order", 1, ir.NewObject(ir.O("total", ir.Int(9)))))
	require.NoError(t, seed.Close())

	target := filepath.Join(dir, "app.sqlite")
	s, err := Open(target, WithSeed(seedPath))
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Lookup(context.Background(), "p-seed")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOpen_WithSeedKeepsExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.sqlite")
	seed, err := Open(seedPath)
	require.NoError(t, err)
	insertRows(t, seed, testRow("p-seed", "Order", 1, ir.Object{}))
	require.NoError(t, seed.Close())

	target := filepath.Join(dir, "app.sqlite")
	existing, err := Open(target)
	require.NoError(t, err)
	insertRows(t, existing, testRow("p-own", "Order", 1, ir.Object{}))
	require.NoError(t, existing.Close())

	s, err := Open(target, WithSeed(seedPath))
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Lookup(context.Background(), "p-seed")
	require.NoError(t, err)
	assert.False(t, found, "seed must not replace an existing database")
	_, found, err = s.Lookup(context.Background(), "p-own")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOpen_WithMissingSeed(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "app.sqlite"), WithSeed(filepath.Join(dir, "nope.sqlite")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSeedMissing)
}

func TestObtainPermanentIDs(t *testing.T) {
	s := createTestStore(t)

	ids, err := s.ObtainPermanentIDs(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []ir.ObjectID{
		"00000000-0000-7000-8000-000000000001",
		"00000000-0000-7000-8000-000000000002",
	}, ids)
}

func TestObtainPermanentIDs_RejectsTemporaryShapedTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewFixedGenerator("t-oops")))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ObtainPermanentIDs(context.Background(), 1)
	assert.Error(t, err)
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen.Generate()
		require.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
		assert.False(t, ir.ObjectID(id).IsTemporary())
	}
}

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/testutil"
)

// createTestStore creates a store in a temp directory with predictable
// permanent identities.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequentialIDs()))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertRows commits rows straight into the store.
func insertRows(t *testing.T, s *Store, rows ...ir.Row) {
	t.Helper()
	require.NoError(t, s.Absorb(context.Background(), ir.ChangeSet{Inserted: rows}))
}

// testRow builds a row with permanent identity id.
func testRow(id, kind string, seq int64, fields ir.Object) ir.Row {
	return ir.Row{ID: ir.ObjectID(id), Kind: kind, Fields: fields, Seq: seq}
}

// rowIDs extracts identities in order.
func rowIDs(rows []ir.Row) []ir.ObjectID {
	ids := make([]ir.ObjectID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

// getTableColumns returns column names for a table.
func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		require.NoError(t, rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk))
		columns = append(columns, name)
	}
	return columns
}

// getTableIndexes returns index names for a table.
func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	return indexes
}

package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

type recordsResponse struct {
	Status string       `json:"status"`
	Data   []RecordView `json:"data"`
	Error  *CLIError    `json:"error"`
}

func fetchJSON(t *testing.T, dir string, args ...string) recordsResponse {
	t.Helper()
	out, err := execute(t, append([]string{"fetch", "Order", "--db", dir, "--format", "json"}, args...)...)
	require.NoError(t, err)

	var resp recordsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp
}

func TestInsertCommand_JSON(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "insert", "Order", "total=10", "status=open", `tags=["a","b"]`, "--db", dir, "--format", "json")
	require.NoError(t, err)

	var resp recordsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)

	rec := resp.Data[0]
	assert.False(t, rec.ID.IsTemporary(), "saved records carry permanent identities")
	assert.Equal(t, "Order", rec.Kind)
	assert.Equal(t, ir.Int(10), rec.Fields["total"])
	assert.Equal(t, ir.String("open"), rec.Fields["status"])
	assert.Equal(t, ir.Array{ir.String("a"), ir.String("b")}, rec.Fields["tags"])
}

func TestInsertCommand_BadAssignment(t *testing.T) {
	_, err := execute(t, "insert", "Order", "total", "--db", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `expected key=value, got "total"`)
}

func TestInsertCommand_MissingKind(t *testing.T) {
	_, err := execute(t, "insert", "--db", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestFetchCommand_WhereAndSort(t *testing.T) {
	dir := t.TempDir()
	for _, total := range []string{"10", "25", "40"} {
		_, err := execute(t, "insert", "Order", "total="+total, "--db", dir)
		require.NoError(t, err)
	}

	all := fetchJSON(t, dir)
	require.Len(t, all.Data, 3)
	assert.Equal(t, ir.Int(10), all.Data[0].Fields["total"], "default order is insertion order")

	filtered := fetchJSON(t, dir, "--where", "total > 15", "--sort", "total:desc")
	require.Len(t, filtered.Data, 2)
	assert.Equal(t, ir.Int(40), filtered.Data[0].Fields["total"])
	assert.Equal(t, ir.Int(25), filtered.Data[1].Fields["total"])

	limited := fetchJSON(t, dir, "--sort", "total", "--limit", "1")
	require.Len(t, limited.Data, 1)
	assert.Equal(t, ir.Int(10), limited.Data[0].Fields["total"])
}

func TestFetchCommand_Text(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "insert", "Order", "total=10", "--db", dir)
	require.NoError(t, err)

	out, err := execute(t, "fetch", "Order", "--db", dir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], ` Order {"total":10}`), lines[0])
}

func TestFetchCommand_Empty(t *testing.T) {
	resp := fetchJSON(t, t.TempDir())
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
}

func TestFetchCommand_MalformedPredicate(t *testing.T) {
	out, err := execute(t, "fetch", "Order", "--db", t.TempDir(), "--where", "total >", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp recordsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FETCH_FAILED", resp.Error.Code)
}

func TestFetchCommand_BadSort(t *testing.T) {
	_, err := execute(t, "fetch", "Order", "--db", t.TempDir(), "--sort", "total:sideways")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDeleteCommand(t *testing.T) {
	dir := t.TempDir()
	for _, total := range []string{"10", "25", "40"} {
		_, err := execute(t, "insert", "Order", "total="+total, "--db", dir)
		require.NoError(t, err)
	}

	out, err := execute(t, "delete", "Order", "--where", "total < 30", "--db", dir)
	require.NoError(t, err)
	assert.Equal(t, "2 record(s) deleted\n", out)

	remaining := fetchJSON(t, dir)
	require.Len(t, remaining.Data, 1)
	assert.Equal(t, ir.Int(40), remaining.Data[0].Fields["total"])
}

func TestPurgeCommand(t *testing.T) {
	dir := t.TempDir()
	var ids []string
	for _, total := range []string{"10", "25"} {
		out, err := execute(t, "insert", "Order", "total="+total, "--db", dir, "--format", "json")
		require.NoError(t, err)
		var resp recordsResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		ids = append(ids, resp.Data[0].ID.String())
	}

	out, err := execute(t, "purge", "Order", "--where", "total == 25", "--db", dir)
	require.NoError(t, err)
	assert.Equal(t, ids[1]+"\n", out)

	remaining := fetchJSON(t, dir)
	require.Len(t, remaining.Data, 1)
	assert.Equal(t, ids[0], remaining.Data[0].ID.String())
}

func TestPurgeCommand_MalformedPredicate(t *testing.T) {
	_, err := execute(t, "purge", "Order", "--where", "total ==", "--db", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "BATCH_DELETE")
}

func TestParseAssignments(t *testing.T) {
	fields, err := parseAssignments([]string{"n=3", "ok=true", "name=widget", `quoted="7"`, "empty=", "gone=null"})
	require.NoError(t, err)

	assert.Equal(t, ir.Int(3), fields["n"])
	assert.Equal(t, ir.Bool(true), fields["ok"])
	assert.Equal(t, ir.String("widget"), fields["name"])
	assert.Equal(t, ir.String("7"), fields["quoted"])
	assert.Equal(t, ir.String(""), fields["empty"])
	assert.Equal(t, ir.Null{}, fields["gone"])

	_, err = parseAssignments([]string{"=1"})
	require.Error(t, err)
}

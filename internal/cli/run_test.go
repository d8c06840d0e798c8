package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: note_roundtrip
description: "Insert a note and read it back after saving"
steps:
  - op: insert
    kind: Note
    fields: {text: hello}
    as: n1
  - op: save
  - op: fetch
    kind: Note
    expect_count: 1
    expect_fields:
      - {text: hello}
`

const failingScenario = `name: wrong_count
description: "Expects a record that was never saved"
steps:
  - op: insert
    kind: Note
    fields: {text: hello}
  - op: rollback
  - op: fetch
    kind: Note
    expect_count: 1
`

func writeScenario(t *testing.T, dir, file, content string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunCommand_Pass(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "note.yaml", passingScenario)

	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS note_roundtrip")
	assert.Contains(t, out, "Summary: 1 passed, 0 failed, 1 total")
}

func TestRunCommand_Fail(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "note.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "PASS note_roundtrip")
	assert.Contains(t, out, "FAIL wrong_count")
	assert.Contains(t, out, "expect_count failed")
	assert.Contains(t, out, "Summary: 1 passed, 1 failed, 2 total")
}

func TestRunCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "note.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := execute(t, "run", dir, "--filter", "note*")
	require.NoError(t, err)
	assert.NotContains(t, out, "wrong_count")
	assert.Contains(t, out, "Summary: 1 passed, 0 failed, 1 total")
}

func TestRunCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := execute(t, "run", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "wrong_count", resp.Data.Scenarios[0].Name)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestRunCommand_UpdateGolden(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "note.yaml", passingScenario)
	goldenPath := filepath.Join(dir, "golden", "note_roundtrip.golden")

	_, err := execute(t, "run", path, "--update")
	require.NoError(t, err)

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"note_roundtrip"`)
	assert.Contains(t, string(golden), `"fields":{"text":"hello"}`)

	// The written golden file now gates the run.
	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS note_roundtrip")

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"pass":true}`), 0644))
	out, err = execute(t, "run", path)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestRunCommand_InvalidScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "bad.yaml", "name: bad\nsteps: []\n")

	out, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL bad.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestRunCommand_MissingPath(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestRunCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestRunCommand_PackagedScenarios(t *testing.T) {
	out, err := execute(t, "run", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "Summary: 3 passed, 0 failed, 3 total")
}

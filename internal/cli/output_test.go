package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/coordinator"
	"github.com/roach88/strata/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(DeleteResult{Deleted: 3})
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   DeleteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Deleted)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("FETCH_FAILED", "fetch failed", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FETCH_FAILED", resp.Error.Code)
	assert.Equal(t, "fetch failed", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"kind": "Order", "context": "primary"}
	err := formatter.Error("E_FAILED", "delete failed", details)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, map[string]any{"kind": "Order", "context": "primary"}, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(DeleteResult{Deleted: 2})
	require.NoError(t, err)
	assert.Equal(t, "2 record(s) deleted\n", buf.String())
}

func TestOutputFormatter_TextRecords(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	views := []RecordView{
		{ID: "id-1", Kind: "Order", Seq: 1, Fields: ir.Object{"total": ir.Int(10), "status": ir.String("open")}},
		{ID: "id-2", Kind: "Order", Seq: 2, Fields: ir.Object{}},
	}
	require.NoError(t, formatter.Success(views))
	assert.Equal(t, "id-1 Order {\"status\":\"open\",\"total\":10}\nid-2 Order {}\n", buf.String())
}

func TestOutputFormatter_TextIDs(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success([]ir.ObjectID{"a", "b"}))
	assert.Equal(t, "a\nb\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E_COMMAND", "invalid sort", map[string]string{"sort": "x:y"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_COMMAND]")
	assert.Contains(t, buf.String(), "invalid sort")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"sort": "x:y"}
	err := formatter.Error("E_COMMAND", "invalid sort", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_COMMAND]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("opening %s", "strata.sqlite")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "opening strata.sqlite")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "json",
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   true,
	}

	formatter.VerboseLog("3 record(s)")
	assert.Empty(t, out.String())
	assert.Equal(t, "3 record(s)\n", errOut.String())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"coordinator", &coordinator.Error{Code: coordinator.CodeFetchFailed, Op: "fetch"}, "FETCH_FAILED"},
		{"wrapped coordinator", WrapExitError(ExitCommandError, "open", &coordinator.Error{Code: coordinator.CodeStoreOpen}), "STORE_OPEN"},
		{"command", NewExitError(ExitCommandError, "bad flag"), "E_COMMAND"},
		{"plain", errors.New("boom"), "E_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	t.Run("wraps plain errors as failures", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		err := formatter.Fail("save", &coordinator.Error{Code: coordinator.CodeCommit, Op: "save"})
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.True(t, errors.Is(err, coordinator.ErrCommit))
		assert.Equal(t, "Error [COMMIT]: save: save: COMMIT\n", buf.String())
	})

	t.Run("keeps an existing exit code", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		cause := NewExitError(ExitCommandError, "bad sort")
		err := formatter.Fail("invalid sort", cause)
		assert.Same(t, cause, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, buf.String(), "Error [E_COMMAND]: invalid sort: bad sort")
	})
}

func TestExitError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := WrapExitError(ExitFailure, "save failed", cause)

	assert.Equal(t, "save failed: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("other")))
	assert.Equal(t, "bad args", NewExitError(ExitCommandError, "bad args").Error())
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "E_SCENARIO_FAILED",
		Message: "1 scenario(s) failed",
		Details: []string{"shop"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "E_SCENARIO_FAILED", decoded.Code)
	assert.Equal(t, "1 scenario(s) failed", decoded.Message)
	assert.Equal(t, []any{"shop"}, decoded.Details)
}

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"graphs": 3}))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"graphs": float64(3)}, resp.Data)
	assert.NotContains(t, buf.String(), "run_id", "empty run id is omitted")

	buf.Reset()
	require.NoError(t, formatter.Error("E005", "graph path not found", map[string]string{"path": "x"}))
	resp = CLIResponse{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "graph path not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("All graphs valid"))
	assert.Equal(t, "All graphs valid\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Error("E001", "compilation failed", map[string]string{"file": "g.cue"}))
	assert.Contains(t, buf.String(), "Error [E001]: compilation failed")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E001", "compilation failed", map[string]string{"file": "g.cue"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Encode(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Encode(CLIResponse{Status: "ok", RunID: "run-0001"}))
	assert.Contains(t, buf.String(), "\n  \"run_id\": \"run-0001\"")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		errOut  bool
	}{
		{"disabled", false, false},
		{"enabled to writer", true, false},
		{"enabled to err writer", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, Verbose: tt.verbose}
			if tt.errOut {
				formatter.ErrWriter = errOut
			}

			formatter.VerboseLog("Compiling graph: %s", "lowpass")

			switch {
			case !tt.verbose:
				assert.Empty(t, out.String())
			case tt.errOut:
				assert.Empty(t, out.String(), "verbose output must not corrupt JSON")
				assert.Equal(t, "Compiling graph: lowpass\n", errOut.String())
			default:
				assert.Equal(t, "Compiling graph: lowpass\n", out.String())
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))

	cause := errors.New("disk full")
	wrapped := fmt.Errorf("compile: %w", WrapExitError(ExitCommandError, "writing output", cause))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "compile: writing output: disk full", wrapped.Error())
}

func TestCommandError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := commandError(formatter, ErrCodeNotFound, "graph path not found: x")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "E005: graph path not found: x", err.Error())
	assert.Contains(t, buf.String(), "Error [E005]")
}

package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigir/internal/compiler"
)

func TestValidateValidGraphs(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), graphsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All 3 graph(s) valid")
}

func TestValidateValidGraphsJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), graphsDir)
	require.NoError(t, err)

	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.Graphs)
	assert.Empty(t, result.Errors)
}

func TestValidateReportsEveryError(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), brokenDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E104: typo.nodes[0].op:")
	assert.Contains(t, out, "E108: typo.outputs[0]:")
	assert.NotContains(t, out, "unclosed", "unclosed groups are only caught by compile")
}

func TestValidateErrorsJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), filepath.Join(brokenDir, "invalid.yml"))
	require.Error(t, err)

	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.Graphs)

	codes := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		codes[i] = e.Code
	}
	assert.Contains(t, codes, compiler.ErrUnknownOp)
	assert.Contains(t, codes, compiler.ErrUndefinedOutput)
	require.NotNil(t, resp.Error)
	assert.Equal(t, result.Errors[0].Code, resp.Error.Code)
}

func TestValidateDuplicateGraphIsReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "graph:\n  one:\n    outputs: [a]\n    nodes: [{id: a, op: int, value: 1}]\n")
	writeFile(t, dir, "b.yml", "graph:\n  one:\n    outputs: [b]\n    nodes: [{id: b, op: int, value: 2}]\n")

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `E008: load: graph "one" defined more than once`)
}

func TestValidateNonExistentPath(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/graphs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
	assert.Contains(t, out, "graph path not found")
}

func TestValidatePath(t *testing.T) {
	errs, err := ValidatePath(graphsDir)
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidatePath(brokenDir)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Contains(t, e.Field, "typo.")
	}

	_, err = ValidatePath(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

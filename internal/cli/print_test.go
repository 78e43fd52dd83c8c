package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintNormalForms(t *testing.T) {
	out, err := execute(t, NewPrintCommand(&RootOptions{Format: "text"}), graphsDir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 6)
	assert.Equal(t, []string{"# adder", "5", "# gain", "input(0)", "# lowpass"}, lines[:5])
	assert.Contains(t, lines[5], `hslider("gain", 0.5, 0.0, 1.0, 0.01)`)
}

func TestPrintJSON(t *testing.T) {
	out, err := execute(t, NewPrintCommand(&RootOptions{Format: "json"}), graphsDir, "--graph", "adder")
	require.NoError(t, err)

	var printed []PrintedGraph
	resp := decode(t, out, &printed)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []PrintedGraph{{Graph: "adder", Outputs: []string{"5"}}}, printed)
}

func TestPrintDepth(t *testing.T) {
	out, err := execute(t, NewPrintCommand(&RootOptions{Format: "text"}),
		filepath.Join(graphsDir, "filters.cue"), "--graph", "lowpass", "--depth", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "hslider")
}

func TestPrintColor(t *testing.T) {
	out, err := execute(t, NewPrintCommand(&RootOptions{Format: "text"}), graphsDir, "--graph", "gain", "--color")
	require.NoError(t, err)
	assert.Contains(t, out, "\x1b[", "color is forced on")
	assert.Contains(t, out, "input")

	plain, err := execute(t, NewPrintCommand(&RootOptions{Format: "text"}), graphsDir, "--graph", "gain")
	require.NoError(t, err)
	assert.NotContains(t, plain, "\x1b[")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f), "regular files are not terminals")

	t.Setenv("NO_COLOR", "1")
	assert.False(t, isTerminal(os.Stdout))
}

func TestPrintFailure(t *testing.T) {
	out, err := execute(t, NewPrintCommand(&RootOptions{Format: "text"}), filepath.Join(brokenDir, "graphs.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "# adder\n5\n")
	assert.Contains(t, out, "# unclosed\n✗ UNRESOLVED_RECURSION:")
}

func TestPrintGraphNotFound(t *testing.T) {
	out, err := execute(t, NewPrintCommand(&RootOptions{Format: "json"}), graphsDir, "--graph", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decode(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeGraphNotFound, resp.Error.Code)
}

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "sub/c.yaml", "golden/a.golden"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := DiscoverScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "c.yaml"),
	}, files)

	files, err = DiscoverScenarios(dir, "[ab]")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestDiscoverScenarios_Errors(t *testing.T) {
	_, err := DiscoverScenarios(filepath.Join(t.TempDir(), "missing"), "")
	var dirErr *ScenarioDirError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, "not found", dirErr.Reason)

	file := filepath.Join(t.TempDir(), "f.yaml")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = DiscoverScenarios(file, "")
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, "not a directory", dirErr.Reason)

	_, err = DiscoverScenarios(t.TempDir(), "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

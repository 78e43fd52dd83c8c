package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_ConstantFolding(t *testing.T) {
	result, err := RunWithGolden(t, adderScenario())
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRunWithGolden_UnresolvedRecursion(t *testing.T) {
	result, err := RunWithGolden(t, unclosedScenario())
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	result, err := Run(adderScenario())
	require.NoError(t, err)

	a, err := MarshalSnapshot(&result.Snapshot)
	require.NoError(t, err)
	b, err := MarshalSnapshot(&result.Snapshot)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, byte('\n'), a[len(a)-1])
	assert.Contains(t, string(a), `"outputs":["5"]`)
}

func TestUpdateAndCompareGolden(t *testing.T) {
	dir := t.TempDir()
	scenarioFile := filepath.Join(dir, "const_fold.yaml")

	result, err := Run(adderScenario())
	require.NoError(t, err)

	_, ok, err := CompareGolden(scenarioFile, result)
	require.NoError(t, err)
	assert.False(t, ok, "no golden file yet")

	require.NoError(t, UpdateGolden(scenarioFile, result))
	assert.FileExists(t, filepath.Join(dir, "golden", "const_fold.golden"))

	match, ok, err := CompareGolden(scenarioFile, result)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, match)

	require.NoError(t, os.WriteFile(GoldenPath(scenarioFile), []byte("{}\n"), 0o644))
	match, ok, err = CompareGolden(scenarioFile, result)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, match)
}

func TestDiffGolden(t *testing.T) {
	dir := t.TempDir()
	scenarioFile := filepath.Join(dir, "const_fold.yaml")

	result, err := Run(adderScenario())
	require.NoError(t, err)

	_, err = DiffGolden(scenarioFile, result)
	require.Error(t, err, "no golden file yet")

	require.NoError(t, UpdateGolden(scenarioFile, result))
	diff, err := DiffGolden(scenarioFile, result)
	require.NoError(t, err)
	assert.NotContains(t, diff, "[-")
	assert.NotContains(t, diff, "{+")

	golden, err := os.ReadFile(GoldenPath(scenarioFile))
	require.NoError(t, err)
	stale := strings.Replace(string(golden), `"rewrites":1`, `"rewrites":2`, 1)
	require.NoError(t, os.WriteFile(GoldenPath(scenarioFile), []byte(stale), 0o644))

	diff, err = DiffGolden(scenarioFile, result)
	require.NoError(t, err)
	assert.Contains(t, diff, `"rewrites":[-2-]{+1+}`)
	assert.True(t, strings.HasPrefix(diff, "..."), "leading context is elided: %s", diff)

	require.NoError(t, os.WriteFile(GoldenPath(scenarioFile), []byte("{}\n"), 0o644))
	diff, err = DiffGolden(scenarioFile, result)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(diff, `{{+"diagnostics":[],"graph":"adder"`), diff)
	assert.True(t, strings.HasSuffix(diff, `+}}`), diff)
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "x.golden"), GoldenPath(filepath.Join("a", "b", "x.yaml")))
}

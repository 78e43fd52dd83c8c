package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigir/internal/compiler"
)

func TestLoadGraphsDirectory(t *testing.T) {
	result, errs := LoadGraphs(graphsDir, LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, result)

	names := make([]string, len(result.Graphs))
	for i, g := range result.Graphs {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"adder", "gain", "lowpass"}, names)
	assert.Len(t, result.Files, 2)

	spec, ok := result.Lookup("lowpass")
	require.True(t, ok)
	assert.Equal(t, []string{"out"}, spec.Outputs)

	_, ok = result.Lookup("missing")
	assert.False(t, ok)
}

func TestLoadGraphsSingleFile(t *testing.T) {
	result, errs := LoadGraphs(filepath.Join(graphsDir, "adder.yaml"), LoadModeFailFast)
	require.Empty(t, errs)
	require.Len(t, result.Graphs, 1)
	assert.Equal(t, "adder", result.Graphs[0].Name)
}

func TestLoadGraphsCUEPackageAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cue", `package test

graph: one: {
	outputs: ["a"]
	nodes: [{id: "a", op: "int", value: 1}]
}
`)
	writeFile(t, dir, "b.cue", `package test

graph: two: {
	outputs: ["b"]
	nodes: [{id: "b", op: "real", value: 2.5}]
}
`)
	writeFile(t, dir, "nested/ignored.yaml", "graph:\n  three:\n    outputs: [c]\n    nodes: [{id: c, op: int, value: 3}]\n")

	result, errs := LoadGraphs(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	require.Len(t, result.Graphs, 2, "only top-level files are read")
	assert.Equal(t, "one", result.Graphs[0].Name)
	assert.Equal(t, "two", result.Graphs[1].Name)
}

func TestLoadGraphsModes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "graph:\n  dup:\n    outputs: [a]\n    nodes: [{id: a, op: int, value: 1}]\n")
	writeFile(t, dir, "b.yaml", "graph: [not, a, map]\n")
	writeFile(t, dir, "c.yaml", "graph:\n  dup:\n    outputs: [c]\n    nodes: [{id: c, op: int, value: 3}]\n")

	result, errs := LoadGraphs(dir, LoadModeCollectAll)
	require.NotNil(t, result)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrCodeLoadFailed, errs[0].(*LoadError).Code)
	assert.Equal(t, ErrCodeDuplicateGraph, errs[1].(*LoadError).Code)

	_, errs = LoadGraphs(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeLoadFailed, errs[0].(*LoadError).Code)
}

func TestLoadGraphsErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		code string
	}{
		{"not found", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }, ErrCodeNotFound},
		{"no files", func(t *testing.T) string {
			dir := t.TempDir()
			writeFile(t, dir, "README.md", "graphs live elsewhere")
			return dir
		}, ErrCodeNoFiles},
		{"unsupported", func(t *testing.T) string { return writeFile(t, t.TempDir(), "g.toml", "") }, ErrCodeUnsupportedFile},
		{"no graph field", func(t *testing.T) string {
			return writeFile(t, t.TempDir(), "g.cue", "package g\nother: 1\n")
		}, ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, errs := LoadGraphs(tt.path(t), LoadModeCollectAll)
			assert.Nil(t, result)
			require.Len(t, errs, 1)
			var loadErr *LoadError
			require.ErrorAs(t, errs[0], &loadErr)
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}
}

func TestLoadErrorPosition(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", "package g\ngraph: one: {nodes: []}\n")

	_, errs := LoadGraphs(path, LoadModeCollectAll)
	require.Len(t, errs, 1)
	var loadErr *LoadError
	require.ErrorAs(t, errs[0], &loadErr)
	assert.Equal(t, compiler.ErrGraphNoOutputs, loadErr.Code)
	assert.True(t, loadErr.Pos.IsValid())
	assert.Contains(t, loadErr.Error(), "bad.cue:")
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"name", "E101"},
		{"outputs", "E102"},
		{"outputs[2]", "E102"},
		{"nodes", "E103"},
		{"node.op", "E104"},
		{"node.id", "E112"},
		{"value", "E110"},
		{"cue", "E006"},
		{"graph", "E001"},
		{"", "E001"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}

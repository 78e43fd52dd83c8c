package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigir/internal/ir"
)

const lowpassYAML = `
graph:
  lowpass:
    outputs: [out]
    nodes:
      - {id: x, op: input, value: 0}
      - {id: g0, op: real, value: 0.5}
      - {id: lo, op: real, value: 0}
      - {id: hi, op: real, value: 1}
      - {id: step, op: real, value: 0.01}
      - {id: gain, op: hslider, label: gain, args: [g0, lo, hi, step]}
      - {id: fb, op: open, group: 0}
      - {id: prev, op: delay1, args: [fb]}
      - {id: wet, op: mul, args: [prev, gain]}
      - {id: sum, op: add, args: [x, wet]}
      - {id: out, op: close, group: 0, args: [sum]}
  adder:
    outputs: [five]
    nodes:
      - {id: two, op: int, value: 2}
      - {id: three, op: int, value: 3}
      - {id: five, op: add, args: [two, three]}
`

func TestParseGraphsYAML(t *testing.T) {
	graphs, err := ParseGraphsYAML([]byte(lowpassYAML))
	require.NoError(t, err)
	require.Len(t, graphs, 2)

	assert.Equal(t, "adder", graphs[0].Name, "graphs sorted by name")
	assert.Equal(t, "lowpass", graphs[1].Name)

	lp := graphs[1]
	assert.Equal(t, []string{"out"}, lp.Outputs)
	require.Len(t, lp.Nodes, 11)
	assert.Equal(t, NodeSpec{
		ID: "gain", Op: "hslider", Label: "gain",
		Args: []string{"g0", "lo", "hi", "step"}, Line: 11,
	}, lp.Nodes[5])
	assert.Equal(t, 6, lp.Nodes[0].Line)
	assert.Empty(t, Validate(&lp))
}

func TestParseGraphsYAML_Malformed(t *testing.T) {
	_, err := ParseGraphsYAML([]byte("graph: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse graph yaml")

	_, err = ParseGraphsYAML([]byte("graph:\n  bad:\n    nodes: 7\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `graph "bad"`)
}

func TestBuild_Lowpass(t *testing.T) {
	graphs, err := ParseGraphsYAML([]byte(lowpassYAML))
	require.NoError(t, err)

	p := ir.NewPool()
	outputs, err := Build(p, &graphs[1])
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	g, body, ok := ir.MatchRec(outputs[0])
	require.True(t, ok)
	assert.Equal(t, 0, g)
	op, _, _, ok := ir.MatchBinOp(body)
	require.True(t, ok)
	assert.Equal(t, ir.OpAdd, op)
	assert.True(t, p.IsGroupClosed(0))
}

func TestBuild_SharesEqualNodes(t *testing.T) {
	spec := &GraphSpec{
		Name:    "shared",
		Outputs: []string{"a", "b"},
		Nodes: []NodeSpec{
			{ID: "x", Op: "input", Value: 1},
			{ID: "y", Op: "input", Value: 1},
			{ID: "a", Op: "prim", Name: "sin", Args: []string{"x"}},
			{ID: "b", Op: "prim", Name: "sin", Args: []string{"y"}},
		},
	}

	p := ir.NewPool()
	outputs, err := Build(p, spec)
	require.NoError(t, err)
	assert.Equal(t, outputs[0], outputs[1])
}

func TestBuild_EveryOp(t *testing.T) {
	spec := &GraphSpec{
		Name:    "all",
		Outputs: []string{"mix", "bar", "len", "sf_rate", "buf", "w", "en", "ctl", "ab", "lo", "hi", "sel3", "tbl"},
		Nodes: []NodeSpec{
			{ID: "zero", Op: "int", Value: 0},
			{ID: "one", Op: "int", Value: 1},
			{ID: "half", Op: "real", Value: 0.5},
			{ID: "x", Op: "input", Value: 0},
			{ID: "sr", Op: "fconst", Kind: "int", Name: "fSamplingFreq", File: "<math.h>"},
			{ID: "count", Op: "fvar", Kind: "real", Name: "count", File: "state.h"},
			{ID: "btn", Op: "button", Label: "gate"},
			{ID: "chk", Op: "checkbox", Label: "bypass"},
			{ID: "vs", Op: "vslider", Label: "v", Args: []string{"half", "zero", "one", "half"}},
			{ID: "ne", Op: "nentry", Label: "n", Args: []string{"zero", "zero", "one", "one"}},
			{ID: "ic", Op: "intcast", Args: []string{"x"}},
			{ID: "fc", Op: "floatcast", Args: []string{"ic"}},
			{ID: "d", Op: "delay", Args: []string{"fc", "one"}},
			{ID: "sh", Op: "lsh", Args: []string{"ic", "one"}},
			{ID: "mix", Op: "add", Args: []string{"d", "vs"}},
			{ID: "bar", Op: "vbargraph", Label: "meter", Args: []string{"zero", "one", "ne"}},
			{ID: "sf", Op: "soundfile", Label: "kick"},
			{ID: "len", Op: "length", Args: []string{"sf", "zero"}},
			{ID: "sf_rate", Op: "rate", Args: []string{"sf", "zero"}},
			{ID: "buf", Op: "buffer", Args: []string{"sf", "zero", "zero", "ic"}},
			{ID: "w", Op: "waveform", Args: []string{"zero", "half", "one"}},
			{ID: "en", Op: "enable", Args: []string{"x", "chk"}},
			{ID: "ctl", Op: "control", Args: []string{"sr", "btn"}},
			{ID: "ab", Op: "assertbounds", Args: []string{"zero", "one", "count"}},
			{ID: "lo", Op: "lowest", Args: []string{"x"}},
			{ID: "hi", Op: "highest", Args: []string{"sh"}},
			{ID: "sel3", Op: "select3", Args: []string{"one", "x", "half", "zero"}},
			{ID: "size", Op: "int", Value: 8},
			{ID: "tbl", Op: "wrtable", Args: []string{"size", "w", "ic", "x", "ic"}},
		},
	}
	require.Empty(t, Validate(spec))

	p := ir.NewPool()
	outputs, err := Build(p, spec)
	require.NoError(t, err)
	require.Len(t, outputs, len(spec.Outputs))

	tags := make([]ir.Tag, len(outputs))
	for i, o := range outputs {
		tags[i] = o.Tag()
	}
	assert.Equal(t, []ir.Tag{
		ir.TagBinOp, ir.TagVBargraph, ir.TagSoundfileLength, ir.TagSoundfileRate, ir.TagSoundfileBuffer,
		ir.TagWaveform, ir.TagEnable, ir.TagControl, ir.TagAssertBounds,
		ir.TagLowest, ir.TagHighest, ir.TagSelect3, ir.TagWRTable,
	}, tags)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		nodes []NodeSpec
		out   string
		want  string
	}{
		{"duplicate id", []NodeSpec{{ID: "a", Op: "int"}, {ID: "a", Op: "int"}}, "a", `node "a": duplicate id`},
		{"unknown op", []NodeSpec{{ID: "a", Op: "nope"}}, "a", `unknown op "nope"`},
		{"arity", []NodeSpec{{ID: "a", Op: "int"}, {ID: "b", Op: "sub", Args: []string{"a"}}}, "b", "sub takes 2 args, got 1"},
		{"undefined arg", []NodeSpec{{ID: "b", Op: "delay1", Args: []string{"z"}}}, "b", `undefined node "z"`},
		{"fractional int", []NodeSpec{{ID: "a", Op: "int", Value: 0.5}}, "a", "not integral"},
		{"bad kind", []NodeSpec{{ID: "a", Op: "fvar", Name: "v", Kind: "complex"}}, "a", `invalid kind "complex"`},
		{"undefined output", []NodeSpec{{ID: "a", Op: "int"}}, "ghost", `output 0: undefined node "ghost"`},
		{"builder rejects", []NodeSpec{{ID: "a", Op: "self", Group: 3}}, "a", "group not opened"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := &GraphSpec{Name: "bad", Outputs: []string{tt.out}, Nodes: tt.nodes}
			_, err := Build(ir.NewPool(), spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "graph bad")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestArityOf(t *testing.T) {
	n, ok := ArityOf("add", "")
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = ArityOf("prim", "atan2")
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = ArityOf("waveform", "")
	assert.True(t, ok)
	assert.Equal(t, -1, n)

	_, ok = ArityOf("prim", "")
	assert.False(t, ok)
}

func TestSpecOps(t *testing.T) {
	ops := SpecOps()
	assert.IsIncreasing(t, ops)
	assert.Contains(t, ops, "prim")
	assert.Contains(t, ops, "xor")
	assert.Contains(t, ops, "close")
	for _, op := range ops {
		if op == "prim" {
			continue
		}
		_, ok := ArityOf(op, "")
		assert.True(t, ok, op)
	}
}

package compiler

import (
	"fmt"
	"math"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sigir/internal/ir"
)

// GraphSpec describes a signal graph as data: an ordered list of nodes, each
// one builder call, and the ids of the nodes that form the output list.
// Nodes may only refer to nodes listed before them.
type GraphSpec struct {
	Name    string     `json:"name" yaml:"name"`
	Outputs []string   `json:"outputs" yaml:"outputs"`
	Nodes   []NodeSpec `json:"nodes" yaml:"nodes"`
}

// NodeSpec is one builder call.
//
// Op is a node tag name ("int", "hslider", "delay"...), a binary operator name
// ("add", "lsh"...), "prim" for a named primitive, or one of the recursion
// calls "open", "self" and "close".
type NodeSpec struct {
	ID    string   `json:"id" yaml:"id"`
	Op    string   `json:"op" yaml:"op"`
	Args  []string `json:"args,omitempty" yaml:"args,omitempty"`
	Value float64  `json:"value,omitempty" yaml:"value,omitempty"` // literal value or input index
	Label string   `json:"label,omitempty" yaml:"label,omitempty"` // UI and soundfile label
	Name  string   `json:"name,omitempty" yaml:"name,omitempty"`   // primitive or foreign symbol
	File  string   `json:"file,omitempty" yaml:"file,omitempty"`   // foreign source file
	Kind  string   `json:"kind,omitempty" yaml:"kind,omitempty"`   // foreign kind: int or real
	Group int      `json:"group,omitempty" yaml:"group,omitempty"` // recursion group id
	Line  int      `json:"-" yaml:"-"`
}

// specArity is the number of args each op takes; -1 means one or more.
// Binary operators take two and primitives take their registered arity.
var specArity = map[string]int{
	"int": 0, "real": 0, "input": 0, "soundfile": 0, "fconst": 0, "fvar": 0,
	"button": 0, "checkbox": 0, "open": 0, "self": 0,
	"close": 1, "intcast": 1, "floatcast": 1, "delay1": 1, "lowest": 1, "highest": 1,
	"delay": 2, "length": 2, "rate": 2, "attach": 2, "enable": 2, "control": 2,
	"rdtable": 3, "select2": 3, "vbargraph": 3, "hbargraph": 3, "assertbounds": 3,
	"buffer": 4, "select3": 4, "vslider": 4, "hslider": 4, "nentry": 4,
	"wrtable": 5,
	"waveform": -1,
}

// ArityOf returns the number of args op takes (-1 for one or more).
func ArityOf(op, prim string) (int, bool) {
	if _, ok := ir.ParseOp(op); ok {
		return 2, true
	}
	if op == "prim" {
		p, ok := ir.LookupPrimitive(prim)
		if !ok {
			return 0, false
		}
		return p.Arity, true
	}
	n, ok := specArity[op]
	return n, ok
}

// SpecOps returns every op name a NodeSpec accepts, sorted.
func SpecOps() []string {
	ops := []string{"prim"}
	for op := range specArity {
		ops = append(ops, op)
	}
	for op := ir.OpAdd; op.IsValid(); op++ {
		ops = append(ops, op.String())
	}
	slices.Sort(ops)
	return ops
}

// ParseGraphsYAML decodes a YAML document of the form
//
//	graph:
//	  <name>:
//	    outputs: [...]
//	    nodes: [...]
//
// Graphs are returned sorted by name.
func ParseGraphsYAML(data []byte) ([]GraphSpec, error) {
	var doc struct {
		Graph map[string]yaml.Node `yaml:"graph"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse graph yaml: %w", err)
	}

	names := make([]string, 0, len(doc.Graph))
	for name := range doc.Graph {
		names = append(names, name)
	}
	slices.Sort(names)

	graphs := make([]GraphSpec, 0, len(names))
	for _, name := range names {
		node := doc.Graph[name]
		var g GraphSpec
		if err := node.Decode(&g); err != nil {
			return nil, fmt.Errorf("graph %q: %w", name, err)
		}
		g.Name = name
		if err := recordLines(&node, &g); err != nil {
			return nil, fmt.Errorf("graph %q: %w", name, err)
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// recordLines copies each node's source line from the YAML tree.
func recordLines(node *yaml.Node, g *GraphSpec) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "nodes" {
			continue
		}
		items := node.Content[i+1].Content
		if len(items) != len(g.Nodes) {
			return fmt.Errorf("nodes: decoded %d of %d entries", len(g.Nodes), len(items))
		}
		for j, item := range items {
			g.Nodes[j].Line = item.Line
		}
	}
	return nil
}

// Build replays spec's builder calls on pool and returns the outputs.
// Construction errors are reported immediately, tagged with the node id.
func Build(pool *ir.Pool, spec *GraphSpec) ([]ir.Signal, error) {
	b := &graphBuilder{pool: pool, nodes: make(map[string]ir.Signal, len(spec.Nodes))}
	for _, n := range spec.Nodes {
		if _, dup := b.nodes[n.ID]; dup {
			return nil, fmt.Errorf("graph %s: node %q: duplicate id", spec.Name, n.ID)
		}
		s, err := b.build(n)
		if err != nil {
			return nil, fmt.Errorf("graph %s: node %q: %w", spec.Name, n.ID, err)
		}
		b.nodes[n.ID] = s
	}

	outputs := make([]ir.Signal, len(spec.Outputs))
	for i, id := range spec.Outputs {
		s, ok := b.nodes[id]
		if !ok {
			return nil, fmt.Errorf("graph %s: output %d: undefined node %q", spec.Name, i, id)
		}
		outputs[i] = s
	}
	return outputs, nil
}

type graphBuilder struct {
	pool  *ir.Pool
	nodes map[string]ir.Signal
}

func (b *graphBuilder) args(n NodeSpec) ([]ir.Signal, error) {
	want, ok := ArityOf(n.Op, n.Name)
	if !ok {
		return nil, fmt.Errorf("unknown op %q", n.Op)
	}
	if (want >= 0 && len(n.Args) != want) || (want < 0 && len(n.Args) == 0) {
		return nil, fmt.Errorf("%s takes %d args, got %d", n.Op, want, len(n.Args))
	}
	args := make([]ir.Signal, len(n.Args))
	for i, id := range n.Args {
		s, ok := b.nodes[id]
		if !ok {
			return nil, fmt.Errorf("arg %d: undefined node %q", i, id)
		}
		args[i] = s
	}
	return args, nil
}

func (b *graphBuilder) build(n NodeSpec) (ir.Signal, error) {
	a, err := b.args(n)
	if err != nil {
		return ir.Signal{}, err
	}
	p := b.pool

	if op, ok := ir.ParseOp(n.Op); ok {
		return p.BinOp(op, a[0], a[1])
	}

	switch n.Op {
	case "int":
		if n.Value != math.Trunc(n.Value) {
			return ir.Signal{}, fmt.Errorf("int value %v is not integral", n.Value)
		}
		return p.Int(int64(n.Value))
	case "real":
		return p.Real(n.Value)
	case "input":
		return p.Input(int(n.Value))
	case "prim":
		return p.Prim(n.Name, a...)
	case "intcast":
		return p.IntCast(a[0])
	case "floatcast":
		return p.FloatCast(a[0])
	case "delay":
		return p.Delay(a[0], a[1])
	case "delay1":
		return p.Delay1(a[0])
	case "rdtable":
		return p.ReadTable(a[0], a[1], a[2])
	case "wrtable":
		return p.WriteTable(a[0], a[1], a[2], a[3], a[4])
	case "waveform":
		return p.Waveform(a...)
	case "soundfile":
		return p.Soundfile(n.Label)
	case "length":
		return p.SoundfileLength(a[0], a[1])
	case "rate":
		return p.SoundfileRate(a[0], a[1])
	case "buffer":
		return p.SoundfileBuffer(a[0], a[1], a[2], a[3])
	case "select2":
		return p.Select2(a[0], a[1], a[2])
	case "select3":
		return p.Select3(a[0], a[1], a[2], a[3])
	case "fconst", "fvar":
		kind, ok := ir.ParseKind(n.Kind)
		if !ok {
			return ir.Signal{}, fmt.Errorf("%s: invalid kind %q", n.Op, n.Kind)
		}
		if n.Op == "fconst" {
			return p.FConst(kind, n.Name, n.File)
		}
		return p.FVar(kind, n.Name, n.File)
	case "open":
		return p.OpenGroup(n.Group)
	case "self":
		return p.SelfRef(n.Group)
	case "close":
		return p.CloseGroup(n.Group, a[0])
	case "button":
		return p.Button(n.Label)
	case "checkbox":
		return p.Checkbox(n.Label)
	case "vslider":
		return p.VSlider(n.Label, a[0], a[1], a[2], a[3])
	case "hslider":
		return p.HSlider(n.Label, a[0], a[1], a[2], a[3])
	case "nentry":
		return p.NumEntry(n.Label, a[0], a[1], a[2], a[3])
	case "vbargraph":
		return p.VBargraph(n.Label, a[0], a[1], a[2])
	case "hbargraph":
		return p.HBargraph(n.Label, a[0], a[1], a[2])
	case "attach":
		return p.Attach(a[0], a[1])
	case "enable":
		return p.Enable(a[0], a[1])
	case "control":
		return p.Control(a[0], a[1])
	case "assertbounds":
		return p.AssertBounds(a[0], a[1], a[2])
	case "lowest":
		return p.Lowest(a[0])
	case "highest":
		return p.Highest(a[0])
	}
	return ir.Signal{}, fmt.Errorf("unknown op %q", n.Op)
}

// Package plan encodes a finalized output list as a flat, pool-independent
// computation plan with a canonical JSON form and a content hash.
package plan

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/sigir/internal/ir"
)

// Plan is a finalized signal graph in dependency order: every node appears
// after its children, so a backend can emit code in one forward pass.
type Plan struct {
	Outputs  []int   `json:"outputs"`
	Nodes    []Node  `json:"nodes"`
	Groups   []Group `json:"groups,omitempty"`
	Schedule [][]int `json:"schedule,omitempty"`
}

// Node is one plan entry. Reals are carried as strings so the encoding is exact.
type Node struct {
	Tag      string    `json:"tag"`
	Op       string    `json:"op,omitempty"`
	Value    string    `json:"value,omitempty"`
	Label    string    `json:"label,omitempty"`
	File     string    `json:"file,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Group    *int      `json:"group,omitempty"`
	Tie      *int      `json:"tie,omitempty"`
	Kids     []int     `json:"kids"`
	Interval *Interval `json:"interval,omitempty"`
}

// Interval is an exact rendering of ir.Interval.
type Interval struct {
	Low  string `json:"low"`
	High string `json:"high"`
	LSB  int32  `json:"lsb"`
}

// Group records a resolved recursion group and the index of its tie.
type Group struct {
	ID  int `json:"id"`
	Tie int `json:"tie"`
}

// Build flattens outputs into a plan. Ties bound to resolved references are
// included even when no output reaches them through child edges.
// All outputs must share one pool.
func Build(outputs []ir.Signal) (*Plan, error) {
	p := &Plan{Outputs: make([]int, len(outputs)), Nodes: []Node{}}
	if len(outputs) == 0 {
		return p, nil
	}
	pool := outputs[0].Pool()
	for i, o := range outputs {
		if err := pool.Check(o); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}

	index := make(map[ir.Signal]int)
	var order []ir.Signal
	add := func(s ir.Signal) {
		if _, ok := index[s]; !ok {
			index[s] = len(order)
			order = append(order, s)
		}
	}

	roots := outputs
	for len(roots) > 0 {
		ir.Walk(roots, add)
		roots = nil
		for _, s := range order {
			if s.Tag() != ir.TagProj {
				continue
			}
			if tie, ok := pool.TieOf(s); ok {
				if _, seen := index[tie]; !seen && !slices.Contains(roots, tie) {
					roots = append(roots, tie)
				}
			}
		}
	}

	for i, o := range outputs {
		p.Outputs[i] = index[o]
	}
	groups := make(map[int]int)
	p.Nodes = make([]Node, len(order))
	for i, s := range order {
		n := encodeNode(pool, s, index)
		if n.Tie != nil {
			groups[*n.Group] = *n.Tie
		}
		p.Nodes[i] = n
	}
	for id, tie := range groups {
		p.Groups = append(p.Groups, Group{ID: id, Tie: tie})
	}
	slices.SortFunc(p.Groups, func(a, b Group) int { return a.ID - b.ID })
	return p, nil
}

func encodeNode(pool *ir.Pool, s ir.Signal, index map[ir.Signal]int) Node {
	n := Node{Tag: s.Tag().String(), Kids: make([]int, s.Arity())}
	for i, k := range s.Children() {
		n.Kids[i] = index[k]
	}
	if c, ok := s.Literal(); ok {
		if c.Kind == ir.KindInt {
			n.Value = strconv.FormatInt(c.Int, 10)
		} else {
			n.Value = ir.FormatFloat(c.Real)
		}
	}
	if op, ok := s.Op(); ok {
		n.Op = op.String()
	}
	if name, ok := s.PrimName(); ok {
		n.Op = name
	}
	if idx, ok := s.InputIndex(); ok {
		n.Value = strconv.Itoa(idx)
	}
	if kind, name, file, ok := s.Foreign(); ok {
		n.Kind, n.Label, n.File = kind.String(), name, file
	} else {
		switch s.Tag() {
		case ir.TagSoundfile, ir.TagButton, ir.TagCheckbox, ir.TagVSlider, ir.TagHSlider,
			ir.TagNumEntry, ir.TagVBargraph, ir.TagHBargraph:
			n.Label = s.Label()
		}
	}
	if g, ok := s.Group(); ok {
		n.Group = &g
	}
	if s.Tag() == ir.TagProj {
		if tie, ok := pool.TieOf(s); ok {
			t := index[tie]
			n.Tie = &t
		}
	}
	if iv, ok := pool.IntervalOf(s); ok {
		n.Interval = &Interval{Low: ir.FormatFloat(iv.Low), High: ir.FormatFloat(iv.High), LSB: iv.LSB}
	}
	return n
}

// Canonical returns the plan as canonical-JSON-ready values.
func (p *Plan) Canonical() map[string]any {
	nodes := make([]any, len(p.Nodes))
	for i, n := range p.Nodes {
		m := map[string]any{
			"tag":  n.Tag,
			"kids": intList(n.Kids),
		}
		for k, v := range map[string]string{"op": n.Op, "value": n.Value, "label": n.Label, "file": n.File, "kind": n.Kind} {
			if v != "" {
				m[k] = v
			}
		}
		if n.Group != nil {
			m["group"] = *n.Group
		}
		if n.Tie != nil {
			m["tie"] = *n.Tie
		}
		if n.Interval != nil {
			m["interval"] = map[string]any{
				"low":  n.Interval.Low,
				"high": n.Interval.High,
				"lsb":  n.Interval.LSB,
			}
		}
		nodes[i] = m
	}

	groups := make([]any, len(p.Groups))
	for i, g := range p.Groups {
		groups[i] = map[string]any{"id": g.ID, "tie": g.Tie}
	}
	schedule := make([]any, len(p.Schedule))
	for i, c := range p.Schedule {
		schedule[i] = intList(c)
	}

	return map[string]any{
		"outputs":  intList(p.Outputs),
		"nodes":    nodes,
		"groups":   groups,
		"schedule": schedule,
	}
}

func intList(xs []int) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

// Encode returns the canonical JSON encoding of p.
func Encode(p *Plan) ([]byte, error) {
	data, err := MarshalCanonical(p.Canonical())
	if err != nil {
		return nil, fmt.Errorf("plan encode: %w", err)
	}
	return data, nil
}

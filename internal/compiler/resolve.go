package compiler

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/sigir/internal/ir"
)

// Resolution is the result of recursion resolution.
type Resolution struct {
	// Outputs are the rewritten outputs, in input order. No self
	// placeholder is reachable from them.
	Outputs []ir.Signal

	// Schedule lists the mutually recursive group components, dependencies
	// first. Each component is sorted by group id.
	Schedule [][]int

	// Ties maps every resolved group to its tie.
	Ties map[int]ir.Signal
}

// Resolve ties every recursion placeholder reachable from outputs back to
// its group and returns an acyclic graph.
//
// The algorithm:
//  1. Collect ties of every group referenced from outputs, following
//     placeholders to ties the outputs do not reach directly
//  2. Build the group dependency graph and find its SCCs
//  3. Reject unclosed groups and zero-delay feedback, all at once
//  4. Rewrite self(g) to proj(g) bottom-up and bind each proj to its tie
//
// Resolving an already-resolved output list returns it unchanged.
func Resolve(pool *ir.Pool, outputs []ir.Signal) (*Resolution, error) {
	for i, o := range outputs {
		if err := pool.Check(o); err != nil {
			return nil, fmt.Errorf("resolve output %d: %w", i, err)
		}
	}

	ties, diags := collectTies(pool, outputs)
	graph := buildDependencyGraph(ties)
	schedule := tarjanSCC(graph)
	diags = append(diags, zeroDelayErrors(schedule, graph, ties)...)
	if len(diags) > 0 {
		slices.SortStableFunc(diags, func(a, b *ir.Error) int { return cmp.Compare(a.Group, b.Group) })
		slog.Debug("recursion resolution failed", "errors", len(diags))
		return nil, diags
	}

	rw := newRewriter(pool)
	res := &Resolution{
		Outputs:  make([]ir.Signal, len(outputs)),
		Schedule: schedule,
		Ties:     make(map[int]ir.Signal, len(ties)),
	}
	for _, g := range graph.nodes() {
		tie, err := rw.rewrite(ties[g])
		if err != nil {
			return nil, fmt.Errorf("resolve group %d: %w", g, err)
		}
		if err := bindTie(pool, g, tie); err != nil {
			return nil, fmt.Errorf("resolve group %d: %w", g, err)
		}
		res.Ties[g] = tie
	}
	for i, o := range outputs {
		out, err := rw.rewrite(o)
		if err != nil {
			return nil, fmt.Errorf("resolve output %d: %w", i, err)
		}
		res.Outputs[i] = out
	}

	slog.Debug("recursion resolved",
		"groups", len(ties),
		"components", len(schedule))
	return res, nil
}

// collectTies finds the tie of every group reachable from outputs.
// Placeholders of groups that were never closed, and resolved references
// with no bound tie, are reported.
func collectTies(pool *ir.Pool, outputs []ir.Signal) (map[int]ir.Signal, ir.Diagnostics) {
	ties := make(map[int]ir.Signal)
	unclosed := make(map[int]bool)
	seen := make(map[ir.Signal]bool)

	roots := outputs
	for len(roots) > 0 {
		var next []ir.Signal
		ir.Walk(roots, func(s ir.Signal) {
			if seen[s] {
				return
			}
			seen[s] = true

			var (
				tie ir.Signal
				ok  bool
			)
			switch s.Tag() {
			case ir.TagRec:
				tie, ok = s, true
			case ir.TagSelf:
				g, _ := s.Group()
				tie, ok = pool.GroupTie(g)
			case ir.TagProj:
				tie, ok = pool.TieOf(s)
			default:
				return
			}

			g, _ := s.Group()
			if !ok {
				unclosed[g] = true
				return
			}
			if _, known := ties[g]; known {
				return
			}
			ties[g] = tie
			if !seen[tie] {
				next = append(next, tie)
			}
		})
		roots = next
	}

	var diags ir.Diagnostics
	for g := range unclosed {
		diags = append(diags, ir.NewUnresolvedRecursion(g, "recursion group opened but never closed"))
	}
	return ties, diags
}

// zeroDelayErrors reports ties whose body is itself a feedback reference to
// a group of the same component: a loop with no sample of delay.
func zeroDelayErrors(schedule [][]int, graph dependencyGraph, ties map[int]ir.Signal) ir.Diagnostics {
	component := make(map[int]int)
	for i, scc := range schedule {
		for _, g := range scc {
			component[g] = i
		}
	}

	var diags ir.Diagnostics
	for _, g := range graph.nodes() {
		_, body, _ := ir.MatchRec(ties[g])
		if !body.IsFeedback() {
			continue
		}
		h, _ := body.Group()
		c, ok := component[h]
		if !ok || c != component[g] {
			continue
		}

		e := ir.NewUnresolvedRecursion(g, "zero-delay self-reference")
		if h != g {
			e = ir.NewUnresolvedRecursion(g, "zero-delay feedback through group %d", h)
		}
		e.Details = map[string]string{
			"cycle": formatCyclePath(reconstructCyclePath(schedule[c], g, graph)),
		}
		diags = append(diags, e)
	}
	return diags
}

// bindTie binds proj(g) to tie. A reference already bound to the same tie
// is left alone, which keeps resolution idempotent.
func bindTie(pool *ir.Pool, g int, tie ir.Signal) error {
	ref, err := pool.ResolvedRef(g)
	if err != nil {
		return err
	}
	if bound, ok := pool.TieOf(ref); ok {
		if bound != tie {
			return &ir.Error{
				Code:     ir.ErrCodeWriteOnce,
				Message:  "resolved reference already bound to a different tie",
				Node:     ref.ID(),
				Group:    g,
				HasGroup: true,
			}
		}
		return nil
	}
	return pool.BindTie(ref, tie)
}

// rewriter re-interns subtrees bottom-up with self placeholders replaced by
// resolved references. Results are memoized so sharing is preserved.
type rewriter struct {
	pool *ir.Pool
	memo map[ir.Signal]ir.Signal
}

func newRewriter(pool *ir.Pool) *rewriter {
	return &rewriter{pool: pool, memo: make(map[ir.Signal]ir.Signal)}
}

func (r *rewriter) rewrite(s ir.Signal) (ir.Signal, error) {
	if out, ok := r.memo[s]; ok {
		return out, nil
	}

	out := s
	switch s.Tag() {
	case ir.TagSelf:
		g, _ := s.Group()
		ref, err := r.pool.ResolvedRef(g)
		if err != nil {
			return ir.Signal{}, err
		}
		out = ref
	case ir.TagProj:
	default:
		if s.Arity() == 0 {
			break
		}
		kids := s.Children()
		for i, k := range kids {
			nk, err := r.rewrite(k)
			if err != nil {
				return ir.Signal{}, err
			}
			kids[i] = nk
		}
		rebuilt, err := r.pool.Rebuild(s, kids)
		if err != nil {
			return ir.Signal{}, err
		}
		out = rebuilt
	}

	r.memo[s] = out
	return out, nil
}

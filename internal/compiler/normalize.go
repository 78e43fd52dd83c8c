package compiler

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/sigir/internal/interval"
	"github.com/roach88/sigir/internal/ir"
)

// Reduce rewrites a resolved output list to normal form: constant folding
// and identity simplification applied bottom-up until no rule fires.
// Shared subexpressions need no separate pass; hash-consing already merged them.
//
// The algorithm:
//  1. Reduce every node reachable from outputs, and the tie of every group
//     referenced from them, treating resolved references as leaves
//  2. Groups whose tie changed, and groups whose body refers to one that
//     did, are re-homed under fresh group ids so tie bindings stay write-once
//
// The output list keeps its order and length. Reduction is deterministic and
// idempotent. an supplies intervals and kinds for the safety checks; a nil
// analyzer is replaced by a fresh one.
func Reduce(pool *ir.Pool, an *interval.Analyzer, outputs []ir.Signal) ([]ir.Signal, error) {
	reduced, _, err := reduceOutputs(pool, an, outputs)
	return reduced, err
}

// reduceOutputs is Reduce that also returns the number of rewrites applied.
func reduceOutputs(pool *ir.Pool, an *interval.Analyzer, outputs []ir.Signal) ([]ir.Signal, int, error) {
	for i, o := range outputs {
		if err := pool.Check(o); err != nil {
			return nil, 0, fmt.Errorf("reduce output %d: %w", i, err)
		}
	}
	if an == nil {
		an = interval.New(pool)
	}

	r := &reducer{
		pool: pool,
		an:   an,
		memo: make(map[ir.Signal]ir.Signal),
		pure: make(map[ir.Signal]bool),
	}

	reduced := make([]ir.Signal, len(outputs))
	for i, o := range outputs {
		out, err := r.reduce(o)
		if err != nil {
			return nil, 0, fmt.Errorf("reduce output %d: %w", i, err)
		}
		reduced[i] = out
	}

	oldTies, newTies, err := r.reduceTies(reduced)
	if err != nil {
		return nil, 0, err
	}

	renamed, err := r.renameGroups(oldTies, newTies)
	if err != nil {
		return nil, 0, err
	}
	if len(renamed) == 0 {
		slog.Debug("normal form reached", "outputs", len(outputs), "rewrites", r.rewrites)
		return reduced, r.rewrites, nil
	}

	rn := &renamer{pool: pool, groups: renamed, memo: make(map[ir.Signal]ir.Signal)}
	for _, g := range sortedKeys(renamed) {
		tie, err := rn.rename(newTies[g])
		if err != nil {
			return nil, 0, fmt.Errorf("rename group %d: %w", g, err)
		}
		ref, err := pool.ResolvedRef(renamed[g])
		if err != nil {
			return nil, 0, fmt.Errorf("rename group %d: %w", g, err)
		}
		if err := pool.BindTie(ref, tie); err != nil {
			return nil, 0, fmt.Errorf("rename group %d: %w", g, err)
		}
	}
	for i, o := range reduced {
		out, err := rn.rename(o)
		if err != nil {
			return nil, 0, fmt.Errorf("reduce output %d: %w", i, err)
		}
		reduced[i] = out
	}

	slog.Debug("normal form reached",
		"outputs", len(outputs),
		"rewrites", r.rewrites,
		"renamed_groups", len(renamed))
	return reduced, r.rewrites, nil
}

type reducer struct {
	pool *ir.Pool
	an   *interval.Analyzer

	memo     map[ir.Signal]ir.Signal
	pure     map[ir.Signal]bool
	rewrites int
}

func (r *reducer) reduce(s ir.Signal) (ir.Signal, error) {
	if out, ok := r.memo[s]; ok {
		return out, nil
	}

	out := s
	if s.Arity() > 0 {
		kids := s.Children()
		for i, k := range kids {
			nk, err := r.reduce(k)
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

	for {
		next, err := r.simplify(out)
		if err != nil {
			return ir.Signal{}, err
		}
		if next == out {
			break
		}
		r.rewrites++
		out = next
	}

	r.memo[s] = out
	r.memo[out] = out
	return out, nil
}

// reduceTies reduces the tie of every group reachable from roots through
// resolved references or ties, including those inside reduced ties. A
// reachable tie is compared against the one its reference is bound to, so a
// group is re-homed even when reduction removed every reference to it.
func (r *reducer) reduceTies(roots []ir.Signal) (oldTies, newTies map[int]ir.Signal, err error) {
	oldTies = make(map[int]ir.Signal)
	newTies = make(map[int]ir.Signal)
	for len(roots) > 0 {
		var next []ir.Signal
		ir.Walk(roots, func(s ir.Signal) {
			if err != nil {
				return
			}
			var (
				g   int
				tie ir.Signal
				ok  bool
			)
			switch s.Tag() {
			case ir.TagProj:
				g, _ = s.Group()
				if _, done := oldTies[g]; done {
					return
				}
				if tie, ok = r.pool.TieOf(s); !ok {
					err = ir.NewUnresolvedRecursion(g, "resolved reference has no tie")
					return
				}
			case ir.TagRec:
				g, _ = s.Group()
				if _, done := oldTies[g]; done {
					return
				}
				ref, rerr := r.pool.ResolvedRef(g)
				if rerr != nil {
					err = fmt.Errorf("reduce group %d: %w", g, rerr)
					return
				}
				// An unbound group is bound fresh by the next resolution.
				if tie, ok = r.pool.TieOf(ref); !ok {
					return
				}
			default:
				return
			}
			reducedTie, rerr := r.reduce(tie)
			if rerr != nil {
				err = fmt.Errorf("reduce group %d: %w", g, rerr)
				return
			}
			oldTies[g] = tie
			newTies[g] = reducedTie
			next = append(next, reducedTie)
		})
		if err != nil {
			return nil, nil, err
		}
		roots = next
	}
	return oldTies, newTies, nil
}

// renameGroups picks the groups to re-home and allocates their fresh ids.
func (r *reducer) renameGroups(oldTies, newTies map[int]ir.Signal) (map[int]int, error) {
	marked := make(map[int]bool)
	for g, tie := range newTies {
		if tie != oldTies[g] {
			marked[g] = true
		}
	}
	if len(marked) == 0 {
		return nil, nil
	}

	deps := make(map[int][]int, len(newTies))
	for g, tie := range newTies {
		deps[g] = groupsIn(tie)
	}
	for changed := true; changed; {
		changed = false
		for g, hs := range deps {
			if marked[g] {
				continue
			}
			for _, h := range hs {
				if marked[h] && h != g {
					marked[g] = true
					changed = true
					break
				}
			}
		}
	}

	renamed := make(map[int]int, len(marked))
	for _, g := range sortedKeys(marked) {
		id, err := r.pool.NewGroupID()
		if err != nil {
			return nil, fmt.Errorf("rename group %d: %w", g, err)
		}
		renamed[g] = id
		slog.Debug("recursion group renamed", "group", g, "new_group", id)
	}
	return renamed, nil
}

// groupsIn returns the groups whose references or ties appear under s.
func groupsIn(s ir.Signal) []int {
	var gs []int
	ir.Walk([]ir.Signal{s}, func(n ir.Signal) {
		switch n.Tag() {
		case ir.TagProj, ir.TagRec, ir.TagSelf:
			g, _ := n.Group()
			gs = append(gs, g)
		}
	})
	slices.Sort(gs)
	return slices.Compact(gs)
}

// isPure reports whether no side-effecting node is reachable from s.
func (r *reducer) isPure(s ir.Signal) bool {
	if v, ok := r.pure[s]; ok {
		return v
	}
	v := !s.IsSideEffecting()
	if v {
		for _, k := range s.Children() {
			if !r.isPure(k) {
				v = false
				break
			}
		}
	}
	r.pure[s] = v
	return v
}

// simplify applies the first matching rule at the root of s, whose children
// are already in normal form. It returns s when no rule applies.
func (r *reducer) simplify(s ir.Signal) (ir.Signal, error) {
	switch s.Tag() {
	case ir.TagBinOp:
		return r.simplifyBinOp(s)
	case ir.TagPrim:
		return r.foldPrim(s)
	case ir.TagIntCast, ir.TagFloatCast:
		return r.simplifyCast(s)
	case ir.TagSelect2, ir.TagSelect3:
		return r.simplifySelect(s), nil
	case ir.TagDelay:
		x, d, _ := ir.MatchDelay(s)
		if d.IsLiteralValue(0) {
			return x, nil
		}
		if x.IsLiteralValue(0) && r.isPure(d) {
			return x, nil
		}
	case ir.TagDelay1:
		if x := s.Child(0); x.IsLiteralValue(0) {
			return x, nil
		}
	case ir.TagAttach:
		if s.Child(1).IsLiteral() {
			return s.Child(0), nil
		}
	case ir.TagLowest, ir.TagHighest:
		return r.foldBound(s)
	}
	return s, nil
}

func (r *reducer) simplifyBinOp(s ir.Signal) (ir.Signal, error) {
	op, x, y, _ := ir.MatchBinOp(s)

	cx, xLit := x.Literal()
	cy, yLit := y.Literal()
	if xLit && yLit {
		c, ok := op.Apply(cx, cy)
		if !ok {
			return s, nil
		}
		return r.pool.Literal(c)
	}

	switch op {
	case ir.OpAdd:
		if y.IsLiteralValue(0) {
			return r.identity(s, op, x, cy), nil
		}
		if x.IsLiteralValue(0) {
			return r.identity(s, op, y, cx), nil
		}
	case ir.OpSub, ir.OpLsh, ir.OpARsh, ir.OpLRsh, ir.OpOr, ir.OpXor:
		if y.IsLiteralValue(0) {
			return r.identity(s, op, x, cy), nil
		}
	case ir.OpDiv:
		if y.IsLiteralValue(1) {
			return r.identity(s, op, x, cy), nil
		}
	case ir.OpMul:
		switch {
		case y.IsLiteralValue(1):
			return r.identity(s, op, x, cy), nil
		case x.IsLiteralValue(1):
			return r.identity(s, op, y, cx), nil
		case y.IsLiteralValue(0):
			return r.annihilate(s, op, x, cy)
		case x.IsLiteralValue(0):
			return r.annihilate(s, op, y, cx)
		}
	case ir.OpAnd:
		if y.IsLiteralValue(0) {
			return r.annihilate(s, op, x, cy)
		}
		if x.IsLiteralValue(0) {
			return r.annihilate(s, op, y, cx)
		}
	}
	return s, nil
}

// identity returns x for s = x op lit when lit is op's identity element,
// unless lit's kind would widen x's kind.
func (r *reducer) identity(s ir.Signal, op ir.Op, x ir.Signal, lit ir.Const) ir.Signal {
	k := r.an.Kind(x)
	if op.ResultKind(k, lit.Kind) != k {
		return s
	}
	return x
}

// annihilate folds s = x op zero to zero when dropping x is unobservable:
// x must have a finite interval and no side effects.
func (r *reducer) annihilate(s ir.Signal, op ir.Op, x ir.Signal, zero ir.Const) (ir.Signal, error) {
	if !r.isPure(x) || !r.an.Interval(x).IsFinite() {
		return s, nil
	}
	if op.ResultKind(r.an.Kind(x), zero.Kind) == ir.KindInt {
		return r.pool.Int(0)
	}
	return r.pool.Real(0)
}

func (r *reducer) foldPrim(s ir.Signal) (ir.Signal, error) {
	kids := s.Children()
	args := make([]ir.Const, len(kids))
	for i, k := range kids {
		c, ok := k.Literal()
		if !ok {
			return s, nil
		}
		args[i] = c
	}
	name, _ := s.PrimName()
	prim, _ := ir.LookupPrimitive(name)
	c, ok := prim.Apply(args)
	if !ok {
		return s, nil
	}
	return r.pool.Literal(c)
}

func (r *reducer) simplifyCast(s ir.Signal) (ir.Signal, error) {
	to, x, _ := ir.MatchCast(s)
	if c, ok := x.Literal(); ok {
		if c.Kind == to {
			return x, nil
		}
		if to == ir.KindReal {
			return r.pool.Real(c.Float())
		}
		if v, ok := c.TruncInt(); ok {
			return r.pool.Int(v)
		}
		return s, nil
	}
	if r.an.Kind(x) == to {
		return x, nil
	}
	return s, nil
}

func (r *reducer) simplifySelect(s ir.Signal) ir.Signal {
	kids := s.Children()
	sel, branches := kids[0], kids[1:]
	if c, ok := sel.Literal(); ok {
		v := c.Float()
		if len(branches) == 2 {
			if v == 0 {
				return branches[0]
			}
			return branches[1]
		}
		if i := int(v); float64(i) == v && i >= 0 && i < len(branches) {
			return branches[i]
		}
		return s
	}
	for _, b := range branches[1:] {
		if b != branches[0] {
			return s
		}
	}
	if r.isPure(sel) {
		return branches[0]
	}
	return s
}

func (r *reducer) foldBound(s ir.Signal) (ir.Signal, error) {
	x := s.Child(0)
	if !r.isPure(x) {
		return s, nil
	}
	iv := r.an.Interval(x)
	if !iv.IsFinite() {
		return s, nil
	}
	v := iv.Low
	if s.Tag() == ir.TagHighest {
		v = iv.High
	}
	if r.an.Kind(x) == ir.KindInt {
		return r.pool.Int(int64(v))
	}
	return r.pool.Real(v)
}

// renamer substitutes fresh group ids for renamed groups in references and
// ties, re-interning every containing node.
type renamer struct {
	pool   *ir.Pool
	groups map[int]int
	memo   map[ir.Signal]ir.Signal
}

func (rn *renamer) rename(s ir.Signal) (ir.Signal, error) {
	if out, ok := rn.memo[s]; ok {
		return out, nil
	}

	var (
		out ir.Signal
		err error
	)
	switch s.Tag() {
	case ir.TagProj:
		out = s
		g, _ := s.Group()
		if ng, ok := rn.groups[g]; ok {
			out, err = rn.pool.ResolvedRef(ng)
		}
	case ir.TagRec:
		g, body, _ := ir.MatchRec(s)
		body, err = rn.rename(body)
		if err != nil {
			return ir.Signal{}, err
		}
		if ng, ok := rn.groups[g]; ok {
			out, err = rn.pool.ResolvedTie(ng, body)
		} else {
			out, err = rn.pool.Rebuild(s, []ir.Signal{body})
		}
	default:
		out = s
		if s.Arity() > 0 {
			kids := s.Children()
			for i, k := range kids {
				if kids[i], err = rn.rename(k); err != nil {
					return ir.Signal{}, err
				}
			}
			out, err = rn.pool.Rebuild(s, kids)
		}
	}
	if err != nil {
		return ir.Signal{}, err
	}

	rn.memo[s] = out
	return out, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

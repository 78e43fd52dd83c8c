package ir

import "math"

func (n *node) isLiteral() bool { return n.tag == TagInt || n.tag == TagReal }

func (n *node) literal() Const {
	if n.tag == TagInt {
		return IntConst(n.payload.Int)
	}
	return RealConst(math.Float64frombits(n.payload.RealBits))
}

// Accessors on Signal panic with a *Error when s is nil or its pool has been
// closed; both are programming errors that must not be tolerated silently.

// Tag returns the node's constructor tag.
func (s Signal) Tag() Tag { return s.pool.node(s).tag }

// Arity returns the number of children.
func (s Signal) Arity() int { return len(s.pool.node(s).kids) }

// Child returns the i-th child.
func (s Signal) Child(i int) Signal {
	return Signal{pool: s.pool, id: s.pool.node(s).kids[i]}
}

// Children returns the ordered children. The slice is a copy.
func (s Signal) Children() []Signal {
	n := s.pool.node(s)
	out := make([]Signal, len(n.kids))
	for i, id := range n.kids {
		out[i] = Signal{pool: s.pool, id: id}
	}
	return out
}

// IsLiteral reports whether s is an int or real literal.
func (s Signal) IsLiteral() bool { return s.pool.node(s).isLiteral() }

// Literal returns the constant of a literal node.
func (s Signal) Literal() (Const, bool) {
	n := s.pool.node(s)
	if !n.isLiteral() {
		return Const{}, false
	}
	return n.literal(), true
}

// IntValue returns the value of an int literal.
func (s Signal) IntValue() (int64, bool) {
	n := s.pool.node(s)
	if n.tag != TagInt {
		return 0, false
	}
	return n.payload.Int, true
}

// RealValue returns the value of a real literal.
func (s Signal) RealValue() (float64, bool) {
	n := s.pool.node(s)
	if n.tag != TagReal {
		return 0, false
	}
	return math.Float64frombits(n.payload.RealBits), true
}

// IsLiteralValue reports whether s is a literal equal to v (of either kind).
func (s Signal) IsLiteralValue(v float64) bool {
	c, ok := s.Literal()
	return ok && c.Float() == v
}

// InputIndex returns the index of an input leaf.
func (s Signal) InputIndex() (int, bool) {
	n := s.pool.node(s)
	if n.tag != TagInput {
		return 0, false
	}
	return int(n.payload.Int), true
}

// Op returns the operator of a binop node.
func (s Signal) Op() (Op, bool) {
	n := s.pool.node(s)
	if n.tag != TagBinOp {
		return OpInvalid, false
	}
	return n.payload.Op, true
}

// PrimName returns the primitive name of a prim node.
func (s Signal) PrimName() (string, bool) {
	n := s.pool.node(s)
	if n.tag != TagPrim {
		return "", false
	}
	return n.payload.Text, true
}

// Label returns the label of UI and soundfile leaves, or the symbol name of foreign leaves.
func (s Signal) Label() string { return s.pool.node(s).payload.Text }

// Foreign returns the kind, symbol name and source file of an fconst/fvar leaf.
func (s Signal) Foreign() (kind Kind, name, file string, ok bool) {
	n := s.pool.node(s)
	if n.tag != TagFConst && n.tag != TagFVar {
		return KindUnknown, "", "", false
	}
	return n.payload.Kind, n.payload.Text, n.payload.File, true
}

// Group returns the recursion group of self, proj and rec nodes.
func (s Signal) Group() (int, bool) {
	n := s.pool.node(s)
	switch n.tag {
	case TagSelf, TagProj, TagRec:
		return n.payload.Group, true
	}
	return 0, false
}

// IsFeedback reports whether s reads a group's delayed output (self or proj).
func (s Signal) IsFeedback() bool {
	t := s.Tag()
	return t == TagSelf || t == TagProj
}

// MatchBinOp destructures a binop node.
func MatchBinOp(s Signal) (op Op, x, y Signal, ok bool) {
	n := s.pool.node(s)
	if n.tag != TagBinOp {
		return OpInvalid, Signal{}, Signal{}, false
	}
	return n.payload.Op, s.Child(0), s.Child(1), true
}

// MatchRec destructures a recursion tie.
func MatchRec(s Signal) (group int, body Signal, ok bool) {
	n := s.pool.node(s)
	if n.tag != TagRec {
		return 0, Signal{}, false
	}
	return n.payload.Group, s.Child(0), true
}

// MatchDelay destructures a delay node; delay1 reports a nil amount.
func MatchDelay(s Signal) (x, amount Signal, ok bool) {
	switch s.Tag() {
	case TagDelay:
		return s.Child(0), s.Child(1), true
	case TagDelay1:
		return s.Child(0), Signal{}, true
	}
	return Signal{}, Signal{}, false
}

// MatchSelect2 destructures a two-way select.
func MatchSelect2(s Signal) (sel, a, b Signal, ok bool) {
	if s.Tag() != TagSelect2 {
		return Signal{}, Signal{}, Signal{}, false
	}
	return s.Child(0), s.Child(1), s.Child(2), true
}

// MatchCast destructures an int or float cast.
func MatchCast(s Signal) (to Kind, x Signal, ok bool) {
	switch s.Tag() {
	case TagIntCast:
		return KindInt, s.Child(0), true
	case TagFloatCast:
		return KindReal, s.Child(0), true
	}
	return KindUnknown, Signal{}, false
}

// IsSideEffecting reports whether evaluating s has effects beyond its value:
// recursion state, table writes, dependency edges and UI outputs.
func (s Signal) IsSideEffecting() bool {
	switch s.Tag() {
	case TagRec, TagSelf, TagProj, TagWRTable, TagAttach, TagVBargraph, TagHBargraph, TagEnable, TagControl:
		return true
	}
	return false
}

// Walk visits every node reachable from roots through raw child edges,
// each exactly once, children before parents. Feedback ties are not edges.
func Walk(roots []Signal, visit func(Signal)) {
	seen := make(map[Signal]bool)
	var rec func(Signal)
	rec = func(s Signal) {
		if seen[s] {
			return
		}
		seen[s] = true
		for _, k := range s.Children() {
			rec(k)
		}
		visit(s)
	}
	for _, r := range roots {
		rec(r)
	}
}

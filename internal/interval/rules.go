package interval

import (
	"math"

	"github.com/roach88/sigir/internal/ir"
)

var (
	posInf = math.Inf(1)
	negInf = math.Inf(-1)
)

func unbounded(k ir.Kind) value { return value{iv: ir.Unbounded(), kind: k} }

// rule applies the propagation rule of s's tag to its children's values.
func (a *Analyzer) rule(s ir.Signal) value {
	switch s.Tag() {
	case ir.TagInt:
		v, _ := s.IntValue()
		return value{iv: ir.Point(float64(v), 0), kind: ir.KindInt}
	case ir.TagReal:
		v, _ := s.RealValue()
		return value{iv: ir.Point(v, literalLSB(v)), kind: ir.KindReal}
	case ir.TagInput:
		return unbounded(ir.KindReal)
	case ir.TagBinOp:
		return a.binop(s)
	case ir.TagPrim:
		return a.prim(s)
	case ir.TagIntCast:
		x := a.eval(s.Child(0)).iv
		return value{iv: ir.Span(math.Floor(x.Low), math.Ceil(x.High), 0), kind: ir.KindInt}
	case ir.TagFloatCast:
		x := a.eval(s.Child(0))
		return value{iv: x.iv, kind: ir.KindReal}
	case ir.TagDelay:
		x := a.eval(s.Child(0))
		if d := a.eval(s.Child(1)).iv; d.High < 0 {
			a.flag(s, "delay amount %s is negative", d)
		}
		return value{iv: x.iv.Hull(ir.Point(0, x.iv.LSB)), kind: x.kind}
	case ir.TagDelay1:
		x := a.eval(s.Child(0))
		return value{iv: x.iv.Hull(ir.Point(0, x.iv.LSB)), kind: x.kind}
	case ir.TagRDTable:
		size := a.eval(s.Child(0)).iv
		init := a.eval(s.Child(1))
		a.checkIndex(s, size, a.eval(s.Child(2)).iv, "read")
		return init
	case ir.TagWRTable:
		size := a.eval(s.Child(0)).iv
		init := a.eval(s.Child(1))
		a.checkIndex(s, size, a.eval(s.Child(2)).iv, "write")
		w := a.eval(s.Child(3))
		a.checkIndex(s, size, a.eval(s.Child(4)).iv, "read")
		return init.join(w)
	case ir.TagWaveform:
		kids := s.Children()
		v := a.eval(kids[0])
		for _, k := range kids[1:] {
			v = v.join(a.eval(k))
		}
		return v
	case ir.TagSoundfile, ir.TagSoundfileBuffer:
		for _, k := range s.Children() {
			a.eval(k)
		}
		return unbounded(ir.KindReal)
	case ir.TagSoundfileLength, ir.TagSoundfileRate:
		for _, k := range s.Children() {
			a.eval(k)
		}
		return value{iv: ir.Span(0, posInf, 0), kind: ir.KindInt}
	case ir.TagSelect2, ir.TagSelect3:
		return a.selectN(s)
	case ir.TagFConst, ir.TagFVar:
		kind, _, _, _ := s.Foreign()
		iv := ir.Unbounded()
		iv.LSB = a.foreignLSB
		if kind == ir.KindInt {
			iv.LSB = 0
		}
		return value{iv: iv, kind: kind}
	case ir.TagSelf:
		g, _ := s.Group()
		tie, ok := a.pool.GroupTie(g)
		return a.groupValue(g, tie, ok)
	case ir.TagProj:
		g, _ := s.Group()
		tie, ok := a.pool.TieOf(s)
		return a.groupValue(g, tie, ok)
	case ir.TagRec:
		g, body, _ := ir.MatchRec(s)
		a.groupValue(g, s, true)
		return a.eval(body)
	case ir.TagButton, ir.TagCheckbox:
		return value{iv: ir.Span(0, 1, 0), kind: ir.KindInt}
	case ir.TagVSlider, ir.TagHSlider, ir.TagNumEntry:
		init, lo, hi, step := a.eval(s.Child(0)).iv, a.eval(s.Child(1)).iv, a.eval(s.Child(2)).iv, a.eval(s.Child(3)).iv
		lsb := min(init.LSB, lo.LSB, hi.LSB)
		if step.High > 0 {
			lsb = min(lsb, literalLSB(step.High))
		} else {
			lsb = min(lsb, ir.DefaultLSB)
		}
		return value{iv: ir.Span(lo.Low, hi.High, lsb).Hull(ir.Point(init.Low, lsb)), kind: ir.KindReal}
	case ir.TagVBargraph, ir.TagHBargraph:
		a.eval(s.Child(0))
		a.eval(s.Child(1))
		return a.eval(s.Child(2))
	case ir.TagAttach, ir.TagControl:
		x := a.eval(s.Child(0))
		a.eval(s.Child(1))
		return x
	case ir.TagEnable:
		x := a.eval(s.Child(0))
		a.eval(s.Child(1))
		return value{iv: x.iv.Hull(ir.Point(0, x.iv.LSB)), kind: x.kind}
	case ir.TagAssertBounds:
		lo, hi, x := a.eval(s.Child(0)).iv, a.eval(s.Child(1)).iv, a.eval(s.Child(2))
		if lo.Low > hi.High {
			a.flag(s, "assertion bounds %s > %s", ir.FormatFloat(lo.Low), ir.FormatFloat(hi.High))
			return x
		}
		low, high := math.Max(x.iv.Low, lo.Low), math.Min(x.iv.High, hi.High)
		if low > high {
			low, high = lo.Low, hi.High
		}
		return value{iv: ir.Span(low, high, x.iv.LSB), kind: x.kind}
	case ir.TagLowest:
		x := a.eval(s.Child(0))
		return value{iv: ir.Point(x.iv.Low, x.iv.LSB), kind: x.kind}
	case ir.TagHighest:
		x := a.eval(s.Child(0))
		return value{iv: ir.Point(x.iv.High, x.iv.LSB), kind: x.kind}
	}
	return unbounded(ir.KindReal)
}

func (a *Analyzer) checkIndex(s ir.Signal, size, idx ir.Interval, what string) {
	if size.High < 1 {
		a.flag(s, "table size %s is below 1", size)
		return
	}
	if !idx.Intersects(ir.Span(0, size.High-1, 0)) {
		a.flag(s, "%s index %s outside table of size %s", what, idx, ir.FormatFloat(size.High))
	}
}

func (a *Analyzer) selectN(s ir.Signal) value {
	kids := s.Children()
	sel := a.eval(kids[0]).iv
	branches := make([]value, len(kids)-1)
	for i, k := range kids[1:] {
		branches[i] = a.eval(k)
	}
	if sel.IsPoint() {
		i := int(sel.Low)
		if float64(i) == sel.Low && i >= 0 && i < len(branches) {
			return branches[i]
		}
	}
	v := branches[0]
	for _, b := range branches[1:] {
		v = v.join(b)
	}
	return v
}

func (a *Analyzer) binop(s ir.Signal) value {
	op, xs, ys, _ := ir.MatchBinOp(s)
	xv, yv := a.eval(xs), a.eval(ys)
	x, y := xv.iv, yv.iv
	kind := op.ResultKind(xv.kind, yv.kind)

	switch op {
	case ir.OpAdd:
		return value{iv: ir.Span(x.Low+y.Low, x.High+y.High, min(x.LSB, y.LSB)), kind: kind}
	case ir.OpSub:
		return value{iv: ir.Span(x.Low-y.High, x.High-y.Low, min(x.LSB, y.LSB)), kind: kind}
	case ir.OpMul:
		lo, hi := corners(mulZ, x, y)
		return value{iv: ir.Span(lo, hi, clampLSB(x.LSB+y.LSB)), kind: kind}
	case ir.OpDiv:
		return value{iv: a.div(s, x, y, kind), kind: kind}
	case ir.OpRem:
		return value{iv: a.rem(s, x, y, kind), kind: kind}
	}

	switch {
	case op.IsComparison():
		return value{iv: ir.Span(0, 1, 0), kind: ir.KindInt}
	case op.IsShift():
		return value{iv: shift(op, truncate(x), truncate(y)), kind: ir.KindInt}
	default:
		return value{iv: bitwise(op, truncate(x), truncate(y)), kind: ir.KindInt}
	}
}

func (a *Analyzer) div(s ir.Signal, x, y ir.Interval, kind ir.Kind) ir.Interval {
	if y.Low == 0 && y.High == 0 {
		a.flag(s, "division by zero")
		return ir.Unbounded()
	}
	if y.ContainsZero() {
		if kind == ir.KindInt {
			a.flag(s, "integer division by %s which contains zero", y)
		}
		return ir.Unbounded()
	}
	lo, hi := corners(func(p, q float64) float64 { return p / q }, x, y)
	if kind == ir.KindInt {
		return ir.Span(math.Trunc(lo), math.Trunc(hi), 0)
	}
	return ir.Span(lo, hi, min(x.LSB, y.LSB, ir.DefaultLSB))
}

func (a *Analyzer) rem(s ir.Signal, x, y ir.Interval, kind ir.Kind) ir.Interval {
	if y.Low == 0 && y.High == 0 {
		a.flag(s, "remainder by zero")
		return ir.Unbounded()
	}
	if kind == ir.KindInt && y.ContainsZero() {
		a.flag(s, "integer remainder by %s which contains zero", y)
	}
	m := math.Max(math.Abs(y.Low), math.Abs(y.High))
	lsb := min(x.LSB, y.LSB)
	if kind == ir.KindInt {
		m--
		lsb = 0
	}
	// The result has the sign of the dividend and magnitude below |divisor|.
	lo, hi := math.Max(x.Low, -m), math.Min(x.High, m)
	if x.Low >= 0 {
		lo = 0
	}
	if x.High <= 0 {
		hi = 0
	}
	return ir.Span(math.Min(lo, 0), math.Max(hi, 0), lsb)
}

// corners returns the min and max of f over the four interval corners.
func corners(f func(float64, float64) float64, x, y ir.Interval) (float64, float64) {
	cs := [4]float64{f(x.Low, y.Low), f(x.Low, y.High), f(x.High, y.Low), f(x.High, y.High)}
	lo, hi := cs[0], cs[0]
	for _, c := range cs[1:] {
		if math.IsNaN(c) {
			return negInf, posInf
		}
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}
	if math.IsNaN(cs[0]) {
		return negInf, posInf
	}
	return lo, hi
}

// mulZ multiplies with 0 * inf = 0, the limit that bounds real products.
func mulZ(p, q float64) float64 {
	if p == 0 || q == 0 {
		return 0
	}
	return p * q
}

func truncate(iv ir.Interval) ir.Interval {
	return ir.Span(math.Trunc(iv.Low), math.Trunc(iv.High), 0)
}

func shift(op ir.Op, x, y ir.Interval) ir.Interval {
	lo, hi := math.Max(y.Low, 0), math.Min(y.High, ir.IntBits-1)
	if lo > hi {
		return ir.Span(negInf, posInf, 0)
	}
	floorDiv := func(p, q float64) float64 { return math.Floor(p / q) }
	scale := ir.Span(math.Exp2(lo), math.Exp2(hi), 0)
	switch op {
	case ir.OpLsh:
		l, h := corners(mulZ, x, scale)
		return ir.Span(l, h, 0)
	case ir.OpARsh:
		l, h := corners(floorDiv, x, scale)
		return ir.Span(l, h, 0)
	}
	if x.Low >= 0 {
		l, h := corners(floorDiv, x, scale)
		return ir.Span(l, h, 0)
	}
	// A negative operand reinterpreted as unsigned spans the upper half of
	// the word.
	if hi == 0 {
		return ir.Span(x.Low, x.High, 0)
	}
	if lo >= 1 {
		return ir.Span(0, math.Exp2(ir.IntBits-lo)-1, 0)
	}
	return ir.Span(math.Min(x.Low, 0), math.Max(x.High, math.Exp2(ir.IntBits-1)), 0)
}

// bitwise bounds and/or/xor. Non-negative operands stay within the bit width
// of the larger bound; otherwise both fit a signed range [-n, n-1].
func bitwise(op ir.Op, x, y ir.Interval) ir.Interval {
	if !x.IsFinite() || !y.IsFinite() {
		if op == ir.OpAnd && x.Low >= 0 && x.IsFinite() {
			return ir.Span(0, x.High, 0)
		}
		if op == ir.OpAnd && y.Low >= 0 && y.IsFinite() {
			return ir.Span(0, y.High, 0)
		}
		return ir.Span(negInf, posInf, 0)
	}
	if x.Low >= 0 && y.Low >= 0 {
		if op == ir.OpAnd {
			return ir.Span(0, math.Min(x.High, y.High), 0)
		}
		return ir.Span(0, pow2Above(math.Max(x.High, y.High))-1, 0)
	}
	if op == ir.OpAnd {
		switch {
		case x.Low >= 0:
			return ir.Span(0, x.High, 0)
		case y.Low >= 0:
			return ir.Span(0, y.High, 0)
		}
	}
	m := math.Max(math.Max(math.Abs(x.Low), math.Abs(x.High)), math.Max(math.Abs(y.Low), math.Abs(y.High)))
	n := pow2Above(m)
	return ir.Span(-n, n-1, 0)
}

// pow2Above returns the smallest power of two strictly greater than v (v >= 0).
func pow2Above(v float64) float64 {
	n := 1.0
	for n <= v {
		n *= 2
	}
	return n
}

func (a *Analyzer) prim(s ir.Signal) value {
	name, _ := s.PrimName()
	p, _ := ir.LookupPrimitive(name)
	kids := s.Children()
	vals := make([]value, len(kids))
	kinds := make([]ir.Kind, len(kids))
	for i, k := range kids {
		vals[i] = a.eval(k)
		kinds[i] = vals[i].kind
	}
	kind := p.ResultKind(kinds)
	x := vals[0].iv
	lsb := min(x.LSB, ir.DefaultLSB)
	if kind == ir.KindInt {
		lsb = 0
	}

	switch name {
	case "abs":
		switch {
		case x.Low >= 0:
			return value{iv: x, kind: kind}
		case x.High <= 0:
			return value{iv: ir.Span(-x.High, -x.Low, x.LSB), kind: kind}
		}
		return value{iv: ir.Span(0, math.Max(-x.Low, x.High), x.LSB), kind: kind}
	case "min", "max":
		y := vals[1].iv
		f := math.Min
		if name == "max" {
			f = math.Max
		}
		return value{iv: ir.Span(f(x.Low, y.Low), f(x.High, y.High), min(x.LSB, y.LSB)), kind: kind}
	case "floor", "ceil", "rint", "round":
		return value{iv: ir.Span(p.Fold([]float64{x.Low}), p.Fold([]float64{x.High}), 0), kind: kind}
	case "exp", "exp10", "atan":
		return value{iv: ir.Span(p.Fold([]float64{x.Low}), p.Fold([]float64{x.High}), lsb), kind: kind}
	case "sqrt":
		if x.High < 0 {
			a.flag(s, "sqrt of negative range %s", x)
			return unbounded(kind)
		}
		return value{iv: ir.Span(math.Sqrt(math.Max(x.Low, 0)), math.Sqrt(x.High), lsb), kind: kind}
	case "log", "log10":
		if x.High <= 0 {
			a.flag(s, "%s of non-positive range %s", name, x)
			return unbounded(kind)
		}
		lo := negInf
		if x.Low > 0 {
			lo = p.Fold([]float64{x.Low})
		}
		return value{iv: ir.Span(lo, p.Fold([]float64{x.High}), lsb), kind: kind}
	case "asin", "acos":
		if x.High < -1 || x.Low > 1 {
			a.flag(s, "%s of range %s outside [-1, 1]", name, x)
			return unbounded(kind)
		}
		l, h := math.Max(x.Low, -1), math.Min(x.High, 1)
		if name == "asin" {
			return value{iv: ir.Span(math.Asin(l), math.Asin(h), lsb), kind: kind}
		}
		return value{iv: ir.Span(math.Acos(h), math.Acos(l), lsb), kind: kind}
	case "sin", "cos":
		return value{iv: ir.Span(-1, 1, lsb), kind: kind}
	case "atan2":
		return value{iv: ir.Span(-math.Pi, math.Pi, lsb), kind: kind}
	case "pow":
		if x.Low > 0 {
			lo, hi := corners(math.Pow, x, vals[1].iv)
			return value{iv: ir.Span(lo, hi, lsb), kind: kind}
		}
		return unbounded(kind)
	case "fmod":
		y := vals[1].iv
		if y.Low == 0 && y.High == 0 {
			a.flag(s, "fmod by zero")
			return unbounded(kind)
		}
		m := math.Max(math.Abs(y.Low), math.Abs(y.High))
		lo, hi := math.Max(x.Low, -m), math.Min(x.High, m)
		return value{iv: ir.Span(math.Min(lo, 0), math.Max(hi, 0), lsb), kind: kind}
	case "remainder":
		y := vals[1].iv
		if y.Low == 0 && y.High == 0 {
			a.flag(s, "remainder by zero")
			return unbounded(kind)
		}
		m := math.Min(math.Max(math.Abs(y.Low), math.Abs(y.High))/2, math.Max(math.Abs(x.Low), math.Abs(x.High)))
		return value{iv: ir.Span(-m, m, lsb), kind: kind}
	}
	return unbounded(kind)
}

// widen pushes bounds that are still growing to infinity and precision that
// is still refining to MinLSB, so group iteration terminates.
func widen(prev, next ir.Interval) ir.Interval {
	if next.Low < prev.Low {
		next.Low = negInf
	}
	if next.High > prev.High {
		next.High = posInf
	}
	if next.LSB < prev.LSB {
		next.LSB = MinLSB
	}
	return next
}

func clampLSB(lsb int32) int32 { return max(lsb, MinLSB) }

// sane replaces NaN bounds (from inf - inf and similar) with the safe infinity
// and clamps precision.
func sane(iv ir.Interval) ir.Interval {
	if math.IsNaN(iv.Low) {
		iv.Low = negInf
	}
	if math.IsNaN(iv.High) {
		iv.High = posInf
	}
	iv.LSB = clampLSB(iv.LSB)
	return iv
}

// literalLSB returns the precision needed to represent v exactly, capped at
// the default precision.
func literalLSB(v float64) int32 {
	if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	for e := int32(0); e > ir.DefaultLSB; e-- {
		if f := math.Ldexp(v, int(-e)); f == math.Trunc(f) {
			return e
		}
	}
	return ir.DefaultLSB
}

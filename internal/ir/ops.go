package ir

import (
	"math"
)

// Const is a concrete numeric value of a known kind.
type Const struct {
	Kind Kind
	Int  int64
	Real float64
}

// IntConst returns an integer constant.
func IntConst(v int64) Const { return Const{Kind: KindInt, Int: v} }

// RealConst returns a real constant.
func RealConst(v float64) Const { return Const{Kind: KindReal, Real: v} }

// Float returns the value as a float64.
func (c Const) Float() float64 {
	if c.Kind == KindInt {
		return float64(c.Int)
	}
	return c.Real
}

// TruncInt converts c the way an int cast does. Integers are returned
// unchanged; ok is false for reals outside the int64 range and for NaN.
func (c Const) TruncInt() (v int64, ok bool) {
	if c.Kind == KindInt {
		return c.Int, true
	}
	t := math.Trunc(c.Real)
	if math.IsNaN(t) || t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, false
	}
	return int64(t), true
}

func boolConst(b bool) Const {
	if b {
		return IntConst(1)
	}
	return IntConst(0)
}

// ResultKind returns the kind produced by op over operands of kinds x and y.
func (op Op) ResultKind(x, y Kind) Kind {
	switch {
	case op.IsComparison(), op.IsShift(), op.IsBitwise():
		return KindInt
	case x == KindInt && y == KindInt:
		return KindInt
	default:
		return KindReal
	}
}

// Apply evaluates op on two constants. ok is false when the result is
// undefined (division or remainder by zero, out-of-range shift) or overflows
// an integer; such expressions are left for interval analysis to flag.
func (op Op) Apply(x, y Const) (Const, bool) {
	switch {
	case op.IsComparison():
		a, b := x.Float(), y.Float()
		if x.Kind == KindInt && y.Kind == KindInt {
			return boolConst(compareInt(op, x.Int, y.Int)), true
		}
		return boolConst(compareReal(op, a, b)), true
	case op.IsShift() || op.IsBitwise():
		a, aok := x.TruncInt()
		b, bok := y.TruncInt()
		if !aok || !bok {
			return Const{}, false
		}
		return applyInt(op, a, b)
	case x.Kind == KindInt && y.Kind == KindInt:
		return applyInt(op, x.Int, y.Int)
	default:
		return applyReal(op, x.Float(), y.Float())
	}
}

func compareInt(op Op, a, b int64) bool {
	switch op {
	case OpGT:
		return a > b
	case OpLT:
		return a < b
	case OpGE:
		return a >= b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	default:
		return a != b
	}
}

func compareReal(op Op, a, b float64) bool {
	switch op {
	case OpGT:
		return a > b
	case OpLT:
		return a < b
	case OpGE:
		return a >= b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	default:
		return a != b
	}
}

// IntBits is the width of integer signals. Integers are two's complement.
const IntBits = 64

// applyInt folds integer operations. Results that overflow int64 are not
// folded, so a folded constant is always the exact value.
func applyInt(op Op, a, b int64) (Const, bool) {
	switch op {
	case OpAdd:
		r := a + b
		if (a^r)&(b^r) < 0 {
			return Const{}, false
		}
		return IntConst(r), true
	case OpSub:
		r := a - b
		if (a^b)&(a^r) < 0 {
			return Const{}, false
		}
		return IntConst(r), true
	case OpMul:
		if a == 0 || b == 0 {
			return IntConst(0), true
		}
		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return Const{}, false
		}
		return IntConst(r), true
	case OpDiv:
		if b == 0 || (a == math.MinInt64 && b == -1) {
			return Const{}, false
		}
		return IntConst(a / b), true
	case OpRem:
		if b == 0 {
			return Const{}, false
		}
		return IntConst(a % b), true
	}

	if op.IsShift() && (b < 0 || b >= IntBits) {
		return Const{}, false
	}
	switch op {
	case OpLsh:
		r := a << uint(b)
		if r>>uint(b) != a {
			return Const{}, false
		}
		return IntConst(r), true
	case OpARsh:
		return IntConst(a >> uint(b)), true
	case OpLRsh:
		return IntConst(int64(uint64(a) >> uint(b))), true
	case OpAnd:
		return IntConst(a & b), true
	case OpOr:
		return IntConst(a | b), true
	case OpXor:
		return IntConst(a ^ b), true
	}
	return Const{}, false
}

func applyReal(op Op, a, b float64) (Const, bool) {
	switch op {
	case OpAdd:
		return RealConst(a + b), true
	case OpSub:
		return RealConst(a - b), true
	case OpMul:
		return RealConst(a * b), true
	case OpDiv:
		if b == 0 {
			return Const{}, false
		}
		return RealConst(a / b), true
	case OpRem:
		if b == 0 {
			return Const{}, false
		}
		return RealConst(math.Mod(a, b)), true
	}
	return Const{}, false
}

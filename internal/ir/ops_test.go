package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpResultKind(t *testing.T) {
	assert.Equal(t, KindInt, OpAdd.ResultKind(KindInt, KindInt))
	assert.Equal(t, KindReal, OpAdd.ResultKind(KindInt, KindReal))
	assert.Equal(t, KindReal, OpDiv.ResultKind(KindReal, KindReal))
	assert.Equal(t, KindInt, OpLT.ResultKind(KindReal, KindReal), "comparisons yield int")
	assert.Equal(t, KindInt, OpLsh.ResultKind(KindReal, KindInt))
	assert.Equal(t, KindInt, OpXor.ResultKind(KindReal, KindReal))
}

func TestOpApply(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		x, y Const
		want Const
		ok   bool
	}{
		{"int add", OpAdd, IntConst(2), IntConst(3), IntConst(5), true},
		{"mixed add", OpAdd, IntConst(2), RealConst(0.5), RealConst(2.5), true},
		{"int div truncates", OpDiv, IntConst(7), IntConst(2), IntConst(3), true},
		{"int div by zero", OpDiv, IntConst(7), IntConst(0), Const{}, false},
		{"real div by zero", OpDiv, RealConst(1), RealConst(0), Const{}, false},
		{"int rem", OpRem, IntConst(-7), IntConst(3), IntConst(-1), true},
		{"real rem", OpRem, RealConst(7.5), RealConst(2), RealConst(1.5), true},
		{"rem by zero", OpRem, IntConst(1), IntConst(0), Const{}, false},
		{"lsh", OpLsh, IntConst(1), IntConst(4), IntConst(16), true},
		{"lsh past 32 bits", OpLsh, IntConst(1), IntConst(40), IntConst(1 << 40), true},
		{"lsh out of range", OpLsh, IntConst(1), IntConst(IntBits), Const{}, false},
		{"lsh overflow", OpLsh, IntConst(3), IntConst(62), Const{}, false},
		{"negative shift", OpARsh, IntConst(8), IntConst(-1), Const{}, false},
		{"arsh keeps sign", OpARsh, IntConst(-8), IntConst(1), IntConst(-4), true},
		{"lrsh is 64-bit", OpLRsh, IntConst(-1), IntConst(60), IntConst(15), true},
		{"lrsh by zero", OpLRsh, IntConst(-5), IntConst(0), IntConst(-5), true},
		{"add overflow", OpAdd, IntConst(math.MaxInt64), IntConst(1), Const{}, false},
		{"sub overflow", OpSub, IntConst(math.MinInt64), IntConst(1), Const{}, false},
		{"mul overflow", OpMul, IntConst(1 << 32), IntConst(1 << 32), Const{}, false},
		{"mul min by -1", OpMul, IntConst(math.MinInt64), IntConst(-1), Const{}, false},
		{"div min by -1", OpDiv, IntConst(math.MinInt64), IntConst(-1), Const{}, false},
		{"add exact past 2^53", OpAdd, IntConst(1 << 53), IntConst(1), IntConst(1<<53 + 1), true},
		{"bitwise rejects nan", OpAnd, RealConst(math.NaN()), IntConst(1), Const{}, false},
		{"bitwise rejects huge reals", OpOr, RealConst(1e300), IntConst(1), Const{}, false},
		{"bitwise truncates reals", OpAnd, RealConst(6.9), IntConst(3), IntConst(2), true},
		{"or", OpOr, IntConst(4), IntConst(1), IntConst(5), true},
		{"xor", OpXor, IntConst(6), IntConst(3), IntConst(5), true},
		{"int gt", OpGT, IntConst(2), IntConst(1), IntConst(1), true},
		{"real le", OpLE, RealConst(2.5), IntConst(2), IntConst(0), true},
		{"eq", OpEQ, RealConst(2), IntConst(2), IntConst(1), true},
		{"ne", OpNE, IntConst(2), IntConst(2), IntConst(0), true},
		{"real sub", OpSub, RealConst(1), RealConst(0.25), RealConst(0.75), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.op.Apply(tt.x, tt.y)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstFloat(t *testing.T) {
	assert.Equal(t, 3.0, IntConst(3).Float())
	assert.Equal(t, 0.25, RealConst(0.25).Float())
}

func TestConstTruncInt(t *testing.T) {
	tests := []struct {
		name string
		c    Const
		want int64
		ok   bool
	}{
		{"int unchanged", IntConst(1<<53 + 1), 1<<53 + 1, true},
		{"real toward zero", RealConst(-2.7), -2, true},
		{"nan", RealConst(math.NaN()), 0, false},
		{"too large", RealConst(math.Ldexp(1, 63)), 0, false},
		{"most negative", RealConst(math.Ldexp(-1, 63)), math.MinInt64, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.c.TruncInt()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrimitive_Apply(t *testing.T) {
	sqrt, ok := LookupPrimitive("sqrt")
	require.True(t, ok)

	got, ok := sqrt.Apply([]Const{IntConst(9)})
	require.True(t, ok)
	assert.Equal(t, RealConst(3), got)

	_, ok = sqrt.Apply([]Const{RealConst(-1)})
	assert.False(t, ok, "domain errors are not folded")

	maxp, _ := LookupPrimitive("max")
	got, ok = maxp.Apply([]Const{IntConst(2), IntConst(7)})
	require.True(t, ok)
	assert.Equal(t, IntConst(7), got, "max of ints stays int")

	got, ok = maxp.Apply([]Const{IntConst(2), RealConst(1.5)})
	require.True(t, ok)
	assert.Equal(t, RealConst(2), got)

	const big = int64(1)<<53 + 1
	got, ok = maxp.Apply([]Const{IntConst(big), IntConst(0)})
	require.True(t, ok)
	assert.Equal(t, IntConst(big), got, "int max is exact")

	minp, _ := LookupPrimitive("min")
	got, ok = minp.Apply([]Const{IntConst(-big), IntConst(0)})
	require.True(t, ok)
	assert.Equal(t, IntConst(-big), got)

	abs, _ := LookupPrimitive("abs")
	got, ok = abs.Apply([]Const{IntConst(-big)})
	require.True(t, ok)
	assert.Equal(t, IntConst(big), got)

	_, ok = abs.Apply([]Const{IntConst(math.MinInt64)})
	assert.False(t, ok, "abs of the most negative int overflows")

	assert.Contains(t, PrimitiveNames(), "remainder")
	assert.IsIncreasing(t, PrimitiveNames())
}

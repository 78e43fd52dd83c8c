package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagString(t *testing.T) {
	assert.Equal(t, "int", TagInt.String())
	assert.Equal(t, "rec", TagRec.String())
	assert.Equal(t, "nentry", TagNumEntry.String())
	assert.Equal(t, "tag(250)", Tag(250).String())

	for tag := TagInvalid; tag < tagCount; tag++ {
		assert.NotEmpty(t, tagNames[tag], "tag %d has no name", tag)
	}
}

func TestParseOp(t *testing.T) {
	for op := OpAdd; op < opCount; op++ {
		got, ok := ParseOp(op.String())
		require.True(t, ok, op.String())
		assert.Equal(t, op, got)
		assert.True(t, got.IsValid())
	}

	_, ok := ParseOp("invalid")
	assert.False(t, ok, "the sentinel is not parseable")
	_, ok = ParseOp("pow")
	assert.False(t, ok)
	assert.False(t, OpInvalid.IsValid())
	assert.Equal(t, "op(99)", Op(99).String())
}

func TestOpClasses(t *testing.T) {
	tests := []struct {
		op                         Op
		comparison, shift, bitwise bool
	}{
		{OpAdd, false, false, false},
		{OpDiv, false, false, false},
		{OpGT, true, false, false},
		{OpNE, true, false, false},
		{OpLsh, false, true, false},
		{OpLRsh, false, true, false},
		{OpAnd, false, false, true},
		{OpXor, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			assert.Equal(t, tt.comparison, tt.op.IsComparison())
			assert.Equal(t, tt.shift, tt.op.IsShift())
			assert.Equal(t, tt.bitwise, tt.op.IsBitwise())
		})
	}
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("int")
	assert.True(t, ok)
	assert.Equal(t, KindInt, k)

	k, ok = ParseKind("float")
	assert.True(t, ok)
	assert.Equal(t, KindReal, k)
	assert.Equal(t, "real", k.String())

	k, ok = ParseKind("complex")
	assert.False(t, ok)
	assert.Equal(t, "unknown", k.String())
}

func TestInterval(t *testing.T) {
	u := Unbounded()
	assert.True(t, u.IsUnbounded())
	assert.False(t, u.IsFinite())
	assert.Equal(t, DefaultLSB, u.LSB)

	p := Point(3, -10)
	assert.True(t, p.IsPoint())
	assert.True(t, p.IsFinite())
	assert.False(t, p.ContainsZero())

	s := Span(-1, 2, -8)
	assert.True(t, s.ContainsZero())
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(2.5))
	assert.False(t, s.Intersects(p))

	h := s.Hull(p)
	assert.Equal(t, Span(-1, 3, -10), h, "hull keeps the finer precision")
	assert.True(t, h.Intersects(p))

	nan := Span(math.NaN(), 1, 0)
	assert.False(t, nan.IsFinite())
}

func TestIntervalString(t *testing.T) {
	assert.Equal(t, "[0.0, 2.0]@-24", Span(0, 2, DefaultLSB).String())
	assert.Equal(t, "[-inf, +inf]@-24", Unbounded().String())
	assert.Equal(t, "[0.5, 1e+30]@-3", Span(0.5, 1e30, -3).String())
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{-3, "-3.0"},
		{0.01, "0.01"},
		{1e-30, "1e-30"},
		{math.Inf(1), "+inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFloat(tt.in))
		})
	}
}

func TestNodeID(t *testing.T) {
	assert.False(t, NoNodeID.IsValid())
	assert.True(t, NodeID(1).IsValid())
	assert.True(t, Signal{}.IsNil())
}

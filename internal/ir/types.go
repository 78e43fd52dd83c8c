package ir

import (
	"fmt"
	"math"
	"strconv"
)

// NodeID identifies a node within its owning pool.
// Zero is the invalid sentinel.
type NodeID uint32

// NoNodeID is the invalid node id.
const NoNodeID NodeID = 0

// IsValid returns true if the id is non-zero.
func (id NodeID) IsValid() bool { return id != NoNodeID }

// Tag is the closed set of node constructors.
type Tag uint8

const (
	TagInvalid Tag = iota
	TagInt
	TagReal
	TagInput
	TagPrim
	TagBinOp
	TagIntCast
	TagFloatCast
	TagDelay
	TagDelay1
	TagRDTable
	TagWRTable
	TagWaveform
	TagSoundfile
	TagSoundfileLength
	TagSoundfileRate
	TagSoundfileBuffer
	TagSelect2
	TagSelect3
	TagFConst
	TagFVar
	TagSelf
	TagRec
	TagProj
	TagButton
	TagCheckbox
	TagVSlider
	TagHSlider
	TagNumEntry
	TagVBargraph
	TagHBargraph
	TagAttach
	TagEnable
	TagControl
	TagAssertBounds
	TagLowest
	TagHighest

	tagCount
)

var tagNames = [tagCount]string{
	TagInvalid:         "invalid",
	TagInt:             "int",
	TagReal:            "real",
	TagInput:           "input",
	TagPrim:            "prim",
	TagBinOp:           "binop",
	TagIntCast:         "intcast",
	TagFloatCast:       "floatcast",
	TagDelay:           "delay",
	TagDelay1:          "delay1",
	TagRDTable:         "rdtable",
	TagWRTable:         "wrtable",
	TagWaveform:        "waveform",
	TagSoundfile:       "soundfile",
	TagSoundfileLength: "length",
	TagSoundfileRate:   "rate",
	TagSoundfileBuffer: "buffer",
	TagSelect2:         "select2",
	TagSelect3:         "select3",
	TagFConst:          "fconst",
	TagFVar:            "fvar",
	TagSelf:            "self",
	TagRec:             "rec",
	TagProj:            "proj",
	TagButton:          "button",
	TagCheckbox:        "checkbox",
	TagVSlider:         "vslider",
	TagHSlider:         "hslider",
	TagNumEntry:        "nentry",
	TagVBargraph:       "vbargraph",
	TagHBargraph:       "hbargraph",
	TagAttach:          "attach",
	TagEnable:          "enable",
	TagControl:         "control",
	TagAssertBounds:    "assertbounds",
	TagLowest:          "lowest",
	TagHighest:         "highest",
}

func (t Tag) String() string {
	if t < tagCount {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Op enumerates the binary arithmetic, comparison and bitwise operators.
type Op uint8

const (
	OpInvalid Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpLsh
	OpARsh
	OpLRsh
	OpGT
	OpLT
	OpGE
	OpLE
	OpEQ
	OpNE
	OpAnd
	OpOr
	OpXor

	opCount
)

var opNames = [opCount]string{
	OpInvalid: "invalid",
	OpAdd:     "add",
	OpSub:     "sub",
	OpMul:     "mul",
	OpDiv:     "div",
	OpRem:     "rem",
	OpLsh:     "lsh",
	OpARsh:    "arsh",
	OpLRsh:    "lrsh",
	OpGT:      "gt",
	OpLT:      "lt",
	OpGE:      "ge",
	OpLE:      "le",
	OpEQ:      "eq",
	OpNE:      "ne",
	OpAnd:     "and",
	OpOr:      "or",
	OpXor:     "xor",
}

func (op Op) String() string {
	if op < opCount {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsValid reports whether op is a defined operator.
func (op Op) IsValid() bool { return op > OpInvalid && op < opCount }

// IsComparison reports whether op yields a boolean.
func (op Op) IsComparison() bool { return op >= OpGT && op <= OpNE }

// IsShift reports whether op is a bit shift.
func (op Op) IsShift() bool { return op == OpLsh || op == OpARsh || op == OpLRsh }

// IsBitwise reports whether op is and/or/xor.
func (op Op) IsBitwise() bool { return op == OpAnd || op == OpOr || op == OpXor }

// ParseOp returns the operator with the given name.
func ParseOp(name string) (Op, bool) {
	for i := OpAdd; i < opCount; i++ {
		if opNames[i] == name {
			return i, true
		}
	}
	return OpInvalid, false
}

// Kind is the numeric kind of a signal.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInt
	KindReal
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	default:
		return "unknown"
	}
}

// ParseKind parses "int" or "real".
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "int":
		return KindInt, true
	case "real", "float":
		return KindReal, true
	}
	return KindUnknown, false
}

// DefaultLSB is the fractional precision assumed when nothing better is known:
// 24 fractional bits, single-precision guard banding.
const DefaultLSB int32 = -24

// Interval is a node's inferred numeric range and required fractional precision.
// A more negative LSB means more fractional bits are needed.
type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
	LSB  int32   `json:"lsb"`
}

// Unbounded returns [-inf, +inf] with the default precision.
func Unbounded() Interval {
	return Interval{Low: math.Inf(-1), High: math.Inf(1), LSB: DefaultLSB}
}

// Span returns [low, high] with the given precision.
func Span(low, high float64, lsb int32) Interval {
	return Interval{Low: low, High: high, LSB: lsb}
}

// Point returns the single-value interval [v, v].
func Point(v float64, lsb int32) Interval {
	return Interval{Low: v, High: v, LSB: lsb}
}

// IsPoint reports whether the interval holds exactly one value.
func (iv Interval) IsPoint() bool { return iv.Low == iv.High }

// IsFinite reports whether both bounds are finite.
func (iv Interval) IsFinite() bool {
	return !math.IsInf(iv.Low, 0) && !math.IsInf(iv.High, 0) && !math.IsNaN(iv.Low) && !math.IsNaN(iv.High)
}

// IsUnbounded reports whether either bound is infinite.
func (iv Interval) IsUnbounded() bool {
	return math.IsInf(iv.Low, -1) || math.IsInf(iv.High, 1)
}

// Contains reports whether v lies within the interval.
func (iv Interval) Contains(v float64) bool { return iv.Low <= v && v <= iv.High }

// ContainsZero reports whether zero lies within the interval.
func (iv Interval) ContainsZero() bool { return iv.Contains(0) }

// Hull returns the smallest interval containing both operands.
// Precision is the finer of the two.
func (iv Interval) Hull(o Interval) Interval {
	return Interval{
		Low:  math.Min(iv.Low, o.Low),
		High: math.Max(iv.High, o.High),
		LSB:  min(iv.LSB, o.LSB),
	}
}

// Intersects reports whether the two intervals overlap.
func (iv Interval) Intersects(o Interval) bool {
	return iv.Low <= o.High && o.Low <= iv.High
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s]@%d", FormatFloat(iv.Low), FormatFloat(iv.High), iv.LSB)
}

// FormatFloat renders a float so that it always reads as a real literal.
func FormatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return s
		}
	}
	return s + ".0"
}

// Signal is a handle to a node owned by a Pool.
// Signals are comparable; == is the identity test.
type Signal struct {
	pool *Pool
	id   NodeID
}

// IsNil reports whether s refers to no node.
func (s Signal) IsNil() bool { return s.pool == nil || !s.id.IsValid() }

// ID returns the node id within the owning pool.
func (s Signal) ID() NodeID { return s.id }

// Pool returns the owning pool.
func (s Signal) Pool() *Pool { return s.pool }

// payload holds the leaf data that takes part in identity.
// Every field is comparable so the intern key can be a plain map key.
type payload struct {
	Int      int64
	RealBits uint64
	Text     string
	File     string
	Op       Op
	Kind     Kind
	Group    int
}

// internKey is the structural identity of a node.
type internKey struct {
	tag     Tag
	payload payload
	kids    string
}

// node is an arena entry.
type node struct {
	tag      Tag
	payload  payload
	kids     []NodeID
	interval Interval
	hasIV    bool
	tie      NodeID
	userData any
}

package ir

import (
	"math"
	"slices"
)

// Primitive describes a named math primitive usable with Pool.Prim.
type Primitive struct {
	Name  string
	Arity int

	// Poly primitives keep an integer kind when every argument is an integer
	// (abs, min, max); all others produce reals.
	Poly bool

	// Fold computes the primitive on concrete arguments.
	Fold func(args []float64) float64

	// IntFold computes a Poly primitive exactly when every argument is an
	// integer. ok is false on overflow.
	IntFold func(args []int64) (v int64, ok bool)
}

func unaryFn(f func(float64) float64) func([]float64) float64 {
	return func(a []float64) float64 { return f(a[0]) }
}

func binaryFn(f func(float64, float64) float64) func([]float64) float64 {
	return func(a []float64) float64 { return f(a[0], a[1]) }
}

func intAbs(a []int64) (int64, bool) {
	if a[0] == math.MinInt64 {
		return 0, false
	}
	if a[0] < 0 {
		return -a[0], true
	}
	return a[0], true
}

func intMax(a []int64) (int64, bool) { return max(a[0], a[1]), true }
func intMin(a []int64) (int64, bool) { return min(a[0], a[1]), true }

var primitives = map[string]Primitive{
	"abs":       {Name: "abs", Arity: 1, Poly: true, Fold: unaryFn(math.Abs), IntFold: intAbs},
	"acos":      {Name: "acos", Arity: 1, Fold: unaryFn(math.Acos)},
	"asin":      {Name: "asin", Arity: 1, Fold: unaryFn(math.Asin)},
	"atan":      {Name: "atan", Arity: 1, Fold: unaryFn(math.Atan)},
	"atan2":     {Name: "atan2", Arity: 2, Fold: binaryFn(math.Atan2)},
	"ceil":      {Name: "ceil", Arity: 1, Fold: unaryFn(math.Ceil)},
	"cos":       {Name: "cos", Arity: 1, Fold: unaryFn(math.Cos)},
	"exp":       {Name: "exp", Arity: 1, Fold: unaryFn(math.Exp)},
	"exp10":     {Name: "exp10", Arity: 1, Fold: unaryFn(func(x float64) float64 { return math.Pow(10, x) })},
	"floor":     {Name: "floor", Arity: 1, Fold: unaryFn(math.Floor)},
	"fmod":      {Name: "fmod", Arity: 2, Fold: binaryFn(math.Mod)},
	"log":       {Name: "log", Arity: 1, Fold: unaryFn(math.Log)},
	"log10":     {Name: "log10", Arity: 1, Fold: unaryFn(math.Log10)},
	"max":       {Name: "max", Arity: 2, Poly: true, Fold: binaryFn(math.Max), IntFold: intMax},
	"min":       {Name: "min", Arity: 2, Poly: true, Fold: binaryFn(math.Min), IntFold: intMin},
	"pow":       {Name: "pow", Arity: 2, Fold: binaryFn(math.Pow)},
	"remainder": {Name: "remainder", Arity: 2, Fold: binaryFn(math.Remainder)},
	"rint":      {Name: "rint", Arity: 1, Fold: unaryFn(math.RoundToEven)},
	"round":     {Name: "round", Arity: 1, Fold: unaryFn(math.Round)},
	"sin":       {Name: "sin", Arity: 1, Fold: unaryFn(math.Sin)},
	"sqrt":      {Name: "sqrt", Arity: 1, Fold: unaryFn(math.Sqrt)},
	"tan":       {Name: "tan", Arity: 1, Fold: unaryFn(math.Tan)},
}

// LookupPrimitive returns the primitive registered under name.
func LookupPrimitive(name string) (Primitive, bool) {
	p, ok := primitives[name]
	return p, ok
}

// PrimitiveNames returns the registered primitive names, sorted.
func PrimitiveNames() []string {
	names := make([]string, 0, len(primitives))
	for n := range primitives {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ResultKind returns the kind the primitive produces for the given argument kinds.
func (p Primitive) ResultKind(args []Kind) Kind {
	if !p.Poly {
		return KindReal
	}
	for _, k := range args {
		if k != KindInt {
			return KindReal
		}
	}
	return KindInt
}

// Apply folds the primitive over constants. ok is false when the result is
// not a finite number (domain error), so the expression is kept for analysis.
func (p Primitive) Apply(args []Const) (Const, bool) {
	if len(args) != p.Arity {
		return Const{}, false
	}
	vals := make([]float64, len(args))
	kinds := make([]Kind, len(args))
	for i, a := range args {
		vals[i] = a.Float()
		kinds[i] = a.Kind
	}
	if p.ResultKind(kinds) == KindInt && p.IntFold != nil {
		ints := make([]int64, len(args))
		for i, a := range args {
			ints[i] = a.Int
		}
		v, ok := p.IntFold(ints)
		if !ok {
			return Const{}, false
		}
		return IntConst(v), true
	}
	v := p.Fold(vals)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Const{}, false
	}
	if p.ResultKind(kinds) == KindInt {
		return IntConst(int64(v)), true
	}
	return RealConst(v), true
}

// Package interval infers value ranges, fractional precision and numeric kinds
// for signal graphs.
//
// Analysis is bottom-up and memoized: every node is computed once from its
// children and the result is written to the pool's write-once interval slot.
// Recursion groups are solved by iterating the group body from a zero initial
// state, widening bounds that keep growing. Operators applied to provably
// invalid ranges are flagged and collected; analysis never stops early.
package interval

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/sigir/internal/ir"
)

// MinLSB is the finest precision tracked. Precision requirements that would
// go below it are clamped.
const MinLSB int32 = -64

// DefaultWidenAfter is the number of fixpoint iterations after which growing
// bounds of a recursion group are widened to infinity.
const DefaultWidenAfter = 8

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithForeignLSB sets the minimum precision assumed for fconst/fvar leaves.
func WithForeignLSB(lsb int32) Option {
	return func(a *Analyzer) { a.foreignLSB = lsb }
}

// WithWidenAfter sets how many fixpoint iterations run before widening.
func WithWidenAfter(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.widenAfter = n
		}
	}
}

// WithLogger sets the logger used for analysis events.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// value is the analysis result of one node.
type value struct {
	iv   ir.Interval
	kind ir.Kind
}

func (v value) join(o value) value {
	k := v.kind
	if o.kind == ir.KindReal {
		k = ir.KindReal
	}
	return value{iv: v.iv.Hull(o.iv), kind: k}
}

// Analyzer computes intervals over one pool. It is not safe for concurrent use.
type Analyzer struct {
	pool       *ir.Pool
	foreignLSB int32
	widenAfter int
	logger     *slog.Logger

	kinds map[ir.Signal]ir.Kind // committed nodes

	// Group solving state. assume holds the current assumption for groups
	// being iterated; fixed holds final group values; pending memoizes
	// tentative results that depend on an assumption.
	tentative     bool
	assume        map[int]value
	fixed         map[int]value
	pending       map[ir.Signal]value
	pendingGroups map[int]value

	violations ir.Diagnostics
	flagged    map[ir.Signal]bool
}

// New returns an analyzer for pool.
func New(pool *ir.Pool, opts ...Option) *Analyzer {
	a := &Analyzer{
		pool:          pool,
		foreignLSB:    ir.DefaultLSB,
		widenAfter:    DefaultWidenAfter,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		kinds:         make(map[ir.Signal]ir.Kind),
		assume:        make(map[int]value),
		fixed:         make(map[int]value),
		pending:       make(map[ir.Signal]value),
		pendingGroups: make(map[int]value),
		flagged:       make(map[ir.Signal]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Report is the outcome of one Analyze call.
type Report struct {
	// Violations lists nodes flagged during this call, in discovery order.
	Violations ir.Diagnostics
}

// Err returns the violations as a single error, or nil.
func (r *Report) Err() error { return r.Violations.Err() }

// Analyze computes and records intervals for every node reachable from outputs.
// Nodes already analyzed are cache hits, so re-analysis is idempotent.
func (a *Analyzer) Analyze(outputs ...ir.Signal) (*Report, error) {
	for i, o := range outputs {
		if err := a.pool.Check(o); err != nil {
			return nil, fmt.Errorf("analyze output %d: %w", i, err)
		}
	}
	start := len(a.violations)
	for _, o := range outputs {
		a.eval(o)
	}
	r := &Report{Violations: append(ir.Diagnostics(nil), a.violations[start:]...)}
	a.logger.Debug("interval analysis complete",
		"outputs", len(outputs),
		"annotated", len(a.kinds),
		"violations", len(r.Violations))
	return r, nil
}

// Interval returns the interval of s, analyzing it first if needed.
func (a *Analyzer) Interval(s ir.Signal) ir.Interval { return a.eval(s).iv }

// Kind returns the numeric kind of s, analyzing it first if needed.
func (a *Analyzer) Kind(s ir.Signal) ir.Kind { return a.eval(s).kind }

// Violations returns every violation found over the analyzer's lifetime.
func (a *Analyzer) Violations() ir.Diagnostics { return a.violations }

func (a *Analyzer) eval(s ir.Signal) value {
	if k, ok := a.kinds[s]; ok {
		iv, _ := a.pool.IntervalOf(s)
		return value{iv: iv, kind: k}
	}
	if a.tentative {
		if v, ok := a.pending[s]; ok {
			return v
		}
	}
	v := a.rule(s)
	v.iv = sane(v.iv)
	if a.tentative {
		a.pending[s] = v
		return v
	}
	return a.commit(s, v)
}

// commit writes v to the pool. A node annotated by an earlier analyzer keeps
// its interval.
func (a *Analyzer) commit(s ir.Signal, v value) value {
	if iv, ok := a.pool.IntervalOf(s); ok {
		v.iv = iv
	} else if err := a.pool.AnnotateInterval(s, v.iv); err != nil {
		a.logger.Warn("interval annotation failed", "node", s.ID(), "error", err)
	}
	a.kinds[s] = v.kind
	return v
}

// flag records an interval violation on s. Tentative evaluations inside a
// group fixpoint are not reported; the final pass reports them once.
func (a *Analyzer) flag(s ir.Signal, format string, args ...any) {
	if a.tentative || a.flagged[s] {
		return
	}
	a.flagged[s] = true
	e := ir.NewIntervalViolation(s.ID(), format, args...)
	a.violations = append(a.violations, e)
	a.logger.Debug("interval violation", "node", s.ID(), "tag", s.Tag().String(), "message", e.Message)
}

// groupValue returns the value of group g's feedback reference, solving the
// group if needed. A missing tie (unclosed group) is unconstrained.
func (a *Analyzer) groupValue(g int, tie ir.Signal, ok bool) value {
	if v, found := a.assume[g]; found {
		return v
	}
	if v, found := a.fixed[g]; found {
		return v
	}
	if v, found := a.pendingGroups[g]; found {
		return v
	}
	if !ok {
		return value{iv: ir.Unbounded(), kind: ir.KindReal}
	}
	return a.solve(g, tie)
}

// solve iterates assume := hull(assume, body(assume)) from [0,0] until it is
// stable, widening after a.widenAfter rounds, then narrows the widened bound.
// Results are committed only when no enclosing group is being solved.
func (a *Analyzer) solve(g int, tie ir.Signal) value {
	_, body, _ := ir.MatchRec(tie)
	outer := a.tentative
	a.tentative = true

	zero := value{iv: ir.Point(0, 0), kind: ir.KindInt}
	step := func(assume value) value {
		a.assume[g] = assume
		a.resetProbe()
		v := a.eval(body)
		v.iv = sane(v.iv)
		return v
	}

	cur := zero
	for i := 1; ; i++ {
		next := cur.join(step(cur))
		if i > a.widenAfter {
			next.iv = widen(cur.iv, next.iv)
		}
		if next == cur {
			break
		}
		cur = next
	}

	// Narrow from the post-fixpoint; keep the result only if it is still one.
	widened := cur
	for range a.widenAfter {
		next := zero.join(step(cur))
		if next == cur {
			break
		}
		cur = next
	}
	if cur != widened && cur.join(step(cur)) != cur {
		cur = widened
	}
	delete(a.assume, g)
	a.resetProbe()
	a.tentative = outer

	if outer {
		a.pendingGroups[g] = cur
		return cur
	}
	a.fixed[g] = cur
	a.logger.Debug("recursion group solved", "group", g, "interval", cur.iv.String(), "kind", cur.kind.String())
	a.eval(tie)
	return cur
}

func (a *Analyzer) resetProbe() {
	clear(a.pending)
	clear(a.pendingGroups)
}

package compiler

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/sigir/internal/interval"
	"github.com/roach88/sigir/internal/ir"
)

// Option configures a Compile call.
type Option func(*config)

type config struct {
	foreignLSB int32
	widenAfter int
	logger     *slog.Logger
}

// WithForeignLSB sets the precision assumed for foreign constants and variables.
func WithForeignLSB(lsb int32) Option {
	return func(c *config) { c.foreignLSB = lsb }
}

// WithWidenAfter sets the fixpoint iteration count before widening.
func WithWidenAfter(n int) Option {
	return func(c *config) { c.widenAfter = n }
}

// WithLogger sets the logger passed to the interval analyzer.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Result is a compiled output list in normal form.
type Result struct {
	// Outputs are the normal-form outputs, in input order.
	Outputs []ir.Signal

	// Schedule lists recursion group components of the final graph,
	// dependencies first.
	Schedule [][]int

	// Ties maps each final group to its tie.
	Ties map[int]ir.Signal

	// Rewrites counts simplifications applied by the reducer.
	Rewrites int

	// Analyzer holds the intervals of every reachable node.
	Analyzer *interval.Analyzer
}

// Compile runs the full pipeline on outputs:
//  1. Resolve recursion (unclosed groups and zero-delay loops fail here)
//  2. Analyze intervals (all violations are reported together)
//  3. Reduce to normal form
//  4. Resolve the reduced graph for its schedule and annotate new nodes
func Compile(pool *ir.Pool, outputs []ir.Signal, opts ...Option) (*Result, error) {
	cfg := config{
		foreignLSB: ir.DefaultLSB,
		widenAfter: interval.DefaultWidenAfter,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	resolved, err := Resolve(pool, outputs)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	an := interval.New(pool,
		interval.WithForeignLSB(cfg.foreignLSB),
		interval.WithWidenAfter(cfg.widenAfter),
		interval.WithLogger(cfg.logger))
	report, err := an.Analyze(resolved.Outputs...)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if err := report.Err(); err != nil {
		slog.Debug("interval violations", "count", len(report.Violations))
		return nil, fmt.Errorf("compile: %w", err)
	}

	reduced, rewrites, err := reduceOutputs(pool, an, resolved.Outputs)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	final, err := Resolve(pool, reduced)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	report, err = an.Analyze(final.Outputs...)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if err := report.Err(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	slog.Debug("compiled",
		"outputs", len(outputs),
		"nodes", pool.NodeCount(),
		"groups", len(final.Ties),
		"rewrites", rewrites)

	return &Result{
		Outputs:  final.Outputs,
		Schedule: final.Schedule,
		Ties:     final.Ties,
		Rewrites: rewrites,
		Analyzer: an,
	}, nil
}

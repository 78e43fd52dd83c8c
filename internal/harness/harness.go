package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/sigir/internal/compiler"
	"github.com/roach88/sigir/internal/ir"
	"github.com/roach88/sigir/internal/plan"
	"github.com/roach88/sigir/internal/store"
	"github.com/roach88/sigir/internal/testutil"
)

// CodeUnknown marks a failure that carries no diagnostic code.
const CodeUnknown = "UNKNOWN"

// Harness executes one scenario against a private run log.
type Harness struct {
	store  *store.Store
	logger *slog.Logger
}

// compiled is what a successful compile leaves behind for assertions.
type compiled struct {
	pool   *ir.Pool
	result *compiler.Result
	nodes  int
	groups int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh pool and a fresh in-memory run log.
// Execution flow:
//  1. Select the graph (inline or from file)
//  2. Validate the description; stop with E1xx codes on failure
//  3. Build and compile; collect batched diagnostics on failure
//  4. Record the run
//  5. Check the expectation and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	spec, err := selectGraph(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:", store.WithIDGenerator(testutil.NewSequenceIDGenerator(scenario.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	ctx := context.Background()

	result := NewResult()
	result.Snapshot.Scenario = scenario.Name
	result.Snapshot.Graph = spec.Name

	c := h.compile(scenario, spec, result)
	if c != nil {
		defer c.pool.Close()
	}

	run := &store.Run{
		Graph:    spec.Name,
		Source:   sourceOf(scenario),
		Target:   compiler.PlanBackend,
		PlanHash: result.PlanHash,
		Rewrites: result.Snapshot.Rewrites,
		Status:   store.StatusOK,
	}
	if c != nil {
		run.Nodes = c.nodes
		run.Groups = c.groups
	}
	if result.Snapshot.Status == StatusError {
		run.Status = store.StatusFailed
		run.Error = fmt.Sprintf("%d diagnostics", len(result.Snapshot.Diagnostics))
		for i, code := range result.Snapshot.Diagnostics {
			run.Diagnostics = append(run.Diagnostics, store.Diagnostic{Code: code, Group: -1, Message: result.Messages[i]})
		}
	}
	if err := h.store.WriteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	result.RunID = run.ID

	h.checkExpect(scenario.Expect, result)

	actx := &AssertionContext{
		Store:    st,
		Ctx:      ctx,
		compiled: c,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"graph", spec.Name,
		"status", result.Snapshot.Status,
		"pass", result.Pass,
	)
	return result, nil
}

// compile fills the snapshot. It returns nil when the graph did not compile.
func (h *Harness) compile(scenario *Scenario, spec *compiler.GraphSpec, result *Result) *compiled {
	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		result.Snapshot.Status = StatusError
		for _, e := range verrs {
			result.addDiagnostic(e.Code, e.Error())
		}
		return nil
	}

	var poolOpts []ir.PoolOption
	if scenario.Options.MaxNodes > 0 {
		poolOpts = append(poolOpts, ir.WithMaxNodes(scenario.Options.MaxNodes))
	}
	if scenario.Options.MaxGroups > 0 {
		poolOpts = append(poolOpts, ir.WithMaxGroups(scenario.Options.MaxGroups))
	}
	poolOpts = append(poolOpts, ir.WithLogger(h.logger))
	pool := ir.NewPool(poolOpts...)

	outputs, err := compiler.Build(pool, spec)
	if err != nil {
		pool.Close()
		h.fail(result, err)
		return nil
	}

	opts := []compiler.Option{compiler.WithLogger(h.logger)}
	if scenario.Options.ForeignLSB != nil {
		opts = append(opts, compiler.WithForeignLSB(*scenario.Options.ForeignLSB))
	}
	if scenario.Options.WidenAfter > 0 {
		opts = append(opts, compiler.WithWidenAfter(scenario.Options.WidenAfter))
	}

	res, err := compiler.Compile(pool, outputs, opts...)
	if err != nil {
		pool.Close()
		h.fail(result, err)
		return nil
	}

	snap := &result.Snapshot
	snap.Status = StatusOK
	snap.Rewrites = res.Rewrites
	for _, comp := range res.Schedule {
		snap.Schedule = append(snap.Schedule, append([]int(nil), comp...))
	}
	for _, o := range res.Outputs {
		snap.Outputs = append(snap.Outputs, ir.Print(o, true, 0))
		snap.Intervals = append(snap.Intervals, res.Analyzer.Interval(o).String())
		snap.Kinds = append(snap.Kinds, res.Analyzer.Kind(o).String())
	}

	c := &compiled{pool: pool, result: res}
	p, err := plan.Build(res.Outputs)
	if err == nil {
		p.Schedule = res.Schedule
		c.nodes, c.groups = len(p.Nodes), len(p.Groups)
		result.PlanHash, err = plan.Hash(p)
	}
	if err != nil {
		h.logger.Warn("plan hash failed", "graph", spec.Name, "error", err)
	}

	return c
}

func (h *Harness) fail(result *Result, err error) {
	result.Snapshot.Status = StatusError
	diags := diagnosticsOf(err)
	if len(diags) == 0 {
		result.addDiagnostic(CodeUnknown, err.Error())
		return
	}
	for _, d := range diags {
		result.addDiagnostic(string(d.Code), d.Error())
	}
}

func (h *Harness) checkExpect(want Expect, result *Result) {
	got := result.Snapshot.Status
	if got != want.Status {
		result.AddError(fmt.Sprintf("expected status %s, got %s (%v)", want.Status, got, result.Messages))
		return
	}
	for _, code := range want.Codes {
		if !containsString(result.Snapshot.Diagnostics, code) {
			result.AddError(fmt.Sprintf("expected diagnostic %s, got %v", code, result.Snapshot.Diagnostics))
		}
	}
}

// diagnosticsOf unpacks a batch or single *ir.Error from err.
func diagnosticsOf(err error) []*ir.Error {
	var diags ir.Diagnostics
	if errors.As(err, &diags) {
		return diags
	}
	var e *ir.Error
	if errors.As(err, &e) {
		return []*ir.Error{e}
	}
	return nil
}

// selectGraph returns the scenario's graph.
func selectGraph(s *Scenario) (*compiler.GraphSpec, error) {
	if s.Inline != nil {
		g := *s.Inline
		if g.Name == "" {
			g.Name = s.Name
		}
		return &g, nil
	}

	graphs, err := compiler.LoadGraphFile(s.Graph)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if s.Select == "" {
		if len(graphs) != 1 {
			return nil, fmt.Errorf("scenario %s: %s holds %d graphs; set select", s.Name, s.Graph, len(graphs))
		}
		return &graphs[0], nil
	}
	for i := range graphs {
		if graphs[i].Name == s.Select {
			return &graphs[i], nil
		}
	}
	return nil, fmt.Errorf("scenario %s: graph %q not found in %s", s.Name, s.Select, s.Graph)
}

func sourceOf(s *Scenario) string {
	if s.Inline != nil {
		return "inline"
	}
	return s.Graph
}

func containsString(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/sigir/internal/compiler"
	"github.com/roach88/sigir/internal/ir"
	"github.com/roach88/sigir/internal/plan"
	"github.com/roach88/sigir/internal/store"
)

// PipelineOptions are the compile knobs shared by compile and print.
type PipelineOptions struct {
	Graph      string // compile only this graph
	ForeignLSB int32
	WidenAfter int
	MaxNodes   int
	MaxGroups  int

	foreignLSBSet bool
}

func (o *PipelineOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Graph, "graph", "g", "", "compile only the named graph")
	cmd.Flags().Int32Var(&o.ForeignLSB, "foreign-lsb", ir.DefaultLSB, "precision assumed for foreign constants and variables")
	cmd.Flags().IntVar(&o.WidenAfter, "widen-after", 0, "fixpoint iterations before widening (0 = default)")
	cmd.Flags().IntVar(&o.MaxNodes, "max-nodes", 0, "node budget per graph (0 = unlimited)")
	cmd.Flags().IntVar(&o.MaxGroups, "max-groups", 0, "recursion group budget per graph (0 = unlimited)")
}

// bind records which flags were set explicitly.
func (o *PipelineOptions) bind(cmd *cobra.Command) {
	o.foreignLSBSet = cmd.Flags().Changed("foreign-lsb")
}

func (o *PipelineOptions) poolOptions() []ir.PoolOption {
	opts := []ir.PoolOption{ir.WithLogger(slog.Default())}
	if o.MaxNodes > 0 {
		opts = append(opts, ir.WithMaxNodes(o.MaxNodes))
	}
	if o.MaxGroups > 0 {
		opts = append(opts, ir.WithMaxGroups(o.MaxGroups))
	}
	return opts
}

func (o *PipelineOptions) compileOptions() []compiler.Option {
	opts := []compiler.Option{compiler.WithLogger(slog.Default())}
	if o.foreignLSBSet {
		opts = append(opts, compiler.WithForeignLSB(o.ForeignLSB))
	}
	if o.WidenAfter > 0 {
		opts = append(opts, compiler.WithWidenAfter(o.WidenAfter))
	}
	return opts
}

// selectGraphs applies --graph to the loaded graphs.
func (o *PipelineOptions) selectGraphs(loaded *LoadResult) ([]compiler.GraphSpec, error) {
	if o.Graph == "" {
		return loaded.Graphs, nil
	}
	spec, ok := loaded.Lookup(o.Graph)
	if !ok {
		return nil, &LoadError{Code: ErrCodeGraphNotFound, Message: fmt.Sprintf("graph %q not found", o.Graph)}
	}
	return []compiler.GraphSpec{*spec}, nil
}

// DiagnosticOutput is one reported defect of a graph.
type DiagnosticOutput struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Group   *int   `json:"group,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// compiledGraph is one graph run through the pipeline. On success pool and
// result are set and the caller must Close the pool.
type compiledGraph struct {
	spec        *compiler.GraphSpec
	pool        *ir.Pool
	result      *compiler.Result
	plan        *plan.Plan
	planHash    string
	output      string // backend output
	diagnostics []DiagnosticOutput
}

func (c *compiledGraph) ok() bool { return c.result != nil }

func (c *compiledGraph) close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// compileGraph validates, builds and compiles spec in a fresh pool.
func compileGraph(spec *compiler.GraphSpec, opts *PipelineOptions) *compiledGraph {
	c := &compiledGraph{spec: spec}

	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		for _, e := range verrs {
			c.diagnostics = append(c.diagnostics, DiagnosticOutput{
				Code:    e.Code,
				Message: fmt.Sprintf("%s: %s", e.Field, e.Message),
				Line:    e.Line,
			})
		}
		slog.Debug("graph invalid", "graph", spec.Name, "errors", len(verrs))
		return c
	}

	pool := ir.NewPool(opts.poolOptions()...)
	outputs, err := compiler.Build(pool, spec)
	if err != nil {
		pool.Close()
		c.fail(err)
		return c
	}

	res, err := compiler.Compile(pool, outputs, opts.compileOptions()...)
	if err != nil {
		pool.Close()
		c.fail(err)
		return c
	}

	p, err := plan.Build(res.Outputs)
	if err == nil {
		p.Schedule = res.Schedule
		c.planHash, err = plan.Hash(p)
	}
	if err != nil {
		pool.Close()
		c.fail(err)
		return c
	}

	c.pool, c.result, c.plan = pool, res, p
	slog.Debug("graph compiled",
		"graph", spec.Name,
		"nodes", len(p.Nodes),
		"groups", len(p.Groups),
		"rewrites", res.Rewrites,
	)
	return c
}

func (c *compiledGraph) fail(err error) {
	var diags ir.Diagnostics
	var single *ir.Error
	switch {
	case errors.As(err, &diags):
	case errors.As(err, &single):
		diags = ir.Diagnostics{single}
	default:
		c.diagnostics = append(c.diagnostics, DiagnosticOutput{Code: ErrCodeGeneric, Message: err.Error()})
		return
	}
	for _, d := range diags {
		out := DiagnosticOutput{Code: string(d.Code), Message: d.Message}
		if d.HasGroup {
			g := d.Group
			out.Group = &g
		}
		c.diagnostics = append(c.diagnostics, out)
	}
	slog.Debug("graph failed", "graph", c.spec.Name, "diagnostics", len(c.diagnostics))
}

// run converts c to a run log entry.
func (c *compiledGraph) run(source, target string) *store.Run {
	run := &store.Run{
		Graph:  c.spec.Name,
		Source: source,
		Target: target,
		Status: store.StatusOK,
	}
	if c.ok() {
		run.PlanHash = c.planHash
		run.Nodes = len(c.plan.Nodes)
		run.Groups = len(c.plan.Groups)
		run.Rewrites = c.result.Rewrites
		return run
	}
	run.Status = store.StatusFailed
	run.Error = fmt.Sprintf("%d diagnostics", len(c.diagnostics))
	for _, d := range c.diagnostics {
		group := -1
		if d.Group != nil {
			group = *d.Group
		}
		run.Diagnostics = append(run.Diagnostics, store.Diagnostic{Code: d.Code, Group: group, Message: d.Message})
	}
	return run
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/sigir/internal/compiler"
	"github.com/roach88/sigir/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	PipelineOptions
	Output string // directory for backend output, one file per graph
	Target string // backend name
	DB     string // run log database
	Jobs   int    // graphs compiled concurrently
}

// GraphResult is the compile summary of one graph.
type GraphResult struct {
	Graph       string             `json:"graph"`
	Status      string             `json:"status"` // "ok" | "failed"
	Outputs     []string           `json:"outputs,omitempty"`
	Intervals   []string           `json:"intervals,omitempty"`
	Kinds       []string           `json:"kinds,omitempty"`
	Schedule    [][]int            `json:"schedule,omitempty"`
	Nodes       int                `json:"nodes"`
	Groups      int                `json:"groups"`
	Rewrites    int                `json:"rewrites"`
	PlanHash    string             `json:"plan_hash,omitempty"`
	File        string             `json:"file,omitempty"`
	RunID       string             `json:"run_id,omitempty"`
	Diagnostics []DiagnosticOutput `json:"diagnostics,omitempty"`
}

// CompilationResult holds the results of all graphs.
type CompilationResult struct {
	Target   string        `json:"target"`
	Graphs   []GraphResult `json:"graphs"`
	Compiled int           `json:"compiled"`
	Failed   int           `json:"failed"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <graphs-dir|file>",
		Short: "Compile graph descriptions to normal form",
		Long: `Compile CUE or YAML graph descriptions.

Each graph is resolved, interval-checked and reduced to normal form, then
handed to the selected backend. Every defect of a graph is reported.

Exit codes:
  0 - All graphs compiled
  1 - One or more graphs failed to compile
  2 - Command error (invalid paths, unreadable descriptions, etc.)

Examples:
  sigc compile ./graphs
  sigc compile ./graphs/filters.yaml --graph lowpass
  sigc compile ./graphs --output ./build --db runs.db
  sigc compile ./graphs --jobs 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.bind(cmd)
			return runCompile(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write backend output to this directory")
	cmd.Flags().StringVarP(&opts.Target, "target", "t", compiler.PlanBackend, "backend name")
	cmd.Flags().StringVar(&opts.DB, "db", "", "record runs in this SQLite database")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", runtime.GOMAXPROCS(0), "graphs compiled concurrently")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Jobs < 1 {
		return commandError(formatter, ErrCodeGeneric, "--jobs must be at least 1")
	}

	backend, ok := compiler.LookupBackend(opts.Target)
	if !ok {
		return commandError(formatter, ErrCodeUnknownBackend,
			fmt.Sprintf("unknown backend %q: registered %v", opts.Target, compiler.Backends()))
	}

	loadResult, loadErrors := LoadGraphs(path, LoadModeCollectAll)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, loadResult, loadErrors)
	}
	formatter.VerboseLog("Found %d graph(s) in %d file(s)", len(loadResult.Graphs), len(loadResult.Files))

	graphs, err := opts.selectGraphs(loadResult)
	if err != nil {
		var loadErr *LoadError
		errors.As(err, &loadErr)
		return commandError(formatter, loadErr.Code, loadErr.Message)
	}

	var runLog *store.Store
	if opts.DB != "" {
		runLog, err = store.Open(opts.DB)
		if err != nil {
			return commandError(formatter, ErrCodeStore, fmt.Sprintf("opening run log: %v", err))
		}
		defer runLog.Close()
	}
	if opts.Output != "" {
		if err := os.MkdirAll(opts.Output, 0o755); err != nil {
			return commandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("creating output directory: %v", err))
		}
	}

	compiled := compileAll(graphs, backend, opts)
	defer func() {
		for _, c := range compiled {
			c.close()
		}
	}()

	result := CompilationResult{Target: opts.Target, Graphs: make([]GraphResult, 0, len(graphs))}
	for _, c := range compiled {
		gr, err := finishOne(cmd.Context(), c, opts, path, runLog)
		if err != nil {
			return commandError(formatter, err.Code, err.Message)
		}
		if gr.Status == string(store.StatusOK) {
			result.Compiled++
		} else {
			result.Failed++
		}
		result.Graphs = append(result.Graphs, gr)
	}

	return outputCompileResult(formatter, result)
}

// compileAll runs every graph through the pipeline and the backend, at most
// opts.Jobs at a time. Each graph gets its own pool, so graphs never share
// state; results keep the order of graphs.
func compileAll(graphs []compiler.GraphSpec, backend compiler.Backend, opts *CompileOptions) []*compiledGraph {
	compiled := make([]*compiledGraph, len(graphs))

	var group errgroup.Group
	group.SetLimit(opts.Jobs)
	for i := range graphs {
		group.Go(func() error {
			slog.Debug("compiling graph", "graph", graphs[i].Name)
			c := compileGraph(&graphs[i], &opts.PipelineOptions)
			if c.ok() {
				src, _, err := backend.Compile(c.result.Outputs, opts.Target, nil)
				if err != nil {
					c.result = nil
					c.fail(err)
				}
				c.output = src
			}
			compiled[i] = c
			return nil
		})
	}
	_ = group.Wait()
	return compiled
}

// finishOne summarizes a compiled graph, writes its output file and records
// the run.
func finishOne(ctx context.Context, c *compiledGraph, opts *CompileOptions, source string, runLog *store.Store) (GraphResult, *LoadError) {
	gr := GraphResult{Graph: c.spec.Name, Status: string(store.StatusOK)}
	if c.ok() {
		res := c.result
		for _, o := range res.Outputs {
			gr.Outputs = append(gr.Outputs, printSignal(o))
			gr.Intervals = append(gr.Intervals, res.Analyzer.Interval(o).String())
			gr.Kinds = append(gr.Kinds, res.Analyzer.Kind(o).String())
		}
		gr.Schedule = res.Schedule
		gr.Nodes, gr.Groups = len(c.plan.Nodes), len(c.plan.Groups)
		gr.Rewrites = res.Rewrites
		gr.PlanHash = c.planHash

		if opts.Output != "" {
			gr.File = filepath.Join(opts.Output, c.spec.Name+"."+opts.Target)
			if err := os.WriteFile(gr.File, []byte(c.output), 0o644); err != nil {
				return gr, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing %s: %v", gr.File, err)}
			}
		}
	} else {
		gr = GraphResult{Graph: c.spec.Name, Status: string(store.StatusFailed), Diagnostics: c.diagnostics}
	}

	if runLog != nil {
		run := c.run(source, opts.Target)
		if ctx == nil {
			ctx = context.Background()
		}
		if err := runLog.WriteRun(ctx, run); err != nil {
			return gr, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("recording run: %v", err)}
		}
		gr.RunID = run.ID
	}
	return gr, nil
}

// outputCompileResult prints the per-graph summary. Any failed graph makes
// the command fail with exit code 1.
func outputCompileResult(formatter *OutputFormatter, result CompilationResult) error {
	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    firstDiagnosticCode(result),
				Message: fmt.Sprintf("%d graph(s) failed to compile", result.Failed),
			}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, g := range result.Graphs {
			if g.Status == string(store.StatusOK) {
				fmt.Fprintf(w, "✓ %s: %d node(s), %d group(s), %d rewrite(s)\n", g.Graph, g.Nodes, g.Groups, g.Rewrites)
				formatter.VerboseLog("  plan %s", g.PlanHash)
				if g.File != "" {
					fmt.Fprintf(w, "  wrote %s\n", g.File)
				}
				continue
			}
			fmt.Fprintf(w, "✗ %s\n", g.Graph)
			for _, d := range g.Diagnostics {
				fmt.Fprintf(w, "  %s: %s\n", d.Code, d.Message)
			}
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Compiled %d of %d graph(s) with backend %s\n", result.Compiled, len(result.Graphs), result.Target)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d graph(s) failed to compile", result.Failed))
	}
	return nil
}

func firstDiagnosticCode(result CompilationResult) string {
	for _, g := range result.Graphs {
		if len(g.Diagnostics) > 0 {
			return g.Diagnostics[0].Code
		}
	}
	return ErrCodeGeneric
}

// outputLoadErrors reports description errors (exit code 2).
func outputLoadErrors(formatter *OutputFormatter, loaded *LoadResult, errs []error) error {
	if loaded == nil && len(errs) == 1 {
		code, message := parseLoadError(errs[0])
		return commandError(formatter, code, message)
	}

	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		code, message := parseLoadError(err)
		cliErrors[i] = CLIError{Code: code, Message: message}
	}

	if formatter.Format == "json" {
		if err := formatter.Encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Loading graphs failed")
		fmt.Fprintln(formatter.Writer)
		for i, err := range errs {
			var loadErr *LoadError
			if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
				fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", cliErrors[i].Code, cliErrors[i].Message)
		}
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("loading failed with %d error(s)", len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/roach88/sigir/internal/ir"
)

// PrintOptions holds flags for the print command.
type PrintOptions struct {
	*RootOptions
	PipelineOptions
	Shared bool // print shared subterms once
	Depth  int  // truncate deeper subtrees
	Color  bool // force color
}

// PrintedGraph is the serialized normal form of one graph.
type PrintedGraph struct {
	Graph       string             `json:"graph"`
	Outputs     []string           `json:"outputs,omitempty"`
	Diagnostics []DiagnosticOutput `json:"diagnostics,omitempty"`
}

// NewPrintCommand creates the print command.
func NewPrintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PrintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "print <graphs-dir|file>",
		Short: "Print the normal form of each graph",
		Long: `Compile graphs and print their normal-form outputs as s-expressions.

Shared subterms are printed once as #k=expr and referenced as #k.
Use --shared=false to print every occurrence in full.
Output is colored when stdout is a terminal, or always with --color.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.bind(cmd)
			return runPrint(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.Shared, "shared", true, "print shared subterms once as #k")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "truncate subtrees deeper than this (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.Color, "color", false, "colorize text output even when stdout is not a terminal")

	return cmd
}

func runPrint(opts *PrintOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := LoadGraphs(path, LoadModeCollectAll)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, loadResult, loadErrors)
	}
	graphs, err := opts.selectGraphs(loadResult)
	if err != nil {
		code, message := parseLoadError(err)
		return commandError(formatter, code, message)
	}

	printer := ir.Printer{Shared: opts.Shared, MaxDepth: opts.Depth}
	if formatter.Format != "json" && (opts.Color || isTerminal(cmd.OutOrStdout())) {
		printer.Colorize = colorizer()
	}

	printed := make([]PrintedGraph, 0, len(graphs))
	failed := 0
	for i := range graphs {
		c := compileGraph(&graphs[i], &opts.PipelineOptions)
		pg := PrintedGraph{Graph: graphs[i].Name}
		if c.ok() {
			pg.Outputs = strings.Split(printer.PrintList(c.result.Outputs), "\n")
		} else {
			pg.Diagnostics = c.diagnostics
			failed++
		}
		c.close()
		printed = append(printed, pg)
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: printed}
		if failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%d graph(s) failed to compile", failed)}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, pg := range printed {
			fmt.Fprintf(w, "# %s\n", pg.Graph)
			for _, line := range pg.Outputs {
				fmt.Fprintln(w, line)
			}
			for _, d := range pg.Diagnostics {
				fmt.Fprintf(w, "✗ %s: %s\n", d.Code, d.Message)
			}
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d graph(s) failed to compile", failed))
	}
	return nil
}

// printSignal is the default shared-mode rendering used in summaries.
func printSignal(s ir.Signal) string {
	return ir.Print(s, true, 0)
}

// isTerminal reports whether w is a terminal. NO_COLOR disables detection.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// colorizer returns a token decorator. Colors are forced on so --color
// works when stdout is not a terminal.
func colorizer() func(ir.Token, string) string {
	palette := map[ir.Token]*color.Color{
		ir.TokenHead:    color.New(color.FgCyan),
		ir.TokenLiteral: color.New(color.FgYellow),
		ir.TokenString:  color.New(color.FgGreen),
		ir.TokenRef:     color.New(color.FgMagenta, color.Bold),
	}
	for _, c := range palette {
		c.EnableColor()
	}
	return func(tok ir.Token, text string) string {
		if c, ok := palette[tok]; ok {
			return c.Sprint(text)
		}
		return text
	}
}

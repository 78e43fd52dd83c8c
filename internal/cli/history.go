package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sigir/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DB    string
	Graph string
	Limit int
	Hash  string // list runs with this plan hash
	Run   string // show one run with its diagnostics
}

// RunOutput is the JSON form of a recorded run.
type RunOutput struct {
	ID          string             `json:"id"`
	Seq         int64              `json:"seq"`
	Graph       string             `json:"graph"`
	Source      string             `json:"source,omitempty"`
	Target      string             `json:"target"`
	Status      string             `json:"status"`
	PlanHash    string             `json:"plan_hash,omitempty"`
	Nodes       int                `json:"nodes"`
	Groups      int                `json:"groups"`
	Rewrites    int                `json:"rewrites"`
	Error       string             `json:"error,omitempty"`
	Diagnostics []DiagnosticOutput `json:"diagnostics,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded compile runs",
		Long: `List compile runs recorded with 'sigc compile --db'.

Runs are listed oldest first. --limit keeps the most recent runs.

Examples:
  sigc history --db runs.db
  sigc history --db runs.db --graph lowpass --limit 5
  sigc history --db runs.db --run 0190f1c2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "run log database (required)")
	cmd.Flags().StringVarP(&opts.Graph, "graph", "g", "", "only runs of this graph")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "keep the most recent N runs (0 = all)")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "only runs with this plan hash")
	cmd.Flags().StringVar(&opts.Run, "run", "", "show a single run with its diagnostics")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Limit < 0 {
		return commandError(formatter, ErrCodeGeneric, "--limit must be non-negative")
	}
	if _, err := os.Stat(opts.DB); os.IsNotExist(err) {
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.DB))
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return commandError(formatter, ErrCodeStore, fmt.Sprintf("opening run log: %v", err))
	}
	defer st.Close()

	ctx := cmd.Context()

	if opts.Run != "" {
		run, err := st.GetRun(ctx, opts.Run)
		if errors.Is(err, sql.ErrNoRows) {
			return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("run %q not found", opts.Run))
		}
		if err != nil {
			return commandError(formatter, ErrCodeStore, fmt.Sprintf("reading run: %v", err))
		}
		return outputRunDetail(formatter, runOutput(run))
	}

	var runs []store.Run
	if opts.Hash != "" {
		runs, err = st.RunsByHash(ctx, opts.Hash)
	} else {
		runs, err = st.ListRuns(ctx, store.ListOptions{Graph: opts.Graph, Limit: opts.Limit})
	}
	if err != nil {
		return commandError(formatter, ErrCodeStore, fmt.Sprintf("listing runs: %v", err))
	}

	out := make([]RunOutput, len(runs))
	for i, r := range runs {
		out[i] = runOutput(r)
	}
	return outputRunList(formatter, out)
}

func runOutput(r store.Run) RunOutput {
	out := RunOutput{
		ID:       r.ID,
		Seq:      r.Seq,
		Graph:    r.Graph,
		Source:   r.Source,
		Target:   r.Target,
		Status:   string(r.Status),
		PlanHash: r.PlanHash,
		Nodes:    r.Nodes,
		Groups:   r.Groups,
		Rewrites: r.Rewrites,
		Error:    r.Error,
	}
	for _, d := range r.Diagnostics {
		do := DiagnosticOutput{Code: d.Code, Message: d.Message}
		if d.Group >= 0 {
			g := d.Group
			do.Group = &g
		}
		out.Diagnostics = append(out.Diagnostics, do)
	}
	return out
}

func outputRunList(formatter *OutputFormatter, runs []RunOutput) error {
	if formatter.Format == "json" {
		return formatter.Encode(CLIResponse{Status: "ok", Data: runs})
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tGRAPH\tSTATUS\tNODES\tGROUPS\tREWRITES\tPLAN")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Seq, r.Graph, r.Status, r.Nodes, r.Groups, r.Rewrites, shortHash(r.PlanHash))
	}
	return tw.Flush()
}

func outputRunDetail(formatter *OutputFormatter, run RunOutput) error {
	if formatter.Format == "json" {
		return formatter.Encode(CLIResponse{Status: "ok", Data: run, RunID: run.ID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (#%d)\n", run.ID, run.Seq)
	fmt.Fprintf(w, "  graph:    %s\n", run.Graph)
	fmt.Fprintf(w, "  source:   %s\n", run.Source)
	fmt.Fprintf(w, "  target:   %s\n", run.Target)
	fmt.Fprintf(w, "  status:   %s\n", run.Status)
	if run.PlanHash != "" {
		fmt.Fprintf(w, "  plan:     %s\n", run.PlanHash)
		fmt.Fprintf(w, "  nodes:    %d, groups: %d, rewrites: %d\n", run.Nodes, run.Groups, run.Rewrites)
	}
	for _, d := range run.Diagnostics {
		fmt.Fprintf(w, "  %s: %s\n", d.Code, d.Message)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "-"
	}
	return h
}

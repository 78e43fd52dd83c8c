package harness

// Snapshot is the deterministic record of one scenario run, compared
// against golden files.
type Snapshot struct {
	Scenario string `json:"scenario"`
	Graph    string `json:"graph"`
	Status   string `json:"status"`

	// Outputs are shared-mode prints of the normal-form outputs.
	Outputs   []string `json:"outputs"`
	Intervals []string `json:"intervals"`
	Kinds     []string `json:"kinds"`

	Schedule [][]int `json:"schedule"`
	Rewrites int     `json:"rewrites"`

	// Diagnostics are the reported codes in report order.
	Diagnostics []string `json:"diagnostics"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the expectation and every assertion hold.
	Pass bool `json:"pass"`

	Snapshot Snapshot `json:"snapshot"`

	// Messages holds the diagnostic and validation messages, one per entry.
	Messages []string `json:"messages,omitempty"`

	// PlanHash is the content hash of the compiled plan; empty on error.
	PlanHash string `json:"plan_hash,omitempty"`

	// RunID identifies the run in the run log.
	RunID string `json:"run_id"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass: true,
		Snapshot: Snapshot{
			Outputs:     []string{},
			Intervals:   []string{},
			Kinds:       []string{},
			Schedule:    [][]int{},
			Diagnostics: []string{},
		},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addDiagnostic appends a reported code and its message.
func (r *Result) addDiagnostic(code, message string) {
	r.Snapshot.Diagnostics = append(r.Snapshot.Diagnostics, code)
	r.Messages = append(r.Messages, message)
}

// canonical returns the snapshot as canonical-JSON-ready values.
func (s *Snapshot) canonical() map[string]any {
	schedule := make([]any, len(s.Schedule))
	for i, comp := range s.Schedule {
		groups := make([]any, len(comp))
		for j, g := range comp {
			groups[j] = g
		}
		schedule[i] = groups
	}
	return map[string]any{
		"scenario":    s.Scenario,
		"graph":       s.Graph,
		"status":      s.Status,
		"outputs":     stringList(s.Outputs),
		"intervals":   stringList(s.Intervals),
		"kinds":       stringList(s.Kinds),
		"schedule":    schedule,
		"rewrites":    s.Rewrites,
		"diagnostics": stringList(s.Diagnostics),
	}
}

func stringList(xs []string) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

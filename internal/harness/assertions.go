package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/sigir/internal/ir"
	"github.com/roach88/sigir/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Outputs  []string // Printed outputs for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Outputs) > 0 {
		fmt.Fprintf(&buf, "\nOutputs:\n")
		for i, out := range e.Outputs {
			fmt.Fprintf(&buf, "  [%d] %s\n", i, out)
		}
	}

	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context

	compiled *compiled
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// Assertions on the normal form fail when the graph did not compile.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutputEquals, AssertIntervalWithin, AssertOutputKind:
			err = assertOutput(result, assertion, actx)
		case AssertSchedule:
			err = assertSchedule(result, assertion)
		case AssertRewrites:
			if result.Snapshot.Rewrites != assertion.Count {
				err = &AssertionError{
					Type:     AssertRewrites,
					Expected: fmt.Sprintf("%d rewrites", assertion.Count),
					Actual:   fmt.Sprintf("%d rewrites", result.Snapshot.Rewrites),
					Outputs:  result.Snapshot.Outputs,
				}
			}
		case AssertDiagnostic:
			if !containsString(result.Snapshot.Diagnostics, assertion.Code) {
				err = &AssertionError{
					Type:     AssertDiagnostic,
					Expected: fmt.Sprintf("diagnostic %s", assertion.Code),
					Actual:   fmt.Sprintf("%v", result.Snapshot.Diagnostics),
				}
			}
		case AssertPredicate:
			err = assertPredicate(result, assertion)
		case AssertRecorded:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: recorded requires a run log", i)
			} else {
				err = assertRecorded(actx.Ctx, actx.Store, result)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// assertOutput checks one output of a compiled graph.
func assertOutput(result *Result, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.compiled == nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("output %d of a compiled graph", a.Output),
			Actual:   fmt.Sprintf("status %s: %v", result.Snapshot.Status, result.Snapshot.Diagnostics),
		}
	}
	res := actx.compiled.result
	if a.Output >= len(res.Outputs) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("output %d", a.Output),
			Actual:   fmt.Sprintf("%d outputs", len(res.Outputs)),
			Outputs:  result.Snapshot.Outputs,
		}
	}
	out := res.Outputs[a.Output]

	switch a.Type {
	case AssertOutputEquals:
		if got := ir.Print(out, true, 0); got != a.Expr {
			return &AssertionError{
				Type:     a.Type,
				Expected: a.Expr,
				Actual:   got,
			}
		}
	case AssertIntervalWithin:
		iv := res.Analyzer.Interval(out)
		if iv.Low < *a.Low || iv.High > *a.High {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("output %d within [%s, %s]", a.Output, ir.FormatFloat(*a.Low), ir.FormatFloat(*a.High)),
				Actual:   iv.String(),
				Outputs:  result.Snapshot.Outputs,
			}
		}
	case AssertOutputKind:
		if got := res.Analyzer.Kind(out).String(); got != a.Kind {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("output %d of kind %s", a.Output, a.Kind),
				Actual:   got,
				Outputs:  result.Snapshot.Outputs,
			}
		}
	}
	return nil
}

func assertSchedule(result *Result, a Assertion) error {
	if diff := cmp.Diff(a.Schedule, result.Snapshot.Schedule, cmpopts.EquateEmpty()); diff != "" {
		return &AssertionError{
			Type:     AssertSchedule,
			Expected: fmt.Sprintf("%v", a.Schedule),
			Actual:   fmt.Sprintf("%v (-want +got):\n%s", result.Snapshot.Schedule, diff),
			Outputs:  result.Snapshot.Outputs,
		}
	}
	return nil
}

// assertRecorded checks the run log against the observed result.
func assertRecorded(ctx context.Context, st *store.Store, result *Result) error {
	run, err := st.GetRun(ctx, result.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return &AssertionError{
			Type:     AssertRecorded,
			Expected: fmt.Sprintf("run %s in the run log", result.RunID),
			Actual:   "run not found",
		}
	}
	if err != nil {
		return fmt.Errorf("recorded: %w", err)
	}

	want := store.StatusOK
	if result.Snapshot.Status == StatusError {
		want = store.StatusFailed
	}
	switch {
	case run.Status != want:
		return &AssertionError{
			Type:     AssertRecorded,
			Expected: fmt.Sprintf("status %s", want),
			Actual:   fmt.Sprintf("status %s", run.Status),
		}
	case run.PlanHash != result.PlanHash:
		return &AssertionError{
			Type:     AssertRecorded,
			Expected: fmt.Sprintf("plan hash %s", result.PlanHash),
			Actual:   fmt.Sprintf("plan hash %s", run.PlanHash),
		}
	case len(run.Diagnostics) != len(result.Snapshot.Diagnostics):
		return &AssertionError{
			Type:     AssertRecorded,
			Expected: fmt.Sprintf("%d diagnostics", len(result.Snapshot.Diagnostics)),
			Actual:   fmt.Sprintf("%d diagnostics", len(run.Diagnostics)),
		}
	}
	return nil
}

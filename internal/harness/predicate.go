package harness

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// predicateEnv exposes a snapshot to predicate expressions:
//
//	status      string
//	outputs     []string   shared-mode prints
//	intervals   []string
//	kinds       []string
//	schedule    [][]int
//	rewrites    int
//	diagnostics []string   codes in report order
func predicateEnv(s *Snapshot) map[string]any {
	return map[string]any{
		"status":      s.Status,
		"outputs":     s.Outputs,
		"intervals":   s.Intervals,
		"kinds":       s.Kinds,
		"schedule":    s.Schedule,
		"rewrites":    s.Rewrites,
		"diagnostics": s.Diagnostics,
	}
}

// compilePredicate type-checks a predicate against the snapshot environment.
func compilePredicate(check string) (*vm.Program, error) {
	return expr.Compile(check, expr.Env(predicateEnv(&Snapshot{})), expr.AsBool())
}

func assertPredicate(result *Result, a Assertion) error {
	program, err := compilePredicate(a.Check)
	if err != nil {
		return fmt.Errorf("predicate %q: %w", a.Check, err)
	}
	out, err := expr.Run(program, predicateEnv(&result.Snapshot))
	if err != nil {
		return fmt.Errorf("predicate %q: %w", a.Check, err)
	}
	if ok, _ := out.(bool); !ok {
		return &AssertionError{
			Type:     AssertPredicate,
			Expected: a.Check,
			Actual:   "false",
			Outputs:  result.Snapshot.Outputs,
		}
	}
	return nil
}

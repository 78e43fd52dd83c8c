package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sigir/internal/compiler"
)

// Scenario defines one compile scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is a path to a graph description file. Relative paths are
	// resolved against the scenario file's directory by LoadScenario.
	Graph string `yaml:"graph,omitempty"`

	// Select picks a graph by name when the file holds several.
	Select string `yaml:"select,omitempty"`

	// Inline is an embedded graph, used instead of Graph.
	Inline *compiler.GraphSpec `yaml:"inline,omitempty"`

	Options Options `yaml:"options,omitempty"`

	Expect Expect `yaml:"expect"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Options are the compile knobs a scenario may set.
type Options struct {
	ForeignLSB *int32 `yaml:"foreign_lsb,omitempty"`
	WidenAfter int    `yaml:"widen_after,omitempty"`
	MaxNodes   int    `yaml:"max_nodes,omitempty"`
	MaxGroups  int    `yaml:"max_groups,omitempty"`
}

// Expect is the expected overall outcome.
type Expect struct {
	// Status is "ok" or "error".
	Status string `yaml:"status"`

	// Codes lists diagnostic codes that must all be reported.
	// Only meaningful with status error.
	Codes []string `yaml:"codes,omitempty"`
}

// Assertion checks one property of the compile result.
type Assertion struct {
	Type string `yaml:"type"`

	// Output indexes the graph's output list.
	Output int `yaml:"output,omitempty"`

	// Expr is the expected shared-mode print (output_equals).
	Expr string `yaml:"expr,omitempty"`

	// Low and High bound the output interval (interval_within).
	Low  *float64 `yaml:"low,omitempty"`
	High *float64 `yaml:"high,omitempty"`

	// Kind is "int" or "real" (output_kind).
	Kind string `yaml:"kind,omitempty"`

	// Schedule is the expected recursion schedule (schedule).
	Schedule [][]int `yaml:"schedule,omitempty"`

	// Count is the expected rewrite count (rewrites).
	Count int `yaml:"count,omitempty"`

	// Code is a diagnostic code (diagnostic).
	Code string `yaml:"code,omitempty"`

	// Check is a boolean expression over the snapshot (predicate).
	Check string `yaml:"check,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputEquals   = "output_equals"
	AssertIntervalWithin = "interval_within"
	AssertOutputKind     = "output_kind"
	AssertSchedule       = "schedule"
	AssertRewrites       = "rewrites"
	AssertDiagnostic     = "diagnostic"
	AssertRecorded       = "recorded"
	AssertPredicate      = "predicate"
)

// Status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Graph path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
		scenario.Graph = filepath.Join(filepath.Dir(path), scenario.Graph)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Graph == "" && s.Inline == nil:
		return fmt.Errorf("graph or inline is required")
	case s.Graph != "" && s.Inline != nil:
		return fmt.Errorf("graph and inline are mutually exclusive")
	}

	if s.Graph != "" {
		if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
			return fmt.Errorf("graph file not found: %s", s.Graph)
		}
	}

	switch s.Expect.Status {
	case StatusOK:
		if len(s.Expect.Codes) > 0 {
			return fmt.Errorf("expect.codes requires status %q", StatusError)
		}
	case StatusError:
	case "":
		return fmt.Errorf("expect.status is required")
	default:
		return fmt.Errorf("expect.status must be %q or %q, got %q", StatusOK, StatusError, s.Expect.Status)
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Output < 0 {
		return fmt.Errorf("assertions[%d]: output must be non-negative", index)
	}

	switch a.Type {
	case AssertOutputEquals:
		if a.Expr == "" {
			return fmt.Errorf("assertions[%d]: expr is required for output_equals", index)
		}
	case AssertIntervalWithin:
		if a.Low == nil || a.High == nil {
			return fmt.Errorf("assertions[%d]: low and high are required for interval_within", index)
		}
		if *a.Low > *a.High {
			return fmt.Errorf("assertions[%d]: low %v exceeds high %v", index, *a.Low, *a.High)
		}
	case AssertOutputKind:
		if a.Kind != "int" && a.Kind != "real" {
			return fmt.Errorf("assertions[%d]: kind must be int or real for output_kind", index)
		}
	case AssertSchedule:
		if a.Schedule == nil {
			a.Schedule = [][]int{}
		}
	case AssertRewrites:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for rewrites", index)
		}
	case AssertDiagnostic:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for diagnostic", index)
		}
	case AssertRecorded:
	case AssertPredicate:
		if a.Check == "" {
			return fmt.Errorf("assertions[%d]: check is required for predicate", index)
		}
		if _, err := compilePredicate(a.Check); err != nil {
			return fmt.Errorf("assertions[%d]: invalid check: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

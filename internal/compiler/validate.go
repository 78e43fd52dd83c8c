package compiler

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/roach88/sigir/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedSpecType = "E100" // unsupported value for validation

	// GraphSpec errors (E101-E103)
	ErrGraphNameEmpty = "E101" // graph name is required
	ErrGraphNoOutputs = "E102" // at least one output required
	ErrGraphNoNodes   = "E103" // at least one node required

	// NodeSpec errors (E104-E112)
	ErrUnknownOp        = "E104" // unknown op or primitive
	ErrDuplicateNodeID  = "E105" // duplicate node id
	ErrArgCount         = "E106" // wrong number of args
	ErrUndefinedArg     = "E107" // arg not defined before use
	ErrUndefinedOutput  = "E108" // output names no node
	ErrMissingAttribute = "E109" // missing label, name or kind
	ErrInvalidLiteral   = "E110" // literal or input index out of range
	ErrGroupMisuse      = "E111" // self/close without open, or reopened group
	ErrInvalidNodeID    = "E112" // empty or malformed node id
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a graph spec against schema rules before it is built.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *GraphSpec:
		return validateGraphSpec(spec)
	case GraphSpec:
		return validateGraphSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported spec type: %T", v),
			Code:    ErrUnsupportedSpecType,
		}}
	}
}

// labelOps need a non-empty label.
var labelOps = map[string]bool{
	"button": true, "checkbox": true, "vslider": true, "hslider": true,
	"nentry": true, "vbargraph": true, "hbargraph": true, "soundfile": true,
}

// nodeIDPattern matches identifiers such as "osc", "gain_1" or "voice.env".
var nodeIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

func validateGraphSpec(spec *GraphSpec) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "graph name is required",
			Code:    ErrGraphNameEmpty,
		})
	}

	// E102: at least one output
	if len(spec.Outputs) == 0 {
		errs = append(errs, ValidationError{
			Field:   "outputs",
			Message: "at least one output is required",
			Code:    ErrGraphNoOutputs,
		})
	}

	// E103: at least one node
	if len(spec.Nodes) == 0 {
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: "at least one node is required",
			Code:    ErrGraphNoNodes,
		})
	}

	defined := make(map[string]bool, len(spec.Nodes))
	opened := make(map[int]bool)
	closed := make(map[int]bool)

	for i, n := range spec.Nodes {
		errs = append(errs, validateNode(i, n, defined, opened, closed)...)
		if n.ID != "" {
			defined[n.ID] = true
		}
	}

	// E108: outputs must name defined nodes
	for i, id := range spec.Outputs {
		if !defined[id] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("outputs[%d]", i),
				Message: fmt.Sprintf("undefined node %q", id),
				Code:    ErrUndefinedOutput,
			})
		}
	}

	return errs
}

// validateNode checks one node against the nodes defined before it.
func validateNode(i int, n NodeSpec, defined map[string]bool, opened, closed map[int]bool) []ValidationError {
	var errs []ValidationError
	field := func(name string) string {
		return fmt.Sprintf("nodes[%d].%s", i, name)
	}
	add := func(name, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field(name),
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    n.Line,
		})
	}

	// E112 / E105: id
	switch {
	case strings.TrimSpace(n.ID) == "":
		add("id", ErrInvalidNodeID, "node id is required")
	case !nodeIDPattern.MatchString(n.ID):
		add("id", ErrInvalidNodeID, "invalid node id %q", n.ID)
	case defined[n.ID]:
		add("id", ErrDuplicateNodeID, "duplicate node id %q", n.ID)
	}

	// E104 / E106: op and arity
	want, ok := ArityOf(n.Op, n.Name)
	switch {
	case !ok && n.Op == "prim":
		add("name", ErrUnknownOp, "unknown primitive %q", n.Name)
	case !ok:
		add("op", ErrUnknownOp, "unknown op %q", n.Op)
	case want < 0 && len(n.Args) == 0:
		add("args", ErrArgCount, "%s takes at least one arg", n.Op)
	case want >= 0 && len(n.Args) != want:
		add("args", ErrArgCount, "%s takes %d args, got %d", n.Op, want, len(n.Args))
	}

	// E107: args must be defined earlier
	for j, arg := range n.Args {
		if !defined[arg] {
			add(fmt.Sprintf("args[%d]", j), ErrUndefinedArg, "node %q is not defined before use", arg)
		}
	}

	// E109: required attributes
	if labelOps[n.Op] && strings.TrimSpace(n.Label) == "" {
		add("label", ErrMissingAttribute, "%s requires a label", n.Op)
	}
	switch n.Op {
	case "prim":
		if n.Name == "" {
			add("name", ErrMissingAttribute, "prim requires a primitive name")
		}
	case "fconst", "fvar":
		if n.Name == "" {
			add("name", ErrMissingAttribute, "%s requires a symbol name", n.Op)
		}
		if _, ok := ir.ParseKind(n.Kind); !ok {
			add("kind", ErrMissingAttribute, "%s requires kind int or real, got %q", n.Op, n.Kind)
		}
	}

	// E110: literals
	switch n.Op {
	case "int":
		if n.Value != math.Trunc(n.Value) || math.Abs(n.Value) > math.MaxInt64 {
			add("value", ErrInvalidLiteral, "int value %v is not an integer", n.Value)
		}
	case "real":
		if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
			add("value", ErrInvalidLiteral, "real value must be finite")
		}
	case "input":
		if n.Value < 0 || n.Value != math.Trunc(n.Value) {
			add("value", ErrInvalidLiteral, "input index %v must be a non-negative integer", n.Value)
		}
	}

	// E111: recursion groups
	switch n.Op {
	case "open":
		if n.Group < 0 {
			add("group", ErrGroupMisuse, "group id %d is negative", n.Group)
		} else if opened[n.Group] {
			add("group", ErrGroupMisuse, "group %d opened twice", n.Group)
		}
		opened[n.Group] = true
	case "self":
		if !opened[n.Group] {
			add("group", ErrGroupMisuse, "self reference to group %d before it is opened", n.Group)
		}
	case "close":
		switch {
		case !opened[n.Group]:
			add("group", ErrGroupMisuse, "close of group %d before it is opened", n.Group)
		case closed[n.Group]:
			add("group", ErrGroupMisuse, "group %d closed twice", n.Group)
		}
		closed[n.Group] = true
	}

	return errs
}

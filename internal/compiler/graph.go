package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// LoadGraphFile reads graphs from a .cue, .yaml or .yml file.
func LoadGraphFile(path string) ([]GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	switch filepath.Ext(path) {
	case ".cue":
		return ParseGraphsCUE(path, data)
	case ".yaml", ".yml":
		return ParseGraphsYAML(data)
	}
	return nil, fmt.Errorf("unsupported graph file %q: want .cue, .yaml or .yml", path)
}

// ParseGraphsCUE compiles one CUE source file and extracts its graphs.
func ParseGraphsCUE(filename string, data []byte) ([]GraphSpec, error) {
	v := cuecontext.New().CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileGraphs(v)
}

// CompileGraphs extracts every graph under the top-level "graph" field,
// sorted by name.
func CompileGraphs(v cue.Value) ([]GraphSpec, error) {
	graphsVal := v.LookupPath(cue.ParsePath("graph"))
	if !graphsVal.Exists() {
		return nil, &CompileError{
			Field:   "graph",
			Message: "no graphs defined",
			Pos:     v.Pos(),
		}
	}

	iter, err := graphsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var graphs []GraphSpec
	for iter.Next() {
		spec, err := CompileGraph(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("graph %q: %w", iter.Label(), err)
		}
		graphs = append(graphs, *spec)
	}
	slices.SortFunc(graphs, func(a, b GraphSpec) int { return strings.Compare(a.Name, b.Name) })
	return graphs, nil
}

// CompileGraph parses a CUE value into a GraphSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the graph struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`graph: mix: { outputs: [...], nodes: [...] }`)
//	spec, err := CompileGraph(v.LookupPath(cue.ParsePath("graph.mix")))
func CompileGraph(v cue.Value) (*GraphSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &GraphSpec{}

	// Graph name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	outputsVal := v.LookupPath(cue.ParsePath("outputs"))
	if !outputsVal.Exists() {
		return nil, &CompileError{
			Field:   "outputs",
			Message: "outputs are required",
			Pos:     v.Pos(),
		}
	}
	outputs, err := parseStringList(outputsVal)
	if err != nil {
		return nil, err
	}
	spec.Outputs = outputs

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return nil, &CompileError{
			Field:   "nodes",
			Message: "nodes are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := nodesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		node, err := parseNode(iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Nodes = append(spec.Nodes, node)
	}

	return spec, nil
}

// parseNode parses one builder call. id and op are required; the other
// fields are optional and checked by Validate.
func parseNode(v cue.Value) (NodeSpec, error) {
	node := NodeSpec{Line: v.Pos().Line()}

	for _, field := range []struct {
		name     string
		dst      *string
		required bool
	}{
		{"id", &node.ID, true},
		{"op", &node.Op, true},
		{"label", &node.Label, false},
		{"name", &node.Name, false},
		{"file", &node.File, false},
		{"kind", &node.Kind, false},
	} {
		fv := v.LookupPath(cue.ParsePath(field.name))
		if !fv.Exists() {
			if field.required {
				return node, &CompileError{
					Field:   "node." + field.name,
					Message: fmt.Sprintf("%s is required", field.name),
					Pos:     v.Pos(),
				}
			}
			continue
		}
		s, err := fv.String()
		if err != nil {
			return node, formatCUEError(err)
		}
		*field.dst = s
	}

	argsVal := v.LookupPath(cue.ParsePath("args"))
	if argsVal.Exists() {
		args, err := parseStringList(argsVal)
		if err != nil {
			return node, err
		}
		node.Args = args
	}

	valueVal := v.LookupPath(cue.ParsePath("value"))
	if valueVal.Exists() {
		value, err := numberOf(valueVal)
		if err != nil {
			return node, err
		}
		node.Value = value
	}

	groupVal := v.LookupPath(cue.ParsePath("group"))
	if groupVal.Exists() {
		g, err := groupVal.Int64()
		if err != nil {
			return node, formatCUEError(err)
		}
		node.Group = int(g)
	}

	return node, nil
}

// numberOf reads an int or float CUE value.
func numberOf(v cue.Value) (float64, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return float64(i), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return f, nil
	default:
		return 0, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("value must be a number, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func parseStringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

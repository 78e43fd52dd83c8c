package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sigir/internal/compiler"
)

// LoadMode controls how errors are handled during graph loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the graphs found under a path.
type LoadResult struct {
	Graphs []compiler.GraphSpec // sorted by name
	Files  []string             // graph description files read
}

// Lookup returns the graph with the given name.
func (r *LoadResult) Lookup(name string) (*compiler.GraphSpec, bool) {
	for i := range r.Graphs {
		if r.Graphs[i].Name == name {
			return &r.Graphs[i], true
		}
	}
	return nil, false
}

// LoadError represents an error that occurred during graph loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadGraphs loads graph descriptions from a file or a directory.
//
// A directory contributes its top-level .cue files as one CUE instance and
// each top-level .yaml or .yml file separately. Graph names must be unique
// across all files.
//
// A nil result means nothing could be loaded. A non-nil result may come
// with per-graph errors; in LoadModeFailFast at most one is returned.
func LoadGraphs(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing graph path: %v", err)}}
	}

	if !info.IsDir() {
		return loadGraphFile(path)
	}

	cueFiles, yamlFiles, err := FindGraphFiles(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 && len(yamlFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no graph files found in %s", path)}}
	}

	result := &LoadResult{}
	var errs []error
	failFast := func() bool { return mode == LoadModeFailFast && len(errs) > 0 }

	if len(cueFiles) > 0 {
		graphs, cueErrs, fatal := loadCUEDir(path, mode)
		if fatal != nil {
			return nil, []error{fatal}
		}
		result.Files = append(result.Files, cueFiles...)
		result.Graphs = append(result.Graphs, graphs...)
		errs = append(errs, cueErrs...)
		if failFast() {
			return result, errs
		}
	}

	for _, file := range yamlFiles {
		result.Files = append(result.Files, file)
		data, err := os.ReadFile(file)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", file, err)})
		} else if graphs, err := compiler.ParseGraphsYAML(data); err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s: %v", file, err)})
		} else {
			result.Graphs = append(result.Graphs, graphs...)
		}
		if failFast() {
			return result, errs
		}
	}

	errs = append(errs, finishGraphs(result)...)
	if mode == LoadModeFailFast && len(errs) > 1 {
		errs = errs[:1]
	}
	return result, errs
}

// loadGraphFile loads a single description file.
func loadGraphFile(path string) (*LoadResult, []error) {
	switch filepath.Ext(path) {
	case ".cue", ".yaml", ".yml":
	default:
		return nil, []error{&LoadError{Code: ErrCodeUnsupportedFile, Message: fmt.Sprintf("unsupported graph file %s: want .cue, .yaml or .yml", path)}}
	}

	graphs, err := compiler.LoadGraphFile(path)
	if err != nil {
		return nil, []error{convertCompileError(err, path)}
	}
	result := &LoadResult{Graphs: graphs, Files: []string{path}}
	return result, finishGraphs(result)
}

// loadCUEDir builds the directory's CUE instance and compiles every graph
// under its "graph" field. fatal is set when the instance cannot be built.
func loadCUEDir(dir string, mode LoadMode) (graphs []compiler.GraphSpec, errs []error, fatal error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	graphsVal := value.LookupPath(cue.ParsePath("graph"))
	if !graphsVal.Exists() {
		return nil, nil, nil
	}
	iter, err := graphsVal.Fields()
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating graphs: %v", err)}}, nil
	}
	for iter.Next() {
		spec, err := compiler.CompileGraph(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "graph."+iter.Label()))
			if mode == LoadModeFailFast {
				return graphs, errs, nil
			}
			continue
		}
		graphs = append(graphs, *spec)
	}
	return graphs, errs, nil
}

// finishGraphs sorts the loaded graphs and reports duplicate names.
func finishGraphs(result *LoadResult) []error {
	var errs []error
	slices.SortStableFunc(result.Graphs, func(a, b compiler.GraphSpec) int {
		return strings.Compare(a.Name, b.Name)
	})
	for i := 1; i < len(result.Graphs); i++ {
		if result.Graphs[i].Name == result.Graphs[i-1].Name {
			errs = append(errs, &LoadError{
				Code:    ErrCodeDuplicateGraph,
				Message: fmt.Sprintf("graph %q defined more than once", result.Graphs[i].Name),
			})
		}
	}
	if len(result.Graphs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no graphs found"})
	}
	return errs
}

// FindGraphFiles lists the top-level .cue and .yaml/.yml files of dir, sorted.
func FindGraphFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch filepath.Ext(e.Name()) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, path)
		}
	}
	return cueFiles, yamlFiles, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
// Description errors use the compiler's E1xx validation codes.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeScanError       = "E002" // Directory scan error
	ErrCodeNoFiles         = "E003" // No graph files found
	ErrCodeLoadFailed      = "E004" // CUE or YAML load failed
	ErrCodeNotFound        = "E005" // Path not found
	ErrCodeBuildFailed     = "E006" // CUE build failed
	ErrCodeWriteFailed     = "E007" // File write error
	ErrCodeDuplicateGraph  = "E008" // Graph name defined twice
	ErrCodeUnsupportedFile = "E009" // Not a .cue/.yaml/.yml file
	ErrCodeStore           = "E010" // Run log open/read/write error
	ErrCodeGraphNotFound   = "E011" // --graph names no loaded graph
	ErrCodeUnknownBackend  = "E012" // --target names no registered backend
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "name":
		return compiler.ErrGraphNameEmpty
	case field == "outputs" || strings.HasPrefix(field, "outputs["):
		return compiler.ErrGraphNoOutputs
	case field == "nodes":
		return compiler.ErrGraphNoNodes
	case field == "node.op":
		return compiler.ErrUnknownOp
	case field == "node.id":
		return compiler.ErrInvalidNodeID
	case field == "value":
		return compiler.ErrInvalidLiteral
	case field == "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}

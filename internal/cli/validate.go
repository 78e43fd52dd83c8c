package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sigir/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Graphs int                        `json:"graphs"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graphs-dir|file>",
		Short: "Validate graph descriptions without compiling",
		Long: `Validate CUE or YAML graph descriptions without building them.

Checks names, arities, argument order, literals and recursion group
usage. Every error is reported with its E1xx code. Faster than compile
for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadGraphs(path, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseLoadError(loadErrors[0])
		return commandError(formatter, code, message)
	}
	formatter.VerboseLog("Found %d graph file(s) in %s", len(loadResult.Files), path)

	validationErrors := validateAll(loadResult.Graphs, formatter)

	for _, err := range loadErrors {
		code, message := parseLoadError(err)
		ve := compiler.ValidationError{Field: "load", Message: message, Code: code}
		var le *LoadError
		if errors.As(err, &le) && le.Pos.IsValid() {
			ve.Line = le.Pos.Line()
		}
		validationErrors = append(validationErrors, ve)
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, len(loadResult.Graphs), validationErrors)
	}
	return outputValidateSuccess(formatter, len(loadResult.Graphs))
}

// validateAll validates every graph. Fields are prefixed with the graph name.
func validateAll(graphs []compiler.GraphSpec, formatter *OutputFormatter) []compiler.ValidationError {
	var all []compiler.ValidationError
	for i := range graphs {
		formatter.VerboseLog("Validating graph: %s", graphs[i].Name)
		for _, e := range compiler.Validate(&graphs[i]) {
			e.Field = graphs[i].Name + "." + e.Field
			all = append(all, e)
		}
	}
	return all
}

func outputValidateSuccess(formatter *OutputFormatter, graphs int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Graphs: graphs})
	}

	fmt.Fprintf(formatter.Writer, "✓ All %d graph(s) valid\n", graphs)
	return nil
}

// outputValidationErrors outputs multiple validation errors (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, graphs int, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		if err := formatter.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Graphs: graphs, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidatePath validates all graphs under path.
// Load failures that leave nothing to validate are returned as the error.
func ValidatePath(path string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadGraphs(path, LoadModeFailFast)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	var errs []compiler.ValidationError
	for _, err := range loadErrors {
		code, message := parseLoadError(err)
		errs = append(errs, compiler.ValidationError{Field: "load", Message: message, Code: code})
	}
	silent := &OutputFormatter{Format: "text", Writer: nil}
	return append(errs, validateAll(loadResult.Graphs, silent)...), nil
}

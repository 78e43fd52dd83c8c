package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ScenarioDirError is returned when a scenarios directory is missing or
// not a directory.
type ScenarioDirError struct {
	Dir    string
	Reason string
}

// Error implements the error interface.
func (e *ScenarioDirError) Error() string {
	return fmt.Sprintf("scenarios directory %q: %s", e.Dir, e.Reason)
}

// DiscoverScenarios returns the .yaml and .yml files under dir, sorted.
// A non-empty filter is a filepath.Match glob applied to the file name
// without its extension.
func DiscoverScenarios(dir, filter string) ([]string, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &ScenarioDirError{Dir: dir, Reason: "not found"}
	}
	if err != nil {
		return nil, &ScenarioDirError{Dir: dir, Reason: err.Error()}
	}
	if !info.IsDir() {
		return nil, &ScenarioDirError{Dir: dir, Reason: "not a directory"}
	}
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// GoldenPath returns the golden file of a scenario file:
// <dir>/golden/<base-without-ext>.golden.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// UpdateGolden writes the result's snapshot as the scenario's golden file.
func UpdateGolden(scenarioFile string, result *Result) error {
	data, err := MarshalSnapshot(&result.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	path := GoldenPath(scenarioFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// CompareGolden reports whether the result matches the scenario's golden
// file. ok is false with a nil error when no golden file exists.
func CompareGolden(scenarioFile string, result *Result) (match, ok bool, err error) {
	want, err := os.ReadFile(GoldenPath(scenarioFile))
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := MarshalSnapshot(&result.Snapshot)
	if err != nil {
		return false, true, fmt.Errorf("marshal snapshot: %w", err)
	}
	return bytes.Equal(want, got), true, nil
}

// DiffGolden renders the difference between the scenario's golden file and
// the result's snapshot. Removed text is shown as [-text-] and added text as
// {+text+}; long unchanged runs are elided.
func DiffGolden(scenarioFile string, result *Result) (string, error) {
	want, err := os.ReadFile(GoldenPath(scenarioFile))
	if err != nil {
		return "", fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := MarshalSnapshot(&result.Snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(strings.TrimSuffix(string(want), "\n"), strings.TrimSuffix(string(got), "\n"), false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return formatDiff(diffs), nil
}

// diffContext is the number of unchanged bytes kept around each edit.
const diffContext = 24

func formatDiff(diffs []diffmatchpatch.Diff) string {
	var buf strings.Builder
	for i, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			fmt.Fprintf(&buf, "[-%s-]", d.Text)
		case diffmatchpatch.DiffInsert:
			fmt.Fprintf(&buf, "{+%s+}", d.Text)
		case diffmatchpatch.DiffEqual:
			buf.WriteString(elide(d.Text, i > 0, i < len(diffs)-1))
		}
	}
	return buf.String()
}

// elide shortens an unchanged run, keeping diffContext bytes on each side
// that touches an edit.
func elide(text string, afterEdit, beforeEdit bool) string {
	head, tail := 0, 0
	if afterEdit {
		head = diffContext
	}
	if beforeEdit {
		tail = diffContext
	}
	if len(text) <= head+tail+3 {
		return text
	}
	return text[:head] + "..." + text[len(text)-tail:]
}

package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/sigir/internal/ir"
	"github.com/roach88/sigir/internal/plan"
)

// Backend generates target code from normal-form outputs.
// Diagnostics are informational lines; err is reserved for failures.
type Backend interface {
	Compile(outputs []ir.Signal, target string, opts map[string]string) (source string, diagnostics []string, err error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(outputs []ir.Signal, target string, opts map[string]string) (string, []string, error)

// Compile calls f.
func (f BackendFunc) Compile(outputs []ir.Signal, target string, opts map[string]string) (string, []string, error) {
	return f(outputs, target, opts)
}

// PlanBackend is the name of the built-in backend.
const PlanBackend = "plan"

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{
		PlanBackend: BackendFunc(compilePlan),
	}
)

// RegisterBackend registers b under name.
func RegisterBackend(name string, b Backend) error {
	if name == "" {
		return fmt.Errorf("backend name must be non-empty")
	}
	if b == nil {
		return fmt.Errorf("cannot register nil backend %q", name)
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}
	backends[name] = b
	return nil
}

// LookupBackend returns the backend registered under name.
func LookupBackend(name string) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// compilePlan emits the canonical JSON plan. The schedule is recomputed
// from the outputs, which must already be resolved.
//
// Options:
//   - indent: "true" pretty-prints the JSON (the hash is always taken over
//     the canonical form)
func compilePlan(outputs []ir.Signal, target string, opts map[string]string) (string, []string, error) {
	p, err := plan.Build(outputs)
	if err != nil {
		return "", nil, fmt.Errorf("plan backend: %w", err)
	}
	if len(outputs) > 0 {
		res, err := Resolve(outputs[0].Pool(), outputs)
		if err != nil {
			return "", nil, fmt.Errorf("plan backend: %w", err)
		}
		p.Schedule = res.Schedule
	}

	data, err := plan.Encode(p)
	if err != nil {
		return "", nil, fmt.Errorf("plan backend: %w", err)
	}
	hash, err := plan.Hash(p)
	if err != nil {
		return "", nil, fmt.Errorf("plan backend: %w", err)
	}

	if opts["indent"] == "true" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return "", nil, fmt.Errorf("plan backend: %w", err)
		}
		data = buf.Bytes()
	}

	diags := []string{
		fmt.Sprintf("target: %s", target),
		fmt.Sprintf("nodes: %d", len(p.Nodes)),
		fmt.Sprintf("groups: %d", len(p.Groups)),
		fmt.Sprintf("hash: %s", hash),
	}
	return string(data), diags, nil
}

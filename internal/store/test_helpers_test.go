package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/sigir/internal/testutil"
)

// createTestStore opens a fresh store in a temp dir with sequential run IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequenceIDGenerator("run")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func okRun(graph, hash string) *Run {
	return &Run{
		Graph:    graph,
		Source:   graph + ".cue",
		Target:   "plan",
		PlanHash: hash,
		Nodes:    7,
		Groups:   1,
		Rewrites: 2,
		Status:   StatusOK,
	}
}

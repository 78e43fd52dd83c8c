package compiler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigir/internal/ir"
)

// TestBuildDependencyGraph_MutualRecursion tests edges derived from tie bodies.
func TestBuildDependencyGraph_MutualRecursion(t *testing.T) {
	p := ir.NewPool()
	s0 := ir.Must(p.OpenGroup(0))
	s1 := ir.Must(p.OpenGroup(1))
	t0 := ir.Must(p.CloseGroup(0, ir.Must(p.Delay1(s1))))
	t1 := ir.Must(p.CloseGroup(1, ir.Must(p.Add(ir.Must(p.Delay1(s0)), ir.Must(p.Int(1))))))

	graph := buildDependencyGraph(map[int]ir.Signal{0: t0, 1: t1})

	want := dependencyGraph{0: {1}, 1: {0}}
	if diff := cmp.Diff(want, graph); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
}

// TestBuildDependencyGraph_NoFeedback tests that a group whose body never
// refers back still gets an entry.
func TestBuildDependencyGraph_NoFeedback(t *testing.T) {
	p := ir.NewPool()
	ir.Must(p.OpenGroup(3))
	tie := ir.Must(p.CloseGroup(3, ir.Must(p.Int(7))))

	graph := buildDependencyGraph(map[int]ir.Signal{3: tie})

	require.Contains(t, graph, 3)
	assert.Empty(t, graph[3])
	assert.Equal(t, []int{3}, graph.nodes())
}

// TestBuildDependencyGraph_DedupesEdges tests repeated references collapse.
func TestBuildDependencyGraph_DedupesEdges(t *testing.T) {
	p := ir.NewPool()
	s0 := ir.Must(p.OpenGroup(0))
	d := ir.Must(p.Delay1(s0))
	body := ir.Must(p.Add(d, ir.Must(p.Mul(s0, ir.Must(p.Real(0.5))))))
	tie := ir.Must(p.CloseGroup(0, body))

	graph := buildDependencyGraph(map[int]ir.Signal{0: tie})

	assert.Equal(t, []int{0}, graph[0])
}

func TestTarjanSCC(t *testing.T) {
	tests := []struct {
		name  string
		graph dependencyGraph
		want  [][]int
	}{
		{
			name:  "empty",
			graph: dependencyGraph{},
			want:  nil,
		},
		{
			name:  "self loop",
			graph: dependencyGraph{0: {0}},
			want:  [][]int{{0}},
		},
		{
			name:  "chain lists dependencies first",
			graph: dependencyGraph{0: {1}, 1: {2}, 2: {}},
			want:  [][]int{{2}, {1}, {0}},
		},
		{
			name:  "cycle plus dependents",
			graph: dependencyGraph{0: {1}, 1: {0}, 2: {0}, 3: {}},
			want:  [][]int{{0, 1}, {2}, {3}},
		},
		{
			name:  "three cycle sorted",
			graph: dependencyGraph{5: {9}, 9: {7}, 7: {5}},
			want:  [][]int{{5, 7, 9}},
		},
		{
			name:  "unknown neighbor ignored",
			graph: dependencyGraph{0: {42}},
			want:  [][]int{{0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tarjanSCC(tt.graph)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("tarjanSCC mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestTarjanSCC_Deterministic tests that map iteration order never leaks
// into the schedule.
func TestTarjanSCC_Deterministic(t *testing.T) {
	graph := dependencyGraph{
		0: {1}, 1: {0, 2}, 2: {3}, 3: {2}, 4: {0, 3}, 5: {},
	}
	first := tarjanSCC(graph)
	for range 50 {
		assert.Equal(t, first, tarjanSCC(graph))
	}
	assert.Equal(t, [][]int{{2, 3}, {0, 1}, {4}, {5}}, first)
}

func TestReconstructCyclePath(t *testing.T) {
	tests := []struct {
		name  string
		scc   []int
		start int
		graph dependencyGraph
		want  string
	}{
		{"self", []int{0}, 0, dependencyGraph{0: {0}}, "0 -> 0"},
		{"pair", []int{0, 1}, 1, dependencyGraph{0: {1}, 1: {0}}, "1 -> 0 -> 1"},
		{"triangle", []int{0, 1, 2}, 0, dependencyGraph{0: {1}, 1: {2}, 2: {0}}, "0 -> 1 -> 2 -> 0"},
		{"skips outside members", []int{0, 2}, 0, dependencyGraph{0: {1, 2}, 1: {}, 2: {0}}, "0 -> 2 -> 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := reconstructCyclePath(tt.scc, tt.start, tt.graph)
			assert.Equal(t, tt.want, formatCyclePath(path))
		})
	}
}

func TestReconstructCyclePath_Empty(t *testing.T) {
	assert.Empty(t, reconstructCyclePath(nil, 0, dependencyGraph{}))
	assert.Equal(t, "", formatCyclePath(nil))
}

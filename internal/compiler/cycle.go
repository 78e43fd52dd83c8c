package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sigir/internal/ir"
)

// dependencyGraph maps a recursion group to the groups whose feedback
// references appear inside its defining subtree. Every group has an entry.
type dependencyGraph map[int][]int

// buildDependencyGraph derives group edges from each tie's body.
//
// For each group g with tie rec(g, body):
//   - Walk body through raw child edges (feedback references are leaves)
//   - Record an edge g -> h for every self(h) or proj(h) found
//
// Edge lists are sorted and deduplicated so the graph is deterministic.
func buildDependencyGraph(ties map[int]ir.Signal) dependencyGraph {
	graph := make(dependencyGraph, len(ties))
	for g, tie := range ties {
		_, body, _ := ir.MatchRec(tie)
		var deps []int
		ir.Walk([]ir.Signal{body}, func(s ir.Signal) {
			if !s.IsFeedback() {
				return
			}
			h, _ := s.Group()
			deps = append(deps, h)
		})
		slices.Sort(deps)
		graph[g] = slices.Compact(deps)
	}
	return graph
}

func (g dependencyGraph) nodes() []int {
	ids := make([]int, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// A component is emitted only after every component it depends on, so the
// result is already in dependency order (dependencies first). Nodes are
// visited in ascending order and each component is sorted, which makes the
// schedule independent of map iteration order.
func tarjanSCC(graph dependencyGraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make(map[int]int)
		lowlink = make(map[int]int)
		onStack = make(map[int]bool)
		sccs    [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, known := graph[w]; !known {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root of a component: pop it off the stack.
		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range graph.nodes() {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds a cycle through an SCC starting at start,
// following edges to other members until it returns to start.
func reconstructCyclePath(scc []int, start int, graph dependencyGraph) []int {
	if len(scc) == 0 {
		return []int{}
	}

	members := make(map[int]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	current := start
	path := []int{current}
	visited := make(map[int]bool)
	for {
		visited[current] = true

		next, found := 0, false
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next, found = neighbor, true
				break
			}
		}
		if !found {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}

func formatCyclePath(path []int) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, " -> ")
}

package plan

import (
	"sort"

	"github.com/swell-sh/swell/internal/task"
)

// Graph maps each task id to the set of task ids it depends on. It merges
// the explicit "after T###" / "depends on T###" declarations with implicit
// edges derived from shared file locks.
type Graph map[string]map[string]struct{}

// BuildGraph constructs the dependency graph for a task list.
//
// Explicit dependencies come straight from each task's DependsOn set.
// Implicit dependencies come from file-lock collisions: when two tasks touch
// the same file, the one declared later depends on the one declared earlier.
// Document order is the tie-break authority for implicit ordering.
func BuildGraph(tasks []task.Task) Graph {
	g := make(Graph, len(tasks))
	for _, t := range tasks {
		g[t.ID] = make(map[string]struct{})
		for _, dep := range t.DependsOn {
			g[t.ID][dep] = struct{}{}
		}
	}

	// fileOwners tracks, per file, the ids of earlier-declared tasks that
	// lock it. Tasks are visited in document order, so every owner seen so
	// far precedes the current task.
	fileOwners := make(map[string][]string)
	for _, t := range tasks {
		for _, f := range t.FileLocks {
			for _, earlier := range fileOwners[f] {
				g[t.ID][earlier] = struct{}{}
			}
			fileOwners[f] = append(fileOwners[f], t.ID)
		}
	}

	return g
}

// DependenciesOf returns the sorted dependency ids of a task.
func (g Graph) DependenciesOf(id string) []string {
	deps := make([]string, 0, len(g[id]))
	for d := range g[id] {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	return deps
}

// EdgeCount returns the total number of dependency edges in the graph.
func (g Graph) EdgeCount() int {
	n := 0
	for _, deps := range g {
		n += len(deps)
	}
	return n
}

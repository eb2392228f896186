package plan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swell-sh/swell/internal/task"
)

// PlanningError is returned when a planning pass places zero tasks while
// unassigned tasks remain: a dependency cycle or a lock deadlock, surfaced
// identically. No partial plan is produced alongside it.
type PlanningError struct {
	// Stuck lists every task id that could not be assigned, sorted.
	Stuck []string
}

// Error implements the error interface.
func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning stuck: circular dependency or unresolvable lock conflict among tasks %s",
		strings.Join(e.Stuck, ", "))
}

// Planner partitions a task list into ordered execution waves.
//
// The partition is greedy, not globally optimal: it can produce more waves
// than an optimal coloring when lock conflicts are sparse, but wave numbering
// is fully deterministic for a fixed task list, and downstream tooling
// depends on that.
type Planner struct {
	phaseID string
}

// NewPlanner returns a Planner that stamps plans with the given phase id.
func NewPlanner(phaseID string) *Planner {
	if phaseID == "" {
		phaseID = "default"
	}
	return &Planner{phaseID: phaseID}
}

// Plan partitions tasks into waves and returns the resulting plan.
//
// Each pass scans the unassigned tasks in document order. A task is eligible
// for the current wave if every one of its dependencies was assigned to an
// earlier wave — assignments made during the current pass do not count — and
// none of its file locks collide with locks already claimed in the pass.
// A pass that places nothing while tasks remain fails with a PlanningError
// naming every stuck task.
func (p *Planner) Plan(tasks []task.Task) (*ExecutionPlan, error) {
	graph := BuildGraph(tasks)

	assigned := make(map[string]struct{}, len(tasks))
	var waves []Wave

	for len(assigned) < len(tasks) {
		// Snapshot the assignment state before the pass: only tasks in
		// strictly earlier waves satisfy a dependency.
		before := make(map[string]struct{}, len(assigned))
		for id := range assigned {
			before[id] = struct{}{}
		}

		var members []task.Task
		claimed := make(map[string]struct{})

		for _, t := range tasks {
			if _, done := assigned[t.ID]; done {
				continue
			}
			if !depsSatisfied(graph[t.ID], before) {
				continue
			}
			if locksCollide(t.FileLocks, claimed) {
				continue
			}

			members = append(members, t.Clone())
			for _, f := range t.FileLocks {
				claimed[f] = struct{}{}
			}
			assigned[t.ID] = struct{}{}
		}

		if len(members) == 0 {
			return nil, &PlanningError{Stuck: unassignedIDs(tasks, assigned)}
		}

		waveID := len(waves) + 1
		strategy := StrategySequential
		if len(members) > 1 {
			strategy = StrategyParallel
		}
		waves = append(waves, Wave{
			ID:       waveID,
			Strategy: strategy,
			Tasks:    members,
			Rationale: fmt.Sprintf("Wave %d: %d independent task(s) with no file conflicts",
				waveID, len(members)),
			Checkpoint: true,
		})
	}

	return &ExecutionPlan{
		PlanID:    uuid.NewString(),
		PhaseID:   p.phaseID,
		CreatedAt: time.Now().UTC(),
		Waves:     waves,
	}, nil
}

func depsSatisfied(deps map[string]struct{}, assigned map[string]struct{}) bool {
	for d := range deps {
		if _, ok := assigned[d]; !ok {
			return false
		}
	}
	return true
}

func locksCollide(locks []string, claimed map[string]struct{}) bool {
	for _, f := range locks {
		if _, ok := claimed[f]; ok {
			return true
		}
	}
	return false
}

func unassignedIDs(tasks []task.Task, assigned map[string]struct{}) []string {
	var stuck []string
	for _, t := range tasks {
		if _, ok := assigned[t.ID]; !ok {
			stuck = append(stuck, t.ID)
		}
	}
	sort.Strings(stuck)
	return stuck
}

// Package plan builds and persists execution plans: it merges explicit and
// implicit task dependencies into one graph, partitions tasks into ordered
// waves with a greedy lock-aware pass, and serializes the result as the
// authoritative hand-off between planning and execution.
package plan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/swell-sh/swell/internal/task"
)

// Strategy describes how a wave's tasks relate to each other. It is purely
// descriptive metadata; actual concurrency is owned by the dispatcher.
type Strategy string

const (
	// StrategyParallel marks a wave with more than one task. Members share
	// no file locks and may run concurrently.
	StrategyParallel Strategy = "PARALLEL"

	// StrategySequential marks a single-task wave.
	StrategySequential Strategy = "SEQUENTIAL"
)

// Wave is an ordered batch of tasks determined safe to execute concurrently.
// Waves are created once by the planner and read-only thereafter.
type Wave struct {
	// ID is 1-based and monotonic across the plan.
	ID int `json:"wave_id"`

	// Strategy is PARALLEL when the wave holds more than one task,
	// SEQUENTIAL otherwise.
	Strategy Strategy `json:"strategy"`

	// Tasks are the member tasks, in document order.
	Tasks []task.Task `json:"tasks"`

	// Rationale is a human-readable note on why the wave was formed.
	Rationale string `json:"rationale"`

	// Checkpoint controls whether the checkpoint protocol runs after the
	// wave completes.
	Checkpoint bool `json:"checkpoint"`
}

// TaskIDs returns the ids of the wave's member tasks in order.
func (w *Wave) TaskIDs() []string {
	ids := make([]string, len(w.Tasks))
	for i, t := range w.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// ExecutionPlan is the serialized, re-loadable artifact handed from planning
// to execution. A replan produces a new plan document; plans already being
// executed are never mutated in place.
type ExecutionPlan struct {
	// PlanID uniquely identifies this planning run.
	PlanID string `json:"plan_id"`

	// PhaseID names the phase of work this plan covers.
	PhaseID string `json:"phase_id"`

	// CreatedAt is when the plan was generated.
	CreatedAt time.Time `json:"created_at"`

	// Waves are executed strictly in order.
	Waves []Wave `json:"waves"`
}

// TaskCount returns the total number of tasks across all waves.
func (p *ExecutionPlan) TaskCount() int {
	n := 0
	for _, w := range p.Waves {
		n += len(w.Tasks)
	}
	return n
}

// Validate checks the plan's structural invariants: wave ids are 1-based and
// monotonic, strategies match member counts, and every task appears in
// exactly one wave.
func (p *ExecutionPlan) Validate() error {
	seen := make(map[string]int)
	var dupes []string

	for i, w := range p.Waves {
		if w.ID != i+1 {
			return fmt.Errorf("wave at index %d has id %d, want %d", i, w.ID, i+1)
		}
		if len(w.Tasks) == 0 {
			return fmt.Errorf("wave %d is empty", w.ID)
		}
		want := StrategySequential
		if len(w.Tasks) > 1 {
			want = StrategyParallel
		}
		if w.Strategy != want {
			return fmt.Errorf("wave %d has strategy %s with %d task(s), want %s",
				w.ID, w.Strategy, len(w.Tasks), want)
		}
		for _, t := range w.Tasks {
			seen[t.ID]++
			if seen[t.ID] > 1 {
				dupes = append(dupes, t.ID)
			}
		}
	}

	if len(dupes) > 0 {
		sort.Strings(dupes)
		return fmt.Errorf("tasks appear in more than one wave: %s", strings.Join(dupes, ", "))
	}
	return nil
}

// Package task defines the task model and the markdown task-list parser.
//
// Tasks live in a flat markdown checklist (tasks.md by default). Each line
// beginning "- [ ]" or "- [x]" opens a task block; indented metadata lines
// may follow, and a blank line closes the block. The checkbox state in this
// file is the single completion authority for the whole system: the executor
// re-reads it rather than trusting any in-memory flag.
package task

import "slices"

// DefaultRole is assigned to tasks that carry no explicit role metadata.
const DefaultRole = "developer"

// Task is a single unit of work parsed from the task list.
type Task struct {
	// ID is assigned in document order: "T001", "T002", ...
	ID string `json:"id"`

	// Description is the task text after the checkbox.
	Description string `json:"description"`

	// FileLocks are the file paths the task is expected to touch, extracted
	// from the description. Sorted and deduplicated. Two tasks sharing a
	// lock may never run in the same wave.
	FileLocks []string `json:"file_locks"`

	// DependsOn lists explicit prerequisite task IDs declared with
	// "after T###" or "depends on T###" in the description.
	DependsOn []string `json:"depends_on"`

	// Rules are per-task policy rule identifiers from a
	// "- **Rules**: a, b" metadata line, carried through to the process
	// registry at dispatch time.
	Rules []string `json:"rules,omitempty"`

	// Role is the worker role from a "- **Role**:" metadata line.
	Role string `json:"role"`

	// Completed mirrors the checkbox state at parse time.
	Completed bool `json:"completed"`
}

// SharesLockWith reports whether t and other declare any common file lock.
func (t *Task) SharesLockWith(other *Task) bool {
	for _, f := range t.FileLocks {
		if slices.Contains(other.FileLocks, f) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() Task {
	c := *t
	c.FileLocks = slices.Clone(t.FileLocks)
	c.DependsOn = slices.Clone(t.DependsOn)
	c.Rules = slices.Clone(t.Rules)
	return c
}

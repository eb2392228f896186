package executor

import (
	"github.com/swell-sh/swell/internal/task"
)

// CompletionSource reports which tasks the external completion-marker store
// currently considers done. The executor only ever reads this source; the
// checkmarks themselves are written by whoever performs the work.
type CompletionSource interface {
	// Snapshot returns the current completion state by task id.
	Snapshot() (map[string]bool, error)
}

// TaskFileSource reads completion markers from the markdown task list. Each
// snapshot is a fresh parse: in-memory completion flags are never trusted.
type TaskFileSource struct {
	path string
}

// NewTaskFileSource returns a source over the task list at path.
func NewTaskFileSource(path string) *TaskFileSource {
	return &TaskFileSource{path: path}
}

// Path returns the watched file location.
func (s *TaskFileSource) Path() string { return s.path }

// Snapshot re-parses the task list and reports checkbox state by task id.
func (s *TaskFileSource) Snapshot() (map[string]bool, error) {
	tasks, err := task.ParseFile(s.path)
	if err != nil {
		return nil, err
	}
	state := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		state[t.ID] = t.Completed
	}
	return state, nil
}

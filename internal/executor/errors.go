package executor

import (
	"fmt"
	"strings"

	"github.com/swell-sh/swell/internal/policy"
)

// VerificationError reports a wave whose completion could not be confirmed
// against the task list: the exact outstanding task ids are always named.
type VerificationError struct {
	WaveID  int
	Missing []string
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("wave %d incomplete: tasks %s not marked done",
		e.WaveID, strings.Join(e.Missing, ", "))
}

// PolicyError reports checkpoint-time rule violations. It halts the run
// before the commit step.
type PolicyError struct {
	WaveID     int
	Violations []policy.Violation
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = "  " + v.String()
	}
	return fmt.Sprintf("wave %d checkpoint blocked by %d policy violation(s):\n%s",
		e.WaveID, len(e.Violations), strings.Join(lines, "\n"))
}

// Package proc is the native process backend: signal-0 liveness probes,
// start-time fingerprinting to defend against pid reuse, graceful
// process-group kills, and resource sampling via the ps utility.
package proc

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Fingerprint identifies one specific incarnation of a process. PIDs are
// recycled by the kernel, so a bare pid comparison is never sufficient:
// liveness is only proven when the pid exists AND its start time matches the
// one captured at spawn.
type Fingerprint struct {
	PID int
	// StartTime is the process start time as reported by the process
	// table (`ps -o lstart=`), compared as an opaque string.
	StartTime string
}

// Usage is a point-in-time resource sample for one process.
type Usage struct {
	CPUPercent float64
	MemoryKB   uint64
}

// DefaultKillGrace is how long a process group gets to exit after SIGTERM
// before SIGKILL follows.
const DefaultKillGrace = 2 * time.Second

// Backend probes and controls native processes.
type Backend struct {
	killGrace time.Duration
}

// NewBackend returns a Backend with the default kill grace period.
func NewBackend() *Backend {
	return &Backend{killGrace: DefaultKillGrace}
}

// NewBackendWithGrace returns a Backend with a custom SIGTERM grace period.
func NewBackendWithGrace(grace time.Duration) *Backend {
	return &Backend{killGrace: grace}
}

// Alive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything.
func (b *Backend) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	// EPERM means the process exists but belongs to another user.
	return err == nil || err == unix.EPERM
}

// GroupAlive reports whether any member of the process group exists. The
// group leader may exit while children live on, so probing the leader's pid
// alone is not a group liveness check.
func (b *Backend) GroupAlive(pgid int) bool {
	if pgid <= 0 {
		return false
	}
	err := unix.Kill(-pgid, 0)
	return err == nil || err == unix.EPERM
}

// StartTime returns the start time of a process as an opaque string, or an
// error if the process does not exist.
func (b *Backend) StartTime(pid int) (string, error) {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "lstart=").Output()
	if err != nil {
		return "", fmt.Errorf("reading start time of pid %d: %w", pid, err)
	}
	start := strings.TrimSpace(string(out))
	if start == "" {
		return "", fmt.Errorf("pid %d not found in process table", pid)
	}
	return start, nil
}

// Matches reports whether the fingerprinted process is still the one that
// was registered. A live pid with a different start time is a reused pid,
// never a match.
func (b *Backend) Matches(fp Fingerprint) bool {
	if !b.Alive(fp.PID) {
		return false
	}
	current, err := b.StartTime(fp.PID)
	if err != nil {
		return false
	}
	return current == fp.StartTime
}

// KillGroup terminates an entire process group: SIGTERM, a grace period,
// then SIGKILL if anything in the group survived. Killing the group rather
// than a single pid is what prevents orphaned grandchildren.
func (b *Backend) KillGroup(pgid int) error {
	if pgid <= 0 {
		return fmt.Errorf("refusing to kill invalid pgid %d", pgid)
	}

	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return fmt.Errorf("sending SIGTERM to pgid %d: %w", pgid, err)
	}

	time.Sleep(b.killGrace)

	if b.GroupAlive(pgid) {
		if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			return fmt.Errorf("sending SIGKILL to pgid %d: %w", pgid, err)
		}
	}
	return nil
}

// Sample returns a CPU and memory snapshot for one process.
func (b *Backend) Sample(pid int) (Usage, error) {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "%cpu=,rss=").Output()
	if err != nil {
		return Usage{}, fmt.Errorf("sampling pid %d: %w", pid, err)
	}
	return parseUsage(string(out))
}

func parseUsage(raw string) (Usage, error) {
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return Usage{}, fmt.Errorf("unexpected ps output %q", strings.TrimSpace(raw))
	}

	cpu, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Usage{}, fmt.Errorf("parsing cpu %q: %w", fields[0], err)
	}
	rss, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Usage{}, fmt.Errorf("parsing rss %q: %w", fields[1], err)
	}
	return Usage{CPUPercent: cpu, MemoryKB: rss}, nil
}

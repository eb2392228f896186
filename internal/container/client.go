// Package container is the container backend: a thin client over the docker
// CLI covering the narrow start/inspect/kill contract the scheduler and
// watchdog need. Responses are JSON from docker itself, picked apart with
// gjson rather than mirrored into full API structs.
package container

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// NamePrefix is prepended to task ids to form container names, which keeps
// worker containers identifiable among everything else on the host.
const NamePrefix = "swell-task-"

// Stats is a point-in-time resource sample for one container.
type Stats struct {
	CPUPercent float64
	MemoryMB   float64
}

// StartOptions configures a worker container.
type StartOptions struct {
	Image       string
	WorkDir     string // host directory bound to /workspace
	MemoryLimit string // e.g. "512m"
	CPULimit    string // e.g. "1.0"
}

// Client talks to the docker CLI.
type Client struct {
	binary string
}

// NewClient returns a Client, or an error if no docker binary is on PATH.
func NewClient() (*Client, error) {
	bin, err := exec.LookPath("docker")
	if err != nil {
		return nil, fmt.Errorf("docker not available: %w", err)
	}
	return &Client{binary: bin}, nil
}

// Available reports whether a docker binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("docker")
	return err == nil
}

// ContainerName returns the canonical container name for a task id.
func ContainerName(taskID string) string {
	return NamePrefix + taskID
}

// Start creates and starts a detached worker container for a task and
// returns the container id. The command is passed straight through without a
// shell, so task text cannot inject into the host.
func (c *Client) Start(ctx context.Context, taskID string, command []string, opts StartOptions) (string, error) {
	if len(command) == 0 {
		return "", fmt.Errorf("empty command for task %s", taskID)
	}

	args := []string{
		"run", "-d",
		"--name", ContainerName(taskID),
		"--workdir", "/workspace",
	}
	if opts.WorkDir != "" {
		args = append(args, "-v", opts.WorkDir+":/workspace")
	}
	if opts.MemoryLimit != "" {
		args = append(args, "--memory", opts.MemoryLimit)
	}
	if opts.CPULimit != "" {
		args = append(args, "--cpus", opts.CPULimit)
	}
	args = append(args, opts.Image)
	args = append(args, command...)

	out, err := exec.CommandContext(ctx, c.binary, args...).Output()
	if err != nil {
		return "", fmt.Errorf("starting container for %s: %w", taskID, err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("docker run returned no container id for %s", taskID)
	}
	return id, nil
}

// IsRunning reports whether the container exists and its state is running.
// A missing container is simply not running, not an error.
func (c *Client) IsRunning(ctx context.Context, containerID string) (bool, error) {
	out, err := exec.CommandContext(ctx, c.binary, "inspect", containerID).Output()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// docker inspect exits nonzero for unknown ids.
		return false, nil
	}
	return parseInspectRunning(string(out)), nil
}

// Stats returns one resource sample for a container.
func (c *Client) Stats(ctx context.Context, containerID string) (Stats, error) {
	out, err := exec.CommandContext(ctx, c.binary,
		"stats", "--no-stream", "--format", "json", containerID).Output()
	if err != nil {
		return Stats{}, fmt.Errorf("sampling container %s: %w", shortID(containerID), err)
	}
	return parseStats(string(out))
}

// Remove force-removes a container, running or not. This is the container
// analogue of a group kill: the whole container and everything in it goes.
func (c *Client) Remove(ctx context.Context, containerID string) error {
	if err := exec.CommandContext(ctx, c.binary, "rm", "-f", containerID).Run(); err != nil {
		return fmt.Errorf("removing container %s: %w", shortID(containerID), err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// ----- Response parsing -----

// parseInspectRunning extracts State.Running from docker inspect output,
// which is a JSON array with one element per inspected container.
func parseInspectRunning(raw string) bool {
	return gjson.Get(raw, "0.State.Running").Bool()
}

// parseStats extracts a Stats sample from `docker stats --format json`
// output, which reports percentages and sizes as display strings like
// "12.5%" and "256MiB / 7.6GiB".
func parseStats(raw string) (Stats, error) {
	doc := gjson.Parse(strings.TrimSpace(raw))

	cpu, err := parsePercent(doc.Get("CPUPerc").String())
	if err != nil {
		return Stats{}, fmt.Errorf("parsing container cpu: %w", err)
	}
	mem, err := parseMemUsage(doc.Get("MemUsage").String())
	if err != nil {
		return Stats{}, fmt.Errorf("parsing container memory: %w", err)
	}
	return Stats{CPUPercent: cpu, MemoryMB: mem}, nil
}

func parsePercent(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return 0, fmt.Errorf("empty percentage")
	}
	return strconv.ParseFloat(s, 64)
}

// parseMemUsage parses the usage half of "256MiB / 7.6GiB" into megabytes.
func parseMemUsage(s string) (float64, error) {
	used, _, _ := strings.Cut(s, "/")
	used = strings.TrimSpace(used)
	if used == "" {
		return 0, fmt.Errorf("empty memory usage")
	}

	units := []struct {
		suffix string
		toMB   float64
	}{
		{"GiB", 1024}, {"MiB", 1}, {"KiB", 1.0 / 1024},
		{"GB", 1000}, {"MB", 1}, {"kB", 1.0 / 1000}, {"B", 1.0 / 1e6},
	}
	for _, u := range units {
		if strings.HasSuffix(used, u.suffix) {
			n, err := strconv.ParseFloat(strings.TrimSuffix(used, u.suffix), 64)
			if err != nil {
				return 0, fmt.Errorf("parsing memory %q: %w", used, err)
			}
			return n * u.toMB, nil
		}
	}
	return 0, fmt.Errorf("unrecognized memory unit in %q", used)
}

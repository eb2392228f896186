// Package registry implements the durable process registry: one JSON
// document recording every spawned worker, its execution mode, and its
// lifecycle status. The on-disk copy is the sole source of truth — every
// mutation re-reads, modifies, and atomically rewrites the document under an
// exclusive file lock, so both the scheduler and the watchdog can share it
// across process restarts.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the registry document version this package reads and writes.
const SchemaVersion = 1

// DefaultNamespace qualifies task ids when no namespace is configured.
const DefaultNamespace = "swell"

// ExecutionMode discriminates how a worker runs.
type ExecutionMode string

const (
	// ModeNative is a directly spawned OS process tracked by pid and
	// process group.
	ModeNative ExecutionMode = "native"

	// ModeContainer is a worker running inside a container tracked by
	// container id.
	ModeContainer ExecutionMode = "container"
)

// IsValid reports whether the mode is a known variant.
func (m ExecutionMode) IsValid() bool {
	return m == ModeNative || m == ModeContainer
}

// Status is the per-record lifecycle state.
type Status string

const (
	// StatusRunning means the worker is believed alive.
	StatusRunning Status = "running"

	// StatusCompleted means the worker finished successfully. Terminal.
	StatusCompleted Status = "completed"

	// StatusFailed means the worker died or was declared an orphan. Terminal.
	StatusFailed Status = "failed"
)

// IsValid reports whether the status is a known variant.
func (s Status) IsValid() bool {
	return s == StatusRunning || s == StatusCompleted || s == StatusFailed
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NativeInfo holds tracking data for a native-mode worker. The (PID,
// StartTime) pair forms the liveness fingerprint: a pid match alone never
// proves the original process is still running.
type NativeInfo struct {
	PID  int `json:"pid"`
	PGID int `json:"pgid"`
	// StartTime is the process start time exactly as reported by the
	// process table, compared as an opaque string.
	StartTime string `json:"start_time"`
}

// Limits are the resource limits a container was started with.
type Limits struct {
	Memory string `json:"memory"`
	CPU    string `json:"cpu"`
}

// ContainerInfo holds tracking data for a container-mode worker.
type ContainerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Limits Limits `json:"limits"`
}

// ProcessRecord is one registry entry. Exactly one of Native or Container is
// set, matching Mode.
type ProcessRecord struct {
	Mode        ExecutionMode  `json:"mode"`
	Command     string         `json:"command"`
	Role        string         `json:"role,omitempty"`
	Rules       []string       `json:"rules,omitempty"`
	Status      Status         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Native      *NativeInfo    `json:"native,omitempty"`
	Container   *ContainerInfo `json:"container,omitempty"`
}

// Validate checks the record against the canonical schema: a known mode and
// status, and tracking info present for exactly the declared mode.
func (r *ProcessRecord) Validate() error {
	if !r.Mode.IsValid() {
		return fmt.Errorf("unknown execution mode %q", r.Mode)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	switch r.Mode {
	case ModeNative:
		if r.Native == nil {
			return fmt.Errorf("native record missing native info")
		}
		if r.Container != nil {
			return fmt.Errorf("native record carries container info")
		}
		if r.Native.PID <= 0 {
			return fmt.Errorf("native record has invalid pid %d", r.Native.PID)
		}
	case ModeContainer:
		if r.Container == nil {
			return fmt.Errorf("container record missing container info")
		}
		if r.Native != nil {
			return fmt.Errorf("container record carries native info")
		}
		if r.Container.ID == "" {
			return fmt.Errorf("container record has empty container id")
		}
	}
	if r.Status.IsTerminal() && r.CompletedAt == nil {
		return fmt.Errorf("terminal record missing completed_at")
	}
	return nil
}

// Elapsed returns how long the record has run: until CompletedAt for
// terminal records, until now for running ones.
func (r *ProcessRecord) Elapsed(now time.Time) time.Duration {
	end := now
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(r.StartedAt)
}

// Document is the on-disk registry structure.
type Document struct {
	Version int                      `json:"version"`
	Tasks   map[string]ProcessRecord `json:"tasks"`
}

// NewDocument returns an empty registry document at the current schema version.
func NewDocument() *Document {
	return &Document{
		Version: SchemaVersion,
		Tasks:   make(map[string]ProcessRecord),
	}
}

// NamespacedID joins a namespace and task id into a registry key.
func NamespacedID(namespace, taskID string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + ":" + taskID
}

// SplitID splits a registry key back into namespace and task id. Keys with
// no namespace separator report the default namespace.
func SplitID(key string) (namespace, taskID string) {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return DefaultNamespace, key
}

// Package watchdog implements the reconciliation loop that keeps the process
// registry honest: it compares every registry record against the real
// process table and container runtime, fails orphaned records, kills zombie
// process groups and containers, and samples resource usage for whatever is
// genuinely alive. It also provides the rehydrator, which rebuilds a
// situational digest purely from the on-disk registry.
package watchdog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swell-sh/swell/internal/container"
	"github.com/swell-sh/swell/internal/logging"
	"github.com/swell-sh/swell/internal/proc"
	"github.com/swell-sh/swell/internal/registry"
)

// ProcessBackend is the slice of the native process backend the watchdog
// needs. Satisfied by *proc.Backend.
type ProcessBackend interface {
	Matches(fp proc.Fingerprint) bool
	KillGroup(pgid int) error
	Sample(pid int) (proc.Usage, error)
}

// ContainerBackend is the slice of the container backend the watchdog needs.
// Satisfied by *container.Client.
type ContainerBackend interface {
	IsRunning(ctx context.Context, containerID string) (bool, error)
	Stats(ctx context.Context, containerID string) (container.Stats, error)
	Remove(ctx context.Context, containerID string) error
}

// Event records one orphan or zombie finding for a single registry key.
type Event struct {
	// Key is the namespaced registry key.
	Key string
	// Reason explains what the reconciliation found.
	Reason string
}

// Sample is one resource reading for a live record.
type Sample struct {
	Key        string
	CPUPercent float64
	MemoryMB   float64
}

// Report summarizes one reconciliation sweep. Per-record errors are strictly
// local: a failed inspection or sample never aborts the sweep for the rest.
type Report struct {
	Orphans []Event
	Zombies []Event
	Samples []Sample
	// Errors maps registry keys to the local failure that record hit.
	Errors map[string]error
	// Checked is how many records the sweep inspected.
	Checked int
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watchdog) { w.log = l.WithComponent("watchdog") }
}

// WithInspectTimeout bounds a single record inspection.
func WithInspectTimeout(d time.Duration) Option {
	return func(w *Watchdog) { w.inspectTimeout = d }
}

// WithMaxConcurrent bounds sweep fan-out.
func WithMaxConcurrent(n int) Option {
	return func(w *Watchdog) { w.maxConcurrent = n }
}

// Watchdog reconciles the registry against live process and container state
// on its own clock, independent of whatever is executing waves.
type Watchdog struct {
	store      *registry.Store
	procs      ProcessBackend
	containers ContainerBackend

	log            *logging.Logger
	inspectTimeout time.Duration
	maxConcurrent  int
}

// New returns a Watchdog over the given store and backends. The container
// backend may be nil on hosts without a container runtime; container-mode
// records then report a local error instead of being reconciled.
func New(store *registry.Store, procs ProcessBackend, containers ContainerBackend, opts ...Option) *Watchdog {
	w := &Watchdog{
		store:          store,
		procs:          procs,
		containers:     containers,
		log:            logging.Nop(),
		inspectTimeout: 10 * time.Second,
		maxConcurrent:  8,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run loops Sweep on a fixed interval until the context is cancelled. The
// first sweep happens immediately. Sweep-level failures (for example a
// corrupt registry) are logged and surfaced, ending the loop: a watchdog
// that cannot trust its registry must not keep acting on it.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := w.Sweep(ctx)
		if err != nil {
			w.log.Error("sweep failed", "error", err)
			return err
		}
		w.logReport(report)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep performs one reconciliation pass over every registry record and
// returns what it found. Inspections fan out concurrently with a bounded
// limit; each is additionally bounded by the per-record inspect timeout so
// one unresponsive container cannot stall the whole sweep.
func (w *Watchdog) Sweep(ctx context.Context) (*Report, error) {
	doc, err := w.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading registry for sweep: %w", err)
	}

	keys := make([]string, 0, len(doc.Tasks))
	for k := range doc.Tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := &Report{Errors: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.maxConcurrent)

	for _, key := range keys {
		rec := doc.Tasks[key]
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, w.inspectTimeout)
			defer cancel()

			finding := w.reconcile(rctx, key, rec)

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if finding.err != nil {
				report.Errors[key] = finding.err
			}
			if finding.orphan != nil {
				report.Orphans = append(report.Orphans, *finding.orphan)
			}
			if finding.zombie != nil {
				report.Zombies = append(report.Zombies, *finding.zombie)
			}
			if finding.sample != nil {
				report.Samples = append(report.Samples, *finding.sample)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortReport(report)
	return report, nil
}

type finding struct {
	orphan *Event
	zombie *Event
	sample *Sample
	err    error
}

// reconcile inspects one record. All failures are captured in the returned
// finding, never propagated as sweep failures.
func (w *Watchdog) reconcile(ctx context.Context, key string, rec registry.ProcessRecord) finding {
	switch rec.Status {
	case registry.StatusRunning:
		return w.reconcileRunning(ctx, key, rec)
	case registry.StatusCompleted:
		return w.reconcileCompleted(ctx, key, rec)
	default:
		// Failed records stay failed; nothing to verify.
		return finding{}
	}
}

func (w *Watchdog) reconcileRunning(ctx context.Context, key string, rec registry.ProcessRecord) finding {
	switch rec.Mode {
	case registry.ModeNative:
		fp := proc.Fingerprint{PID: rec.Native.PID, StartTime: rec.Native.StartTime}
		if !w.procs.Matches(fp) {
			return w.orphan(key, fmt.Sprintf(
				"pid %d is gone or was reused (start time mismatch)", rec.Native.PID))
		}
		usage, err := w.procs.Sample(rec.Native.PID)
		if err != nil {
			return finding{err: fmt.Errorf("sampling: %w", err)}
		}
		return finding{sample: &Sample{
			Key:        key,
			CPUPercent: usage.CPUPercent,
			MemoryMB:   float64(usage.MemoryKB) / 1024,
		}}

	case registry.ModeContainer:
		if w.containers == nil {
			return finding{err: fmt.Errorf("no container backend available")}
		}
		running, err := w.containers.IsRunning(ctx, rec.Container.ID)
		if err != nil {
			return finding{err: fmt.Errorf("inspecting container: %w", err)}
		}
		if !running {
			return w.orphan(key, fmt.Sprintf(
				"container %s no longer exists", rec.Container.ID))
		}
		stats, err := w.containers.Stats(ctx, rec.Container.ID)
		if err != nil {
			return finding{err: fmt.Errorf("sampling container: %w", err)}
		}
		return finding{sample: &Sample{
			Key:        key,
			CPUPercent: stats.CPUPercent,
			MemoryMB:   stats.MemoryMB,
		}}
	}
	return finding{err: fmt.Errorf("unknown mode %q", rec.Mode)}
}

func (w *Watchdog) reconcileCompleted(ctx context.Context, key string, rec registry.ProcessRecord) finding {
	switch rec.Mode {
	case registry.ModeNative:
		fp := proc.Fingerprint{PID: rec.Native.PID, StartTime: rec.Native.StartTime}
		if !w.procs.Matches(fp) {
			return finding{}
		}
		// The record says done but the process group lives on: a zombie.
		// Kill the whole group, never the single pid.
		if err := w.procs.KillGroup(rec.Native.PGID); err != nil {
			return finding{err: fmt.Errorf("killing zombie group %d: %w", rec.Native.PGID, err)}
		}
		return w.zombie(key, fmt.Sprintf(
			"completed task still had live process group %d; killed", rec.Native.PGID))

	case registry.ModeContainer:
		if w.containers == nil {
			return finding{err: fmt.Errorf("no container backend available")}
		}
		running, err := w.containers.IsRunning(ctx, rec.Container.ID)
		if err != nil {
			return finding{err: fmt.Errorf("inspecting container: %w", err)}
		}
		if !running {
			return finding{}
		}
		if err := w.containers.Remove(ctx, rec.Container.ID); err != nil {
			return finding{err: fmt.Errorf("removing zombie container: %w", err)}
		}
		return w.zombie(key, fmt.Sprintf(
			"completed task still had live container %s; removed", rec.Container.ID))
	}
	return finding{err: fmt.Errorf("unknown mode %q", rec.Mode)}
}

// orphan transitions the record to failed and emits one event. A transition
// failure downgrades the finding to a local error so the next sweep retries.
func (w *Watchdog) orphan(key, reason string) finding {
	if err := w.store.MarkFailed(key); err != nil {
		return finding{err: fmt.Errorf("failing orphan: %w", err)}
	}
	w.log.Warn("orphan detected", "task", key, "reason", reason)
	return finding{orphan: &Event{Key: key, Reason: reason}}
}

func (w *Watchdog) zombie(key, reason string) finding {
	w.log.Warn("zombie detected", "task", key, "reason", reason)
	return finding{zombie: &Event{Key: key, Reason: reason}}
}

func (w *Watchdog) logReport(r *Report) {
	w.log.Info("sweep complete",
		"checked", r.Checked,
		"orphans", len(r.Orphans),
		"zombies", len(r.Zombies),
		"samples", len(r.Samples),
		"errors", len(r.Errors),
	)
	for _, s := range r.Samples {
		w.log.Debug("resource sample",
			"task", s.Key, "cpu_percent", s.CPUPercent, "memory_mb", s.MemoryMB)
	}
}

func sortReport(r *Report) {
	sort.Slice(r.Orphans, func(i, j int) bool { return r.Orphans[i].Key < r.Orphans[j].Key })
	sort.Slice(r.Zombies, func(i, j int) bool { return r.Zombies[i].Key < r.Zombies[j].Key })
	sort.Slice(r.Samples, func(i, j int) bool { return r.Samples[i].Key < r.Samples[j].Key })
}

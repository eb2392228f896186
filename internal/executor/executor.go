// Package executor drives an execution plan wave by wave: dispatch the
// wave's tasks, wait for the external completion markers, then run the
// four-step checkpoint protocol — verify, record progress, validate policy,
// commit. Every failure halts the remaining waves; already-checkpointed
// waves are never rolled back.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/swell-sh/swell/internal/logging"
	"github.com/swell-sh/swell/internal/plan"
	"github.com/swell-sh/swell/internal/policy"
)

// Dispatcher hands a wave's tasks to whatever actually performs the work.
// The executor never generates or runs the work itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, wave plan.Wave) error
}

// LogDispatcher announces each wave and leaves execution to external agents
// watching the plan. It is the default dispatcher.
type LogDispatcher struct {
	log *logging.Logger
}

// NewLogDispatcher returns a LogDispatcher.
func NewLogDispatcher(l *logging.Logger) *LogDispatcher {
	return &LogDispatcher{log: l}
}

// Dispatch logs the wave hand-off.
func (d *LogDispatcher) Dispatch(_ context.Context, wave plan.Wave) error {
	d.log.Info("wave dispatched",
		"wave", wave.ID,
		"strategy", string(wave.Strategy),
		"tasks", wave.TaskIDs(),
	)
	return nil
}

// GitClient is the version-control slice the checkpoint protocol needs.
// Satisfied by *gitops.Git.
type GitClient interface {
	CommitAll(message string) error
	ChangedFiles() ([]string, error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithDispatcher replaces the default log dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Executor) { e.dispatcher = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.log = l.WithComponent("executor") }
}

// WithPollInterval sets how often the completion source is re-read while
// waiting on a wave.
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) { e.pollInterval = d }
}

// WithWaveTimeout bounds how long one wave may stay incomplete. Zero waits
// forever.
func WithWaveTimeout(d time.Duration) Option {
	return func(e *Executor) { e.waveTimeout = d }
}

// WithPolicyValidator enables checkpoint step 3 with the given validator.
func WithPolicyValidator(v *policy.Validator) Option {
	return func(e *Executor) { e.validator = v }
}

// WithGit enables checkpoint step 4 against the given client.
func WithGit(g GitClient) Option {
	return func(e *Executor) { e.git = g }
}

// WithProgressFile sets the durable progress log location.
func WithProgressFile(path string) Option {
	return func(e *Executor) { e.progressFile = path }
}

// Executor runs one execution plan to completion.
type Executor struct {
	plan   *plan.ExecutionPlan
	source CompletionSource

	dispatcher   Dispatcher
	validator    *policy.Validator
	git          GitClient
	log          *logging.Logger
	progressFile string
	pollInterval time.Duration
	waveTimeout  time.Duration
}

// New returns an Executor for the given plan and completion source.
func New(p *plan.ExecutionPlan, source CompletionSource, opts ...Option) *Executor {
	e := &Executor{
		plan:         p,
		source:       source,
		log:          logging.Nop(),
		progressFile: filepath.Join(".swell", "progress.md"),
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dispatcher == nil {
		e.dispatcher = NewLogDispatcher(e.log)
	}
	return e
}

// Run executes every wave in order. The first error halts the remaining
// waves; completed checkpoints stay committed.
func (e *Executor) Run(ctx context.Context) error {
	log := e.log.With("phase", e.plan.PhaseID)
	log.Info("run starting", "waves", len(e.plan.Waves), "tasks", e.plan.TaskCount())

	for _, wave := range e.plan.Waves {
		wlog := log.WithWave(wave.ID)

		if err := e.dispatcher.Dispatch(ctx, wave); err != nil {
			return fmt.Errorf("dispatching wave %d: %w", wave.ID, err)
		}

		wlog.Info("waiting for wave completion", "tasks", wave.TaskIDs())
		if err := e.waitForWave(ctx, wave); err != nil {
			wlog.Error("wave failed", "error", err)
			return err
		}

		if wave.Checkpoint {
			if err := e.checkpoint(wave); err != nil {
				wlog.Error("checkpoint failed", "error", err)
				return err
			}
			wlog.Info("checkpoint complete")
		}
	}

	log.Info("run complete")
	return nil
}

// waitForWave polls the completion source until every wave task is marked
// done. A filesystem watcher on the marker file wakes the poll early; the
// watcher is best-effort and pure polling is the fallback.
func (e *Executor) waitForWave(ctx context.Context, wave plan.Wave) error {
	var deadline <-chan time.Time
	if e.waveTimeout > 0 {
		timer := time.NewTimer(e.waveTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	// Scope the marker watcher to this wave.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wake := e.markerEvents(wctx)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		missing, err := e.outstanding(wave)
		if err != nil {
			return fmt.Errorf("reading completion markers: %w", err)
		}
		if len(missing) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return &VerificationError{WaveID: wave.ID, Missing: missing}
		case <-wake:
		case <-ticker.C:
		}
	}
}

// markerEvents returns a channel that fires when the completion-marker file
// changes. Returns nil (never fires) when the source is not file-backed or
// the watcher cannot be created.
func (e *Executor) markerEvents(ctx context.Context) <-chan struct{} {
	fileSource, ok := e.source.(*TaskFileSource)
	if !ok {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.log.Debug("marker watcher unavailable, polling only", "error", err)
		return nil
	}
	// Watch the directory: editors and atomic writers replace the file,
	// which silently detaches a direct file watch.
	if err := watcher.Add(filepath.Dir(fileSource.Path())); err != nil {
		watcher.Close()
		e.log.Debug("marker watcher unavailable, polling only", "error", err)
		return nil
	}

	wake := make(chan struct{}, 1)
	target := filepath.Clean(fileSource.Path())

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return wake
}

// outstanding returns the wave tasks not yet marked complete, in wave order.
func (e *Executor) outstanding(wave plan.Wave) ([]string, error) {
	state, err := e.source.Snapshot()
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, t := range wave.Tasks {
		if !state[t.ID] {
			missing = append(missing, t.ID)
		}
	}
	return missing, nil
}

// checkpoint runs the four-step protocol. Steps are strictly sequential and
// fail-closed; a failure at any step leaves earlier steps in place.
func (e *Executor) checkpoint(wave plan.Wave) error {
	// Step 1: re-verify completion against the external marker source.
	missing, err := e.outstanding(wave)
	if err != nil {
		return fmt.Errorf("checkpoint verification: %w", err)
	}
	if len(missing) > 0 {
		return &VerificationError{WaveID: wave.ID, Missing: missing}
	}

	// Step 2: append the wave to the durable progress record.
	if err := e.recordProgress(wave); err != nil {
		return fmt.Errorf("recording progress: %w", err)
	}

	// Step 3: validate the files this wave touched.
	if e.validator != nil && e.git != nil {
		changed, err := e.git.ChangedFiles()
		if err != nil {
			return fmt.Errorf("listing changed files: %w", err)
		}
		violations, err := e.validator.ValidateFiles(changed)
		if err != nil {
			return fmt.Errorf("validating changed files: %w", err)
		}
		if len(violations) > 0 {
			return &PolicyError{WaveID: wave.ID, Violations: violations}
		}
	}

	// Step 4: one durable commit for the whole wave.
	if e.git != nil {
		msg := fmt.Sprintf("[CHECKPOINT] Wave %d Complete\n\nAll tasks verified and validated", wave.ID)
		if err := e.git.CommitAll(msg); err != nil {
			return fmt.Errorf("checkpoint commit: %w", err)
		}
	}

	return nil
}

// recordProgress appends a wave entry to the progress log and rewrites it
// atomically.
func (e *Executor) recordProgress(wave plan.Wave) error {
	content := "# Progress\n\n"
	if data, err := os.ReadFile(e.progressFile); err == nil {
		content = string(data)
	} else if !os.IsNotExist(err) {
		return err
	}

	stamp := time.Now().UTC().Format("2006-01-02 15:04:05")
	content += fmt.Sprintf("\n## Wave %d Complete - %s\n\n", wave.ID, stamp)
	for _, t := range wave.Tasks {
		content += fmt.Sprintf("- %s: %s\n", t.ID, t.Description)
	}

	dir := filepath.Dir(e.progressFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-progress-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, e.progressFile)
}

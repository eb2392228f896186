package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/container"
	"github.com/swell-sh/swell/internal/proc"
	"github.com/swell-sh/swell/internal/watchdog"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Reconcile the process registry against reality on an interval",
	Long: `Periodically compare every registered worker against the live system:
mark orphans (registered as running but gone) failed, reap zombies
(still alive past completion) with an escalating kill, and sample CPU
and memory for healthy workers.

Runs an immediate sweep on startup, then repeats on the interval until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatchdog,
}

var (
	watchdogInterval time.Duration
	watchdogOnce     bool
)

func init() {
	watchdogCmd.Flags().DurationVar(&watchdogInterval, "interval", 0, "sweep interval (default from config)")
	watchdogCmd.Flags().BoolVar(&watchdogOnce, "once", false, "run a single sweep and exit")
	rootCmd.AddCommand(watchdogCmd)
}

func runWatchdog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	var containers watchdog.ContainerBackend
	if container.Available() {
		client, err := container.NewClient()
		if err != nil {
			return err
		}
		containers = client
	}

	w := watchdog.New(store, proc.NewBackend(), containers,
		watchdog.WithLogger(log),
		watchdog.WithInspectTimeout(cfg.Watchdog.InspectTimeout()),
		watchdog.WithMaxConcurrent(cfg.Watchdog.MaxConcurrentInspections),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchdogOnce {
		report, err := w.Sweep(ctx)
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	}

	interval := cfg.Watchdog.Interval()
	if watchdogInterval > 0 {
		interval = watchdogInterval
	}
	fmt.Printf("Watchdog sweeping every %s (registry: %s)\n", interval, store.Path())
	if err := w.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printReport(r *watchdog.Report) {
	fmt.Printf("Checked %d record(s): %d orphan(s), %d zombie(s), %d sample(s), %d error(s)\n",
		r.Checked, len(r.Orphans), len(r.Zombies), len(r.Samples), len(r.Errors))
	for _, o := range r.Orphans {
		fmt.Printf("  orphan %s: %s\n", o.Key, o.Reason)
	}
	for _, z := range r.Zombies {
		fmt.Printf("  zombie %s: %s\n", z.Key, z.Reason)
	}
	for _, s := range r.Samples {
		fmt.Printf("  %s: %.1f%% cpu, %.1f MB\n", s.Key, s.CPUPercent, s.MemoryMB)
	}
	keys := make([]string, 0, len(r.Errors))
	for key := range r.Errors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("  error %s: %v\n", key, r.Errors[key])
	}
}

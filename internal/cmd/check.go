package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/container"
	"github.com/swell-sh/swell/internal/proc"
	"github.com/swell-sh/swell/internal/registry"
)

var checkCmd = &cobra.Command{
	Use:   "check <task-id>",
	Short: "Check one registered worker against the live system",
	Long: `Compare a single registry record against reality: for native workers the
pid and start-time fingerprint must both match; for container workers
the container must report running. The registry is not modified — use
the watchdog to reconcile.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	taskID := args[0]
	rec, err := store.Get(taskID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("no record for %s in %s", store.Key(taskID), store.Path())
		}
		return err
	}

	fmt.Printf("%s: status=%s mode=%s\n", store.Key(taskID), rec.Status, rec.Mode)

	switch rec.Mode {
	case registry.ModeNative:
		backend := proc.NewBackend()
		fp := proc.Fingerprint{PID: rec.Native.PID, StartTime: rec.Native.StartTime}
		if !backend.Matches(fp) {
			fmt.Printf("  pid %d is NOT the registered process (dead or reused)\n", rec.Native.PID)
			return nil
		}
		fmt.Printf("  pid %d alive, fingerprint matches\n", rec.Native.PID)
		if usage, err := backend.Sample(rec.Native.PID); err == nil {
			fmt.Printf("  %.1f%% cpu, %.1f MB\n", usage.CPUPercent, float64(usage.MemoryKB)/1024)
		}

	case registry.ModeContainer:
		if !container.Available() {
			return fmt.Errorf("container record but no container runtime on PATH")
		}
		client, err := container.NewClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Watchdog.InspectTimeout())
		defer cancel()
		running, err := client.IsRunning(ctx, rec.Container.ID)
		if err != nil {
			return fmt.Errorf("inspecting container %s: %w", rec.Container.ID, err)
		}
		if !running {
			fmt.Printf("  container %s is NOT running\n", rec.Container.ID)
			return nil
		}
		fmt.Printf("  container %s running\n", rec.Container.ID)
		if stats, err := client.Stats(ctx, rec.Container.ID); err == nil {
			fmt.Printf("  %.1f%% cpu, %.1f MB\n", stats.CPUPercent, stats.MemoryMB)
		}
	}
	return nil
}

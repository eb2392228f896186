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

var killCmd = &cobra.Command{
	Use:   "kill <task-id>",
	Short: "Terminate a registered worker and mark it failed",
	Long: `Stop the worker behind a registry record: native workers get an
escalating SIGTERM-then-SIGKILL against the whole process group,
container workers are force-removed. The record is marked failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
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
	if rec.Status.IsTerminal() {
		fmt.Printf("%s is already %s\n", store.Key(taskID), rec.Status)
		return nil
	}

	switch rec.Mode {
	case registry.ModeNative:
		backend := proc.NewBackend()
		fp := proc.Fingerprint{PID: rec.Native.PID, StartTime: rec.Native.StartTime}
		if backend.Matches(fp) {
			if err := backend.KillGroup(rec.Native.PGID); err != nil {
				return fmt.Errorf("killing process group %d: %w", rec.Native.PGID, err)
			}
			fmt.Printf("Killed process group %d\n", rec.Native.PGID)
		} else {
			fmt.Printf("pid %d already gone\n", rec.Native.PID)
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
		if err := client.Remove(ctx, rec.Container.ID); err != nil {
			return fmt.Errorf("removing container %s: %w", rec.Container.ID, err)
		}
		fmt.Printf("Removed container %s\n", rec.Container.ID)
	}

	if err := store.MarkFailed(taskID); err != nil {
		return fmt.Errorf("updating registry: %w", err)
	}
	fmt.Printf("Marked %s failed\n", store.Key(taskID))
	return nil
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/swell-sh/swell/internal/container"
	"github.com/swell-sh/swell/internal/proc"
	"github.com/swell-sh/swell/internal/registry"
	"github.com/swell-sh/swell/internal/task"
)

var registerCmd = &cobra.Command{
	Use:   "register <task-id>",
	Short: "Record a spawned worker in the process registry",
	Long: `Register a worker the caller has already spawned. Native workers are
tracked by pid: the process group and start-time fingerprint are
captured at registration so the watchdog can tell the original process
from a reused pid. Container workers are tracked by container id.

Exactly one of --pid or --container-id must be given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var (
	registerCommand     string
	registerRole        string
	registerRules       []string
	registerPID         int
	registerContainerID string
)

func init() {
	registerCmd.Flags().StringVar(&registerCommand, "command", "", "command line the worker is running (required)")
	registerCmd.Flags().StringVar(&registerRole, "role", task.DefaultRole, "worker role")
	registerCmd.Flags().StringSliceVar(&registerRules, "rules", nil, "rule ids that apply to the task")
	registerCmd.Flags().IntVar(&registerPID, "pid", 0, "pid of a native worker")
	registerCmd.Flags().StringVar(&registerContainerID, "container-id", "", "id of a container worker")
	_ = registerCmd.MarkFlagRequired("command")
	registerCmd.MarkFlagsMutuallyExclusive("pid", "container-id")
	registerCmd.MarkFlagsOneRequired("pid", "container-id")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	taskID := args[0]
	rec := registry.ProcessRecord{
		Command:   registerCommand,
		Role:      registerRole,
		Rules:     registerRules,
		Status:    registry.StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	if registerPID > 0 {
		backend := proc.NewBackend()
		startTime, err := backend.StartTime(registerPID)
		if err != nil {
			return fmt.Errorf("pid %d is not running: %w", registerPID, err)
		}
		pgid, err := unix.Getpgid(registerPID)
		if err != nil {
			return fmt.Errorf("reading process group of pid %d: %w", registerPID, err)
		}
		rec.Mode = registry.ModeNative
		rec.Native = &registry.NativeInfo{
			PID:       registerPID,
			PGID:      pgid,
			StartTime: startTime,
		}
	} else {
		rec.Mode = registry.ModeContainer
		rec.Container = &registry.ContainerInfo{
			ID:   registerContainerID,
			Name: container.ContainerName(taskID),
			Limits: registry.Limits{
				Memory: cfg.Worker.MemoryLimit,
				CPU:    cfg.Worker.CPULimit,
			},
		}
	}

	if err := store.Register(taskID, rec); err != nil {
		return fmt.Errorf("registering %s: %w", taskID, err)
	}
	fmt.Printf("Registered %s (%s)\n", store.Key(taskID), rec.Mode)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/config"
	"github.com/swell-sh/swell/internal/container"
	"github.com/swell-sh/swell/internal/registry"
	"github.com/swell-sh/swell/internal/task"
)

var startCmd = &cobra.Command{
	Use:   "start <task-id> -- <command> [args...]",
	Short: "Start a container worker and register it",
	Long: `Launch the given command in a detached worker container with the
configured image and resource limits, mounting the current directory as
the workspace, and record the container in the process registry so the
watchdog supervises it from the first sweep.

Native workers are spawned by the caller and recorded with
'swell register --pid'; start covers the container mode.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runStart,
}

var (
	startImage  string
	startMemory string
	startCPU    string
	startRole   string
	startRules  []string
)

func init() {
	startCmd.Flags().StringVar(&startImage, "image", "", "container image (default from config)")
	startCmd.Flags().StringVar(&startMemory, "memory", "", "memory limit, e.g. 512m (default from config)")
	startCmd.Flags().StringVar(&startCPU, "cpu", "", "cpu limit, e.g. 1.0 (default from config)")
	startCmd.Flags().StringVar(&startRole, "role", task.DefaultRole, "worker role")
	startCmd.Flags().StringSliceVar(&startRules, "rules", nil, "rule ids that apply to the task")
	rootCmd.AddCommand(startCmd)
}

// startOptions merges worker config defaults with command-line overrides.
func startOptions(cfg *config.Config, workDir string) container.StartOptions {
	opts := container.StartOptions{
		Image:       cfg.Worker.Image,
		WorkDir:     workDir,
		MemoryLimit: cfg.Worker.MemoryLimit,
		CPULimit:    cfg.Worker.CPULimit,
	}
	if startImage != "" {
		opts.Image = startImage
	}
	if startMemory != "" {
		opts.MemoryLimit = startMemory
	}
	if startCPU != "" {
		opts.CPULimit = startCPU
	}
	return opts
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	if !container.Available() {
		return fmt.Errorf("no container runtime on PATH")
	}
	client, err := container.NewClient()
	if err != nil {
		return err
	}

	taskID := args[0]
	command := args[1:]
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	opts := startOptions(cfg, cwd)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Watchdog.InspectTimeout())
	defer cancel()
	containerID, err := client.Start(ctx, taskID, command, opts)
	if err != nil {
		return fmt.Errorf("starting container for %s: %w", taskID, err)
	}

	rec := registry.ProcessRecord{
		Mode:      registry.ModeContainer,
		Command:   strings.Join(command, " "),
		Role:      startRole,
		Rules:     startRules,
		Status:    registry.StatusRunning,
		StartedAt: time.Now().UTC(),
		Container: &registry.ContainerInfo{
			ID:   containerID,
			Name: container.ContainerName(taskID),
			Limits: registry.Limits{
				Memory: opts.MemoryLimit,
				CPU:    opts.CPULimit,
			},
		},
	}
	if err := store.Register(taskID, rec); err != nil {
		// The container is up but untracked; remove it so nothing leaks.
		_ = client.Remove(context.Background(), containerID)
		return fmt.Errorf("registering %s: %w", taskID, err)
	}

	fmt.Printf("Started %s in container %s (%s)\n", store.Key(taskID), containerID, opts.Image)
	return nil
}

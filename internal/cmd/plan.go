package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/plan"
	"github.com/swell-sh/swell/internal/task"
)

var planCmd = &cobra.Command{
	Use:   "plan [tasks-file]",
	Short: "Build a wave execution plan from a markdown task list",
	Long: `Parse the task list, resolve explicit and file-lock dependencies, and
group tasks into conflict-free waves. The plan is written as JSON so the
run command and external agents can consume it.

Tasks in the same wave never share a file lock and never depend on each
other; a dependency always lands in a strictly earlier wave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

var (
	planOutput  string
	planPhaseID string
)

func init() {
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "plan file location (default from config)")
	planCmd.Flags().StringVar(&planPhaseID, "phase-id", "", "phase identifier recorded in the plan (default from config)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tasksFile := cfg.Paths.TasksFile
	if len(args) == 1 {
		tasksFile = args[0]
	}
	output := cfg.Paths.PlanFile
	if planOutput != "" {
		output = planOutput
	}

	tasks, err := task.ParseFile(tasksFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", tasksFile, err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("%s contains no tasks", tasksFile)
	}

	phaseID := cfg.Planner.PhaseID
	if planPhaseID != "" {
		phaseID = planPhaseID
	}

	p, err := plan.NewPlanner(phaseID).Plan(tasks)
	if err != nil {
		var perr *plan.PlanningError
		if errors.As(err, &perr) {
			return fmt.Errorf("planning failed: %w\n\ncheck these tasks for dependency cycles or references to unknown tasks", err)
		}
		return err
	}

	if err := plan.Save(p, output); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}

	fmt.Printf("Planned %d task(s) into %d wave(s) -> %s\n", p.TaskCount(), len(p.Waves), output)
	for _, w := range p.Waves {
		fmt.Printf("  Wave %d [%s]: %s\n", w.ID, w.Strategy, strings.Join(w.TaskIDs(), ", "))
	}
	return nil
}

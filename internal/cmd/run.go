package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/executor"
	"github.com/swell-sh/swell/internal/gitops"
	"github.com/swell-sh/swell/internal/plan"
	"github.com/swell-sh/swell/internal/policy"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a saved plan wave by wave with checkpoints",
	Long: `Drive the saved execution plan: announce each wave, wait for its tasks
to be checked off in the task list, then checkpoint — verify completion,
append the wave to the progress log, validate the changed files against
the policy rules, and commit.

The first failed wave halts the run; checkpoints already committed stay
committed, so a re-run resumes from a consistent state.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runPlanFile string
	runNoGit    bool
)

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "plan file location (default from config)")
	runCmd.Flags().BoolVar(&runNoGit, "no-git", false, "skip the checkpoint commit step")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	planFile := cfg.Paths.PlanFile
	if runPlanFile != "" {
		planFile = runPlanFile
	}
	p, err := plan.Load(planFile)
	if err != nil {
		return fmt.Errorf("loading plan from %s (run `swell plan` first): %w", planFile, err)
	}
	if !cfg.Executor.Checkpoint {
		for i := range p.Waves {
			p.Waves[i].Checkpoint = false
		}
	}

	validator, err := policy.LoadValidator(cfg.Paths.PolicyFile)
	if err != nil {
		return fmt.Errorf("loading policy rules: %w", err)
	}

	opts := []executor.Option{
		executor.WithLogger(log),
		executor.WithPollInterval(cfg.Executor.PollInterval()),
		executor.WithWaveTimeout(cfg.Executor.WaveTimeout()),
		executor.WithProgressFile(cfg.Paths.ProgressFile),
		executor.WithPolicyValidator(validator),
	}
	if !runNoGit {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		opts = append(opts, executor.WithGit(gitops.New(cwd)))
	}

	source := executor.NewTaskFileSource(cfg.Paths.TasksFile)
	e := executor.New(p, source, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Running plan %s: %d wave(s), %d task(s)\n", p.PlanID, len(p.Waves), p.TaskCount())
	if err := e.Run(ctx); err != nil {
		var verr *executor.VerificationError
		var perr *executor.PolicyError
		switch {
		case errors.As(err, &verr), errors.As(err, &perr):
			return err
		case errors.Is(err, context.Canceled):
			fmt.Println("Run interrupted; completed checkpoints are preserved")
			return nil
		default:
			return err
		}
	}

	fmt.Println("All waves complete")
	return nil
}

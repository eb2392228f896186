package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/container"
	"github.com/swell-sh/swell/internal/proc"
	"github.com/swell-sh/swell/internal/watchdog"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run one reconciliation sweep and print the findings",
	Long: `A single watchdog sweep: orphans are marked failed, zombies are reaped,
and live workers are sampled for CPU and memory. Prints the full report
and exits.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
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

	report, err := w.Sweep(ctx)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

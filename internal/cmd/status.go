package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/tui"
	"github.com/swell-sh/swell/internal/watchdog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered workers grouped by state",
	Long: `Rehydrate the process registry and print every registered worker grouped
by status — running, completed, failed — with elapsed time and process or
container details. With --watch, refresh the view live until quit.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusWatch    bool
	statusInterval time.Duration
)

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "refresh the view continuously")
	statusCmd.Flags().DurationVar(&statusInterval, "refresh", 2*time.Second, "watch refresh interval")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	if statusWatch {
		return tui.Run(store, statusInterval)
	}

	doc, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	fmt.Print(watchdog.BuildDigest(doc, time.Now().UTC()).Render())
	return nil
}

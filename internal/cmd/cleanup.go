package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old terminal records from the registry",
	Long: `Delete completed and failed records older than the retention window.
Running records are never touched, whatever their age.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var cleanupDays int

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 7, "remove terminal records older than this many days")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if cleanupDays < 0 {
		return fmt.Errorf("--days must be non-negative, got %d", cleanupDays)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	removed, err := store.Cleanup(time.Duration(cleanupDays) * 24 * time.Hour)
	if err != nil {
		return fmt.Errorf("cleaning registry: %w", err)
	}
	if len(removed) == 0 {
		fmt.Println("Nothing to remove")
		return nil
	}
	fmt.Printf("Removed %d record(s):\n", len(removed))
	for _, key := range removed {
		fmt.Printf("  %s\n", key)
	}
	return nil
}

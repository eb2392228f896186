package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/registry"
)

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a registered worker completed",
	Long: `Record that a worker finished its task. This is the sanctioned path for
whoever performed the work to move a record from running to completed;
without it the watchdog would eventually declare the exited worker an
orphan and mark it failed.

Completed is terminal: a completed record is never resumed, and if its
backing process or container is later found still alive the watchdog
reaps it as a zombie.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	taskID := args[0]
	if err := store.MarkCompleted(taskID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("no record for %s in %s", store.Key(taskID), store.Path())
		}
		return fmt.Errorf("marking %s completed: %w", taskID, err)
	}
	fmt.Printf("Marked %s completed\n", store.Key(taskID))
	return nil
}

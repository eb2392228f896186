package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/swell-sh/swell/internal/registry"
	"github.com/swell-sh/swell/internal/watchdog"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the process registry",
	Long: `Print aggregate counts from the process registry: totals per status,
per execution mode, and the longest-running active worker.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var statsJSON bool

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	doc, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	now := time.Now().UTC()
	digest := watchdog.BuildDigest(doc, now)

	native, containers := 0, 0
	var longestKey string
	var longest time.Duration
	for key, rec := range doc.Tasks {
		switch rec.Mode {
		case registry.ModeNative:
			native++
		case registry.ModeContainer:
			containers++
		}
		if rec.Status == registry.StatusRunning {
			if elapsed := rec.Elapsed(now); elapsed > longest {
				longest = elapsed
				longestKey = key
			}
		}
	}

	if statsJSON {
		fmt.Printf(`{
  "registry": "%s",
  "total": %d,
  "running": %d,
  "completed": %d,
  "failed": %d,
  "native": %d,
  "container": %d
}
`,
			store.Path(),
			digest.Total(),
			len(digest.Running),
			len(digest.Completed),
			len(digest.Failed),
			native,
			containers,
		)
		return nil
	}

	fmt.Println("REGISTRY SUMMARY")
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Registry: %s\n", store.Path())
	fmt.Printf("Total: %d (%d native, %d container)\n", digest.Total(), native, containers)
	fmt.Printf("Running: %d  Completed: %d  Failed: %d\n",
		len(digest.Running), len(digest.Completed), len(digest.Failed))
	if longestKey != "" {
		fmt.Printf("Longest running: %s (%s)\n", longestKey, longest.Round(time.Second))
	}
	return nil
}

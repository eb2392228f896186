package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/swell-sh/swell/internal/config"
	"github.com/swell-sh/swell/internal/logging"
	"github.com/swell-sh/swell/internal/registry"
)

var rootCmd = &cobra.Command{
	Use:   "swell",
	Short: "Wave scheduler and process watchdog for autonomous coding agents",
	Long: `Swell turns a markdown task list into a conflict-free execution plan,
drives it wave by wave with checkpointed progress, and supervises the
worker processes in a durable registry so orphans and zombies are
reaped across restarts.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/swell/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/swell")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SWELL")
	// SWELL_WATCHDOG_INTERVAL_SECONDS maps to watchdog.interval_seconds
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig resolves and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the shared file logger from the configuration.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	log, err := logging.New(cfg.Paths.LogDir, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return log, nil
}

// openRegistry validates the configured registry path and opens the store.
func openRegistry(cfg *config.Config) (*registry.Store, error) {
	path, err := registry.ValidatePath(cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("registry path %q: %w", cfg.Registry.Path, err)
	}
	return registry.NewStore(path, cfg.Registry.Namespace), nil
}

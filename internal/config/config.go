// Package config defines the swell configuration schema and its viper
// bindings. Configuration is read from a YAML file, environment variables
// prefixed with SWELL_, and command-line flags, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete swell configuration.
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Planner  PlannerConfig  `mapstructure:"planner"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Watchdog WatchdogConfig `mapstructure:"watchdog"`
	Registry RegistryConfig `mapstructure:"registry"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PathsConfig controls where swell reads and writes its documents.
type PathsConfig struct {
	// TasksFile is the linear task list document (default: "tasks.md").
	TasksFile string `mapstructure:"tasks_file"`
	// PlanFile is where the execution plan is written (default: ".swell/execution_plan.json").
	PlanFile string `mapstructure:"plan_file"`
	// ProgressFile is the durable per-wave progress log (default: ".swell/progress.md").
	ProgressFile string `mapstructure:"progress_file"`
	// PolicyFile is the policy rules document; empty disables checkpoint
	// validation (default: ".swell/policy.yaml").
	PolicyFile string `mapstructure:"policy_file"`
	// LogDir is where debug logs are written; empty logs to stderr.
	LogDir string `mapstructure:"log_dir"`
}

// PlannerConfig controls wave planning behavior.
type PlannerConfig struct {
	// PhaseID identifies the planning phase recorded in the plan document.
	PhaseID string `mapstructure:"phase_id"`
}

// ExecutorConfig controls wave execution and the checkpoint protocol.
type ExecutorConfig struct {
	// PollIntervalSeconds is how often the completion-marker source is
	// re-scanned while waiting for a wave (default: 5).
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// WaveTimeoutMinutes bounds how long a single wave may stay incomplete
	// before the run halts; 0 waits forever (default: 0).
	WaveTimeoutMinutes int `mapstructure:"wave_timeout_minutes"`
	// Checkpoint enables the post-wave checkpoint protocol (default: true).
	Checkpoint bool `mapstructure:"checkpoint"`
}

// WatchdogConfig controls the reconciliation loop.
type WatchdogConfig struct {
	// IntervalSeconds is the reconciliation cadence (default: 300).
	IntervalSeconds int `mapstructure:"interval_seconds"`
	// InspectTimeoutSeconds bounds a single liveness/usage inspection so one
	// unresponsive container cannot stall the sweep (default: 10).
	InspectTimeoutSeconds int `mapstructure:"inspect_timeout_seconds"`
	// MaxConcurrentInspections bounds sweep fan-out (default: 8).
	MaxConcurrentInspections int `mapstructure:"max_concurrent_inspections"`
}

// RegistryConfig controls the durable process registry.
type RegistryConfig struct {
	// Path is the registry document location (default: ".swell/process_registry.json").
	Path string `mapstructure:"path"`
	// Namespace qualifies task ids so multiple tools can share one registry
	// file without collision (default: "swell").
	Namespace string `mapstructure:"namespace"`
}

// WorkerConfig controls defaults for container-mode workers.
type WorkerConfig struct {
	// Image is the container image for container-mode tasks.
	Image string `mapstructure:"image"`
	// MemoryLimit is the container memory limit, e.g. "512m".
	MemoryLimit string `mapstructure:"memory_limit"`
	// CPULimit is the container CPU limit, e.g. "1.0".
	CPULimit string `mapstructure:"cpu_limit"`
}

// LoggingConfig controls debug logging behavior.
type LoggingConfig struct {
	// Level is the log level: DEBUG, INFO, WARN, ERROR (default: INFO).
	Level string `mapstructure:"level"`
}

// PollInterval returns the executor poll interval as a time.Duration.
func (c *ExecutorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// WaveTimeout returns the wave timeout as a time.Duration (0 means unbounded).
func (c *ExecutorConfig) WaveTimeout() time.Duration {
	return time.Duration(c.WaveTimeoutMinutes) * time.Minute
}

// Interval returns the reconciliation cadence as a time.Duration.
func (c *WatchdogConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// InspectTimeout returns the per-record inspection bound as a time.Duration.
func (c *WatchdogConfig) InspectTimeout() time.Duration {
	return time.Duration(c.InspectTimeoutSeconds) * time.Second
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			TasksFile:    "tasks.md",
			PlanFile:     filepath.Join(".swell", "execution_plan.json"),
			ProgressFile: filepath.Join(".swell", "progress.md"),
			PolicyFile:   filepath.Join(".swell", "policy.yaml"),
			LogDir:       "",
		},
		Planner: PlannerConfig{
			PhaseID: "default",
		},
		Executor: ExecutorConfig{
			PollIntervalSeconds: 5,
			WaveTimeoutMinutes:  0,
			Checkpoint:          true,
		},
		Watchdog: WatchdogConfig{
			IntervalSeconds:          300,
			InspectTimeoutSeconds:    10,
			MaxConcurrentInspections: 8,
		},
		Registry: RegistryConfig{
			Path:      filepath.Join(".swell", "process_registry.json"),
			Namespace: "swell",
		},
		Worker: WorkerConfig{
			Image:       "python:3.11-slim",
			MemoryLimit: "512m",
			CPULimit:    "1.0",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("paths.tasks_file", defaults.Paths.TasksFile)
	viper.SetDefault("paths.plan_file", defaults.Paths.PlanFile)
	viper.SetDefault("paths.progress_file", defaults.Paths.ProgressFile)
	viper.SetDefault("paths.policy_file", defaults.Paths.PolicyFile)
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)

	viper.SetDefault("planner.phase_id", defaults.Planner.PhaseID)

	viper.SetDefault("executor.poll_interval_seconds", defaults.Executor.PollIntervalSeconds)
	viper.SetDefault("executor.wave_timeout_minutes", defaults.Executor.WaveTimeoutMinutes)
	viper.SetDefault("executor.checkpoint", defaults.Executor.Checkpoint)

	viper.SetDefault("watchdog.interval_seconds", defaults.Watchdog.IntervalSeconds)
	viper.SetDefault("watchdog.inspect_timeout_seconds", defaults.Watchdog.InspectTimeoutSeconds)
	viper.SetDefault("watchdog.max_concurrent_inspections", defaults.Watchdog.MaxConcurrentInspections)

	viper.SetDefault("registry.path", defaults.Registry.Path)
	viper.SetDefault("registry.namespace", defaults.Registry.Namespace)

	viper.SetDefault("worker.image", defaults.Worker.Image)
	viper.SetDefault("worker.memory_limit", defaults.Worker.MemoryLimit)
	viper.SetDefault("worker.cpu_limit", defaults.Worker.CPULimit)

	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load reads the configuration from viper into a Config struct and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "swell")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".swell"
	}
	return filepath.Join(home, ".config", "swell")
}

package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/swell-sh/swell/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "watchdog.interval_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateExecutor()...)
	errors = append(errors, c.validateWatchdog()...)
	errors = append(errors, c.validateRegistry()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if c.Paths.TasksFile == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.tasks_file",
			Value:   c.Paths.TasksFile,
			Message: "must not be empty",
		})
	}
	if c.Paths.PlanFile == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.plan_file",
			Value:   c.Paths.PlanFile,
			Message: "must not be empty",
		})
	}
	if c.Paths.ProgressFile == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.progress_file",
			Value:   c.Paths.ProgressFile,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateExecutor() []ValidationError {
	var errors []ValidationError

	if c.Executor.PollIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "executor.poll_interval_seconds",
			Value:   c.Executor.PollIntervalSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Executor.WaveTimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.wave_timeout_minutes",
			Value:   c.Executor.WaveTimeoutMinutes,
			Message: "must be 0 (unbounded) or positive",
		})
	}

	return errors
}

func (c *Config) validateWatchdog() []ValidationError {
	var errors []ValidationError

	if c.Watchdog.IntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "watchdog.interval_seconds",
			Value:   c.Watchdog.IntervalSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Watchdog.InspectTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "watchdog.inspect_timeout_seconds",
			Value:   c.Watchdog.InspectTimeoutSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Watchdog.MaxConcurrentInspections < 1 {
		errors = append(errors, ValidationError{
			Field:   "watchdog.max_concurrent_inspections",
			Value:   c.Watchdog.MaxConcurrentInspections,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRegistry() []ValidationError {
	var errors []ValidationError

	if c.Registry.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "registry.path",
			Value:   c.Registry.Path,
			Message: "must not be empty",
		})
	}
	if c.Registry.Namespace == "" || strings.Contains(c.Registry.Namespace, ":") {
		errors = append(errors, ValidationError{
			Field:   "registry.namespace",
			Value:   c.Registry.Namespace,
			Message: "must be non-empty and must not contain ':'",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}

	return errors
}

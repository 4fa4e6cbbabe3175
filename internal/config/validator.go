package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "store.max_managed")
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

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidPolicies returns the list of valid capture policies
func ValidPolicies() []string {
	return []string{"rethrow", "terminate"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateANR()...)
	errors = append(errors, c.validateCapture()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	ceilings := map[string]int{
		"store.max_managed": c.Store.MaxManaged,
		"store.max_native":  c.Store.MaxNative,
		"store.max_anr":     c.Store.MaxANR,
		"store.max_trace":   c.Store.MaxTrace,
	}
	for field, value := range ceilings {
		if value < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   value,
				Message: "must be non-negative",
			})
		}
	}

	if c.Store.PlaceholderCount < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.placeholder_count",
			Value:   c.Store.PlaceholderCount,
			Message: "must be non-negative",
		})
	}
	if c.Store.PlaceholderSizeKB < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.placeholder_size_kb",
			Value:   c.Store.PlaceholderSizeKB,
			Message: "must be non-negative",
		})
	}
	if c.Store.MaintainDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.maintain_delay_ms",
			Value:   c.Store.MaintainDelayMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateANR validates the ANRConfig
func (c *Config) validateANR() []ValidationError {
	var errors []ValidationError

	if c.ANR.DebounceSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "anr.debounce_seconds",
			Value:   c.ANR.DebounceSeconds,
			Message: "must be at least 1",
		})
	}
	if c.ANR.Enabled && c.ANR.TraceDir == "" {
		errors = append(errors, ValidationError{
			Field:   "anr.trace_dir",
			Value:   c.ANR.TraceDir,
			Message: "required when anr.enabled is true",
		})
	}

	return errors
}

// validateCapture validates the CaptureConfig
func (c *Config) validateCapture() []ValidationError {
	var errors []ValidationError

	if c.Capture.Policy != "" && !slices.Contains(ValidPolicies(), c.Capture.Policy) {
		errors = append(errors, ValidationError{
			Field:   "capture.policy",
			Value:   c.Capture.Policy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidPolicies(), ", ")),
		})
	}
	if c.Capture.ThreadDumpMax < 0 {
		errors = append(errors, ValidationError{
			Field:   "capture.thread_dump_max",
			Value:   c.Capture.ThreadDumpMax,
			Message: "must be non-negative",
		})
	}
	for _, pattern := range c.Capture.ThreadAllowlist {
		if _, err := regexp.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "capture.thread_allowlist",
				Value:   pattern,
				Message: "must be a valid regular expression",
			})
		}
	}
	for field, value := range map[string]int{
		"capture.logcat_main_lines":   c.Capture.LogcatMainLines,
		"capture.logcat_system_lines": c.Capture.LogcatSystemLines,
		"capture.logcat_events_lines": c.Capture.LogcatEventsLines,
	} {
		if value < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   value,
				Message: "must be non-negative",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/crashworks/tombstone/internal/artifact"
	"github.com/crashworks/tombstone/internal/report"
)

// Config represents the complete tombstone configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Store   StoreConfig   `mapstructure:"store"`
	ANR     ANRConfig     `mapstructure:"anr"`
	Capture CaptureConfig `mapstructure:"capture"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AppConfig identifies the application the artifacts belong to
type AppConfig struct {
	// ID is the application identifier stamped into every artifact header
	ID string `mapstructure:"id"`
	// Version is the application version stamped into artifact names and headers
	Version string `mapstructure:"version"`
	// ProcessName overrides the detected process name (default: executable name)
	ProcessName string `mapstructure:"process_name"`
}

// StoreConfig controls the artifact directory, retention ceilings and the
// placeholder pool
type StoreConfig struct {
	// Dir is the artifact directory; empty selects a "tombstone" directory
	// under the user cache dir
	Dir string `mapstructure:"dir"`
	// MaxManaged is the retention ceiling for managed-crash artifacts (0 = keep none)
	MaxManaged int `mapstructure:"max_managed"`
	// MaxNative is the retention ceiling for native-crash artifacts
	MaxNative int `mapstructure:"max_native"`
	// MaxANR is the retention ceiling for hang artifacts
	MaxANR int `mapstructure:"max_anr"`
	// MaxTrace is the retention ceiling for trace artifacts
	MaxTrace int `mapstructure:"max_trace"`
	// PlaceholderCount is the clean placeholder pool target size (0 disables the pool)
	PlaceholderCount int `mapstructure:"placeholder_count"`
	// PlaceholderSizeKB is the minimum pre-allocated placeholder size in KiB
	PlaceholderSizeKB int `mapstructure:"placeholder_size_kb"`
	// MaintainDelayMs postpones startup maintenance off the launch path (in milliseconds)
	MaintainDelayMs int `mapstructure:"maintain_delay_ms"`
}

// MaintainDelay returns the startup maintenance delay as a time.Duration
func (c *StoreConfig) MaintainDelay() time.Duration {
	return time.Duration(c.MaintainDelayMs) * time.Millisecond
}

// Ceilings returns the per-kind retention ceilings keyed by artifact kind
func (c *StoreConfig) Ceilings() map[artifact.Kind]int {
	return map[artifact.Kind]int{
		artifact.KindManaged: c.MaxManaged,
		artifact.KindNative:  c.MaxNative,
		artifact.KindANR:     c.MaxANR,
		artifact.KindTrace:   c.MaxTrace,
	}
}

// ANRConfig controls the hang-trace correlator
type ANRConfig struct {
	// Enabled turns hang detection on (default: true)
	Enabled bool `mapstructure:"enabled"`
	// TraceDir is the shared directory the OS writes hang traces into
	TraceDir string `mapstructure:"trace_dir"`
	// Marker selects relevant files within TraceDir by substring (default: "trace")
	Marker string `mapstructure:"marker"`
	// DebounceSeconds is the minimum time between two accepted hang
	// detections; it doubles as the trace timestamp tolerance (default: 15)
	DebounceSeconds int `mapstructure:"debounce_seconds"`
	// CheckProcessState gates trace parsing behind a process liveness probe
	CheckProcessState bool `mapstructure:"check_process_state"`
}

// DebounceWindow returns the debounce window as a time.Duration
func (c *ANRConfig) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

// CaptureConfig controls the unhandled-failure pipeline and the diagnostic
// sections appended to every artifact
type CaptureConfig struct {
	// Policy is what happens after capture: "rethrow" hands the failure to
	// the previously-installed hook, "terminate" exits the process
	Policy string `mapstructure:"policy"`

	// DumpAllThreads enables the other-thread stack section
	DumpAllThreads bool `mapstructure:"dump_all_threads"`
	// ThreadDumpMax caps how many other threads are dumped (0 = no cap)
	ThreadDumpMax int `mapstructure:"thread_dump_max"`
	// ThreadAllowlist restricts the dump to threads whose full name matches
	// one of these regular expressions (empty = all threads)
	ThreadAllowlist []string `mapstructure:"thread_allowlist"`

	// LogcatMainLines is the number of main log buffer lines to excerpt
	LogcatMainLines int `mapstructure:"logcat_main_lines"`
	// LogcatSystemLines is the number of system log buffer lines to excerpt
	LogcatSystemLines int `mapstructure:"logcat_system_lines"`
	// LogcatEventsLines is the number of events log buffer lines to excerpt
	LogcatEventsLines int `mapstructure:"logcat_events_lines"`
	// DumpDescriptors appends the open file descriptor listing
	DumpDescriptors bool `mapstructure:"dump_descriptors"`
	// DumpNetwork appends the network state snapshot
	DumpNetwork bool `mapstructure:"dump_network"`
}

// PopulateOptions converts the capture settings into report options
func (c *CaptureConfig) PopulateOptions() report.Options {
	return report.Options{
		LogcatMainLines:   c.LogcatMainLines,
		LogcatSystemLines: c.LogcatSystemLines,
		LogcatEventsLines: c.LogcatEventsLines,
		DumpDescriptors:   c.DumpDescriptors,
		DumpNetwork:       c.DumpNetwork,
	}
}

// LoggingConfig controls the library's own diagnostic logging
type LoggingConfig struct {
	// Enabled controls whether diagnostic logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path; empty logs to stderr
	File string `mapstructure:"file"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		App: AppConfig{
			ID:          "",
			Version:     "0.0.0",
			ProcessName: "", // Empty means detect from the executable
		},
		Store: StoreConfig{
			Dir:               "", // Empty means use the user cache dir
			MaxManaged:        10,
			MaxNative:         10,
			MaxANR:            10,
			MaxTrace:          10,
			PlaceholderCount:  0,
			PlaceholderSizeKB: 128,
			MaintainDelayMs:   5000,
		},
		ANR: ANRConfig{
			Enabled:           true,
			TraceDir:          "/data/anr",
			Marker:            "trace",
			DebounceSeconds:   15,
			CheckProcessState: true,
		},
		Capture: CaptureConfig{
			Policy:            "rethrow",
			DumpAllThreads:    true,
			ThreadDumpMax:     0,
			ThreadAllowlist:   []string{},
			LogcatMainLines:   200,
			LogcatSystemLines: 50,
			LogcatEventsLines: 50,
			DumpDescriptors:   true,
			DumpNetwork:       true,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			File:    "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// App defaults
	viper.SetDefault("app.id", defaults.App.ID)
	viper.SetDefault("app.version", defaults.App.Version)
	viper.SetDefault("app.process_name", defaults.App.ProcessName)

	// Store defaults
	viper.SetDefault("store.dir", defaults.Store.Dir)
	viper.SetDefault("store.max_managed", defaults.Store.MaxManaged)
	viper.SetDefault("store.max_native", defaults.Store.MaxNative)
	viper.SetDefault("store.max_anr", defaults.Store.MaxANR)
	viper.SetDefault("store.max_trace", defaults.Store.MaxTrace)
	viper.SetDefault("store.placeholder_count", defaults.Store.PlaceholderCount)
	viper.SetDefault("store.placeholder_size_kb", defaults.Store.PlaceholderSizeKB)
	viper.SetDefault("store.maintain_delay_ms", defaults.Store.MaintainDelayMs)

	// ANR defaults
	viper.SetDefault("anr.enabled", defaults.ANR.Enabled)
	viper.SetDefault("anr.trace_dir", defaults.ANR.TraceDir)
	viper.SetDefault("anr.marker", defaults.ANR.Marker)
	viper.SetDefault("anr.debounce_seconds", defaults.ANR.DebounceSeconds)
	viper.SetDefault("anr.check_process_state", defaults.ANR.CheckProcessState)

	// Capture defaults
	viper.SetDefault("capture.policy", defaults.Capture.Policy)
	viper.SetDefault("capture.dump_all_threads", defaults.Capture.DumpAllThreads)
	viper.SetDefault("capture.thread_dump_max", defaults.Capture.ThreadDumpMax)
	viper.SetDefault("capture.thread_allowlist", defaults.Capture.ThreadAllowlist)
	viper.SetDefault("capture.logcat_main_lines", defaults.Capture.LogcatMainLines)
	viper.SetDefault("capture.logcat_system_lines", defaults.Capture.LogcatSystemLines)
	viper.SetDefault("capture.logcat_events_lines", defaults.Capture.LogcatEventsLines)
	viper.SetDefault("capture.dump_descriptors", defaults.Capture.DumpDescriptors)
	viper.SetDefault("capture.dump_network", defaults.Capture.DumpNetwork)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
}

// Load reads the configuration from viper into a Config struct and validates it
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

// ResolveStoreDir returns the artifact directory, falling back to a
// "tombstone" directory under the user cache dir when unset
func (c *StoreConfig) ResolveStoreDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "tombstone"
	}
	return filepath.Join(cache, "tombstone")
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tombstone")
	}
	// Fall back to ~/.config/tombstone
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tombstone"
	}
	return filepath.Join(home, ".config", "tombstone")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

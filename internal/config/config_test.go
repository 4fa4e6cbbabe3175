package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/crashworks/tombstone/internal/artifact"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Store.MaxManaged != 10 {
		t.Errorf("expected default max_managed 10, got %d", cfg.Store.MaxManaged)
	}
	if cfg.Store.PlaceholderCount != 0 {
		t.Errorf("expected placeholder pool disabled by default, got %d", cfg.Store.PlaceholderCount)
	}
	if !cfg.ANR.Enabled {
		t.Error("expected anr enabled by default")
	}
	if cfg.ANR.DebounceSeconds != 15 {
		t.Errorf("expected default debounce 15s, got %d", cfg.ANR.DebounceSeconds)
	}
	if cfg.Capture.Policy != "rethrow" {
		t.Errorf("expected default policy rethrow, got %q", cfg.Capture.Policy)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults load and validate", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()
		SetDefaults()
		viper.Set("anr.trace_dir", "/data/anr")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Store.MaxANR != 10 {
			t.Errorf("expected max_anr 10, got %d", cfg.Store.MaxANR)
		}
	})

	t.Run("config file overrides defaults", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()
		SetDefaults()

		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
store:
  max_managed: 3
  placeholder_count: 5
anr:
  trace_dir: /data/anr
  debounce_seconds: 30
capture:
  policy: terminate
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			t.Fatalf("failed to read config: %v", err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Store.MaxManaged != 3 {
			t.Errorf("expected max_managed 3, got %d", cfg.Store.MaxManaged)
		}
		if cfg.Store.PlaceholderCount != 5 {
			t.Errorf("expected placeholder_count 5, got %d", cfg.Store.PlaceholderCount)
		}
		if cfg.ANR.DebounceWindow() != 30*time.Second {
			t.Errorf("expected 30s debounce, got %v", cfg.ANR.DebounceWindow())
		}
		if cfg.Capture.Policy != "terminate" {
			t.Errorf("expected policy terminate, got %q", cfg.Capture.Policy)
		}
		// Untouched keys keep their defaults.
		if cfg.Store.MaxNative != 10 {
			t.Errorf("expected default max_native 10, got %d", cfg.Store.MaxNative)
		}
	})

	t.Run("invalid values surface as validation errors", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()
		SetDefaults()
		viper.Set("anr.trace_dir", "/data/anr")
		viper.Set("store.max_managed", -1)
		viper.Set("capture.policy", "shrug")

		if _, err := Load(); err == nil {
			t.Fatal("expected Load to fail validation")
		}
	})
}

func TestStoreConfigHelpers(t *testing.T) {
	cfg := StoreConfig{
		MaxManaged:      1,
		MaxNative:       2,
		MaxANR:          3,
		MaxTrace:        4,
		MaintainDelayMs: 2500,
	}

	ceilings := cfg.Ceilings()
	want := map[artifact.Kind]int{
		artifact.KindManaged: 1,
		artifact.KindNative:  2,
		artifact.KindANR:     3,
		artifact.KindTrace:   4,
	}
	for kind, n := range want {
		if ceilings[kind] != n {
			t.Errorf("ceiling for %v: expected %d, got %d", kind, n, ceilings[kind])
		}
	}

	if cfg.MaintainDelay() != 2500*time.Millisecond {
		t.Errorf("expected 2.5s delay, got %v", cfg.MaintainDelay())
	}
}

func TestPopulateOptions(t *testing.T) {
	cfg := CaptureConfig{
		LogcatMainLines:   200,
		LogcatSystemLines: 50,
		LogcatEventsLines: 50,
		DumpDescriptors:   true,
		DumpNetwork:       false,
	}

	opts := cfg.PopulateOptions()
	if opts.LogcatMainLines != 200 || opts.LogcatSystemLines != 50 || opts.LogcatEventsLines != 50 {
		t.Errorf("logcat line counts not carried over: %+v", opts)
	}
	if !opts.DumpDescriptors {
		t.Error("expected DumpDescriptors true")
	}
	if opts.DumpNetwork {
		t.Error("expected DumpNetwork false")
	}
}

func TestResolveStoreDir(t *testing.T) {
	explicit := StoreConfig{Dir: "/var/crash"}
	if got := explicit.ResolveStoreDir(); got != "/var/crash" {
		t.Errorf("expected explicit dir, got %q", got)
	}

	fallback := StoreConfig{}
	if got := fallback.ResolveStoreDir(); got == "" {
		t.Error("expected a non-empty fallback dir")
	}
}

package tombstone

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crashworks/tombstone/internal/anr"
	"github.com/crashworks/tombstone/internal/config"
	"github.com/crashworks/tombstone/internal/pipeline"
)

type captureRecorder struct {
	mu       sync.Mutex
	captures []struct{ path, emergency string }
}

func (r *captureRecorder) callback(path, emergency string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = append(r.captures, struct{ path, emergency string }{path, emergency})
}

func (r *captureRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.captures)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.App.ID = "com.example.app"
	cfg.App.Version = "1.0.0"
	cfg.App.ProcessName = "com.example.app"
	cfg.Store.Dir = t.TempDir()
	cfg.Store.MaintainDelayMs = 0
	cfg.ANR.TraceDir = t.TempDir()
	cfg.Logging.Enabled = false
	return cfg
}

func TestInit(t *testing.T) {
	t.Run("wires the full engine", func(t *testing.T) {
		rec := &captureRecorder{}
		e, err := Init(testConfig(t), Delegates{}, rec.callback)
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer func() { _ = e.Close() }()

		if e.Handler() == nil {
			t.Error("expected a capture pipeline")
		}
		if e.Correlator() == nil {
			t.Fatal("expected a hang correlator")
		}
		if e.Correlator().State() != anr.StateWatching {
			t.Errorf("expected the correlator to be watching, got %v", e.Correlator().State())
		}
	})

	t.Run("nil config falls back to defaults", func(t *testing.T) {
		// Defaults point at system paths; only validation is exercised.
		cfg := config.Default()
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Fatalf("default config must validate, got %v", config.ValidationErrors(errs))
		}
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.MaxManaged = -1

		if _, err := Init(cfg, Delegates{}, nil); err == nil {
			t.Fatal("expected Init to fail validation")
		}
	})

	t.Run("disabled anr leaves no correlator", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ANR.Enabled = false

		e, err := Init(cfg, Delegates{}, nil)
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer func() { _ = e.Close() }()

		if e.Correlator() != nil {
			t.Error("expected no correlator when anr is disabled")
		}
	})
}

func TestCaptureThroughEngine(t *testing.T) {
	rec := &captureRecorder{}
	cfg := testConfig(t)
	e, err := Init(cfg, Delegates{}, rec.callback)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = e.Close() }()

	e.Handler().Capture(pipeline.ThreadInfo{
		ID:    1,
		Name:  "main",
		Stack: "at main.run(main.go:10)\n",
	}, errors.New("boom"))

	if rec.count() != 1 {
		t.Fatalf("expected 1 capture, got %d", rec.count())
	}
	got := rec.captures[0]
	if got.path == "" {
		t.Fatal("expected an artifact path")
	}

	data, err := os.ReadFile(got.path)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if !strings.Contains(string(data), "Crash type: 'managed'") {
		t.Error("artifact missing the managed header")
	}

	// Firing the pipeline silences the hang correlator for good.
	if e.Correlator().State() != anr.StateSuppressed {
		t.Errorf("expected the correlator suppressed after capture, got %v", e.Correlator().State())
	}
}

func TestHangCaptureThroughEngine(t *testing.T) {
	rec := &captureRecorder{}
	cfg := testConfig(t)
	e, err := Init(cfg, Delegates{}, rec.callback)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = e.Close() }()

	// A trace block for this process, stamped now, dropped into the
	// watched directory; the watcher delivers it to the same callback the
	// pipeline uses.
	content := fmt.Sprintf(`----- pid %d at %s -----
Cmd line: %s
"main" prio=5 tid=1 Blocked
----- end %d -----
`, os.Getpid(), time.Now().Format("2006-01-02 15:04:05"), cfg.App.ProcessName, os.Getpid())
	path := filepath.Join(cfg.ANR.TraceDir, "trace_00")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write trace: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 hang capture, got %d", rec.count())
	}

	rec.mu.Lock()
	got := rec.captures[0]
	rec.mu.Unlock()
	if got.path == "" {
		t.Fatal("expected an artifact path")
	}
	data, err := os.ReadFile(got.path)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if !strings.Contains(string(data), "Crash type: 'anr'") {
		t.Error("artifact missing the anr header")
	}
}

func TestClose(t *testing.T) {
	e, err := Init(testConfig(t), Delegates{}, nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := e.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if e.Correlator().State() != anr.StateSuppressed {
		t.Error("expected the correlator suppressed after Close")
	}
}

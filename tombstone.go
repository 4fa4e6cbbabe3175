// Package tombstone wires the crash-artifact engine together: a retention
// store with a placeholder pool, a hang-trace correlator and an
// unhandled-failure capture pipeline, all driven from one configuration.
//
// Hosts call Init once at startup, install the returned Engine's capture
// pipeline wherever their failure hook lives, and receive every finished
// artifact through the callback.
package tombstone

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crashworks/tombstone/internal/anr"
	"github.com/crashworks/tombstone/internal/config"
	"github.com/crashworks/tombstone/internal/logging"
	"github.com/crashworks/tombstone/internal/pipeline"
	"github.com/crashworks/tombstone/internal/report"
	"github.com/crashworks/tombstone/internal/store"
)

// Callback receives every finished capture: the artifact path (empty when
// no file could be obtained) and the emergency text (empty when it was
// committed to the file).
type Callback = pipeline.Callback

// Delegates re-exports the collaborator hooks a host may provide. Every
// field is optional.
type Delegates = report.Delegates

// Engine holds the wired subsystems for one process.
type Engine struct {
	log        *logging.Logger
	store      *store.Store
	correlator *anr.Correlator
	handler    *pipeline.Handler
}

// Init builds and starts the engine. A nil cfg uses defaults. The store's
// startup maintenance is scheduled in the background; hang watching starts
// immediately when enabled. Init never blocks on filesystem housekeeping.
func Init(cfg *config.Config, delegates Delegates, cb Callback) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		var err error
		log, err = logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to set up logging: %w", err)
		}
	}

	processName := cfg.App.ProcessName
	if processName == "" {
		processName = detectProcessName()
	}
	pid := os.Getpid()

	st := store.New(store.Config{
		Dir:               cfg.Store.ResolveStoreDir(),
		Ceilings:          cfg.Store.Ceilings(),
		PlaceholderTarget: cfg.Store.PlaceholderCount,
		PlaceholderSizeKB: cfg.Store.PlaceholderSizeKB,
		MaintainDelay:     cfg.Store.MaintainDelay(),
	}, log)
	st.Maintain()

	handler := pipeline.New(pipeline.Config{
		PID:             pid,
		ProcessName:     processName,
		AppID:           cfg.App.ID,
		AppVersion:      cfg.App.Version,
		Policy:          policyFromString(cfg.Capture.Policy),
		Populate:        cfg.Capture.PopulateOptions(),
		DumpAllThreads:  cfg.Capture.DumpAllThreads,
		ThreadDumpMax:   cfg.Capture.ThreadDumpMax,
		ThreadAllowlist: cfg.Capture.ThreadAllowlist,
	}, st, delegates, nil, cb, log)

	e := &Engine{log: log, store: st, handler: handler}

	if cfg.ANR.Enabled {
		e.correlator = anr.New(anr.Config{
			WatchDir:          cfg.ANR.TraceDir,
			Marker:            cfg.ANR.Marker,
			PID:               pid,
			ProcessName:       processName,
			AppID:             cfg.App.ID,
			AppVersion:        cfg.App.Version,
			DebounceWindow:    cfg.ANR.DebounceWindow(),
			CheckProcessState: cfg.ANR.CheckProcessState,
			Populate:          cfg.Capture.PopulateOptions(),
		}, st, delegates, anr.Callback(cb), log)

		// Only one capture path runs per failure.
		handler.AddSuppressor(e.correlator)

		if err := e.correlator.Start(); err != nil {
			// Hang watching is best-effort; crash capture still works.
			log.Warn("hang watching unavailable", "error", err)
		}
	}

	log.Info("tombstone initialized", "dir", st.Dir(), "process", processName)
	return e, nil
}

// Handler returns the capture pipeline. Hosts install its Capture method
// as their process-wide failure hook.
func (e *Engine) Handler() *pipeline.Handler {
	return e.handler
}

// Store returns the artifact store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Correlator returns the hang correlator, or nil when hang detection is
// disabled.
func (e *Engine) Correlator() *anr.Correlator {
	return e.correlator
}

// Close stops hang watching and releases the log file. The store needs no
// shutdown; its on-disk state is always consistent.
func (e *Engine) Close() error {
	if e.correlator != nil {
		e.correlator.Suppress()
	}
	return e.log.Close()
}

func policyFromString(s string) pipeline.Policy {
	if s == "terminate" {
		return pipeline.PolicyTerminate
	}
	return pipeline.PolicyRethrow
}

func detectProcessName() string {
	exe, err := os.Executable()
	if err != nil {
		return "unknown"
	}
	return filepath.Base(exe)
}

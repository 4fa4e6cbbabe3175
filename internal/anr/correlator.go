// Package anr watches the shared hang-trace directory the operating system
// writes into when a process stops responding, and extracts the trace
// segment belonging to the current process. The directory holds interleaved
// entries for every process on the device, most of them stale, so detection
// is a correlation problem: right pid, right process name, right time.
package anr

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/crashworks/tombstone/internal/artifact"
	"github.com/crashworks/tombstone/internal/logging"
	"github.com/crashworks/tombstone/internal/report"
	"github.com/crashworks/tombstone/internal/store"
)

// State is the correlator lifecycle. Transitions are Idle -> Watching via
// Start and anything -> Suppressed via Suppress; Suppressed is terminal for
// the life of the process instance.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateSuppressed
)

// DefaultDebounceWindow is the minimum time between two accepted hang
// detections, and doubles as the timestamp tolerance during correlation.
const DefaultDebounceWindow = 15 * time.Second

// Callback receives the result of a capture: the artifact path (empty when
// no file could be obtained) and the emergency text (empty when it was
// committed to the file — the payload is delivered exactly once).
type Callback func(logPath, emergency string)

// Config carries everything the correlator needs.
type Config struct {
	// WatchDir is the shared, OS-populated hang-trace directory.
	WatchDir string
	// Marker selects relevant files within WatchDir by substring.
	// Defaults to "trace".
	Marker string

	PID         int
	ProcessName string
	AppID       string
	AppVersion  string

	// DebounceWindow guards against the OS writing several related files
	// for one underlying event. Defaults to DefaultDebounceWindow.
	DebounceWindow time.Duration

	// CheckProcessState gates expensive parsing behind the ProcessHung
	// delegate when that delegate is available.
	CheckProcessState bool

	// Populate selects the diagnostic sections appended to the artifact.
	Populate report.Options
}

// Correlator implements the hang-trace capture path.
type Correlator struct {
	cfg       Config
	store     *store.Store
	populator *report.Populator
	delegates report.Delegates
	callback  Callback
	log       *logging.Logger

	startTime time.Time
	state     atomic.Int32
	// lastCapture is the unix-nano timestamp of the last accepted capture.
	// The debounce check-then-set runs as a compare-and-swap so two
	// notifications arriving together cannot both pass.
	lastCapture atomic.Int64

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Correlator in the Idle state.
func New(cfg Config, st *store.Store, delegates report.Delegates, cb Callback, log *logging.Logger) *Correlator {
	if log == nil {
		log = logging.NopLogger()
	}
	if cfg.Marker == "" {
		cfg.Marker = "trace"
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.ProcessName == "" {
		cfg.ProcessName = "unknown"
	}

	return &Correlator{
		cfg:       cfg,
		store:     st,
		populator: report.NewPopulator(st, delegates, log),
		delegates: delegates,
		callback:  cb,
		log:       log.WithComponent("anr").With("pid", cfg.PID),
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Correlator) State() State {
	return State(c.state.Load())
}

// Start transitions Idle -> Watching by registering for file notifications
// on the shared trace directory. Notifications are consumed by a dedicated
// goroutine; nothing runs on the caller's thread after Start returns.
func (c *Correlator) Start() error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateWatching)) {
		return fmt.Errorf("correlator is not idle")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.cfg.WatchDir); err != nil {
		_ = watcher.Close()
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("failed to watch %s: %w", c.cfg.WatchDir, err)
	}

	c.watcher = watcher
	go c.watchLoop()
	return nil
}

// Suppress transitions to Suppressed and unregisters the watcher. Called
// once another capture path has fired: only one path may populate an
// artifact per failure. Idempotent; Suppressed is never left again.
func (c *Correlator) Suppress() {
	c.state.Store(int32(StateSuppressed))
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.watcher != nil {
			if err := c.watcher.Close(); err != nil {
				c.log.Warn("failed to close trace watcher", "error", err)
			}
		}
	})
}

// watchLoop consumes filesystem notifications on a dedicated goroutine.
func (c *Correlator) watchLoop() {
	for {
		select {
		case <-c.stopCh:
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.Contains(event.Name, c.cfg.Marker) {
				continue
			}
			c.handleNotification(event.Name)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn("trace watcher error", "error", err)
		}
	}
}

// handleNotification runs the correlation sequence for one notified path:
// debounce, optional liveness check, segment extraction, then capture.
// Every abort is silent; the OS rewrites these files constantly and most
// notifications are not for this process.
func (c *Correlator) handleNotification(path string) {
	if c.State() != StateWatching {
		return
	}

	eventTime := time.Now()

	// Claim the debounce slot up front so a concurrent notification for
	// the same event cannot also pass the check. Aborts roll the claim
	// back; a later notification carrying the real segment must still win.
	last := c.lastCapture.Load()
	if eventTime.UnixNano()-last < int64(c.cfg.DebounceWindow) {
		return
	}
	if !c.lastCapture.CompareAndSwap(last, eventTime.UnixNano()) {
		return
	}
	rollback := func() { c.lastCapture.CompareAndSwap(eventTime.UnixNano(), last) }

	if c.cfg.CheckProcessState && c.delegates.ProcessHung != nil {
		if !c.delegates.ProcessHung(c.cfg.PID, c.cfg.DebounceWindow) {
			rollback()
			return
		}
	}

	segment := extractSegment(path, c.cfg.PID, c.cfg.ProcessName, eventTime, c.cfg.DebounceWindow)
	if segment == "" {
		rollback()
		return
	}

	c.capture(eventTime, segment)
}

// capture turns an extracted segment into an artifact and notifies the
// callback. Mirrors the managed-crash pipeline from here on.
func (c *Correlator) capture(eventTime time.Time, segment string) {
	c.log.Info("hang trace captured", "process", c.cfg.ProcessName)

	if !c.store.MaintainANR() {
		return
	}

	emergency := c.emergency(eventTime, segment)

	name := artifact.LogName(artifact.KindANR, artifact.NextSequence(), c.cfg.AppVersion, c.cfg.ProcessName)
	path, ok := c.store.AcquireLogFile(name)
	if !ok {
		path = ""
	}

	if path != "" {
		if c.populator.Populate(path, emergency, c.cfg.Populate) {
			emergency = ""
		}
	}

	if c.callback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Warn("capture callback panicked", "panic", r)
				}
			}()
			c.callback(path, emergency)
		}()
	}
}

// emergency renders the ANR artifact header plus the extracted segment.
func (c *Correlator) emergency(eventTime time.Time, segment string) string {
	var b strings.Builder
	b.WriteString(report.Header(c.startTime, eventTime, report.TypeANR, c.cfg.AppID, c.cfg.AppVersion))
	b.WriteString(fmt.Sprintf("pid: %d  >>> %s <<<\n", c.cfg.PID, c.cfg.ProcessName))
	b.WriteString("\n")
	b.WriteString(report.SepOtherThreads)
	b.WriteString("\n\n")
	b.WriteString(segment)
	b.WriteString("\n")
	b.WriteString(report.SepThreadsEnd)
	b.WriteString("\n\n")
	return b.String()
}

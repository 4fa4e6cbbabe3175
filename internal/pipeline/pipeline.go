// Package pipeline implements the process-wide capture path for unhandled
// failures. Installed once per process, it replaces (and remembers) any
// previously-installed failure hook, and on invocation silences every
// sibling capture path before writing a managed-crash artifact, invoking
// the host callback, and applying the configured termination policy.
package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/crashworks/tombstone/internal/artifact"
	"github.com/crashworks/tombstone/internal/logging"
	"github.com/crashworks/tombstone/internal/report"
	"github.com/crashworks/tombstone/internal/store"
)

// Policy selects what happens after capture completes.
type Policy int

const (
	// PolicyRethrow hands the failure back to the previously-installed
	// hook so default process-death semantics proceed.
	PolicyRethrow Policy = iota
	// PolicyTerminate tears down the host's surfaces and exits the
	// process with ExitStatus.
	PolicyTerminate
)

// ExitStatus is the process exit code used under PolicyTerminate.
const ExitStatus = 10

// ThreadInfo describes one thread of execution at capture time.
type ThreadInfo struct {
	ID    int
	Name  string
	Stack string
}

// ThreadLister enumerates all live threads with their stacks. Iteration
// order is implementation-defined.
type ThreadLister func() []ThreadInfo

// PreviousHook is the failure hook that was installed before this one.
type PreviousHook func(failing ThreadInfo, failure error)

// Suppressor is a sibling capture path (the hang correlator, the native
// handler) that must be silenced once this pipeline fires.
type Suppressor interface {
	Suppress()
}

// Callback receives the capture result: the artifact path (empty when no
// file could be obtained) and the emergency text (empty when it was
// committed to the file — the payload is delivered exactly once).
type Callback func(logPath, emergency string)

// Config carries everything the pipeline needs.
type Config struct {
	PID         int
	ProcessName string
	AppID       string
	AppVersion  string

	Policy Policy

	// Populate selects the diagnostic sections appended to the artifact.
	Populate report.Options

	// DumpAllThreads enables the other-thread stack section.
	DumpAllThreads bool
	// ThreadDumpMax caps how many other threads are dumped; 0 means no cap.
	ThreadDumpMax int
	// ThreadAllowlist holds regular expressions matched against the full
	// thread name; when non-empty, only matching threads are dumped.
	// Patterns that fail to compile are logged and skipped.
	ThreadAllowlist []string
}

// Handler is the process-scoped capture pipeline.
type Handler struct {
	cfg       Config
	store     *store.Store
	populator *report.Populator
	callback  Callback
	log       *logging.Logger

	startTime   time.Time
	prev        PreviousHook
	suppressors []Suppressor
	threads     ThreadLister
	allowlist   []*regexp.Regexp

	// Termination delegates, injectable for tests.
	teardown func()
	exit     func(status int)
}

// New creates a Handler. A nil ThreadLister falls back to the built-in
// goroutine lister when DumpAllThreads is set.
func New(cfg Config, st *store.Store, delegates report.Delegates, threads ThreadLister, cb Callback, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NopLogger()
	}
	if cfg.ProcessName == "" {
		cfg.ProcessName = "unknown"
	}
	if threads == nil {
		threads = GoroutineLister
	}

	h := &Handler{
		cfg:       cfg,
		store:     st,
		populator: report.NewPopulator(st, delegates, log),
		callback:  cb,
		log:       log.WithComponent("pipeline").With("pid", cfg.PID),
		startTime: time.Now(),
		threads:   threads,
		teardown:  func() {},
	}

	for _, pattern := range cfg.ThreadAllowlist {
		// Allowlist entries match the whole name, not a substring.
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			h.log.Warn("invalid thread allowlist pattern, skipping", "pattern", pattern, "error", err)
			continue
		}
		h.allowlist = append(h.allowlist, re)
	}

	return h
}

// SetPreviousHook remembers the hook that was installed before this one.
func (h *Handler) SetPreviousHook(prev PreviousHook) {
	h.prev = prev
}

// AddSuppressor registers a sibling capture path to silence on firing.
func (h *Handler) AddSuppressor(s Suppressor) {
	h.suppressors = append(h.suppressors, s)
}

// SetTermination overrides the teardown and process-exit delegates used
// under PolicyTerminate. A nil exit leaves the process running, which only
// makes sense in tests.
func (h *Handler) SetTermination(teardown func(), exit func(status int)) {
	if teardown != nil {
		h.teardown = teardown
	}
	h.exit = exit
}

// Capture runs the full pipeline for one unhandled failure. It executes on
// whichever thread raised the failure and runs at most once per process
// lifetime under normal use.
func (h *Handler) Capture(failing ThreadInfo, failure error) {
	// Restore the previous hook before anything else: a second failure
	// raised during capture itself must reach the original chain instead
	// of recursing here.
	prev := h.prev
	h.prev = nil

	h.handle(failing, failure)

	switch h.cfg.Policy {
	case PolicyRethrow:
		if prev != nil {
			prev(failing, failure)
		}
	case PolicyTerminate:
		h.teardown()
		if h.exit != nil {
			h.exit(ExitStatus)
		}
	}
}

// handle performs suppression, artifact creation and population, and the
// host callback. Nothing in here may panic outward; the termination policy
// must run no matter what.
func (h *Handler) handle(failing ThreadInfo, failure error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("capture failed", "panic", r)
		}
	}()

	crashTime := time.Now()

	// Silence the sibling paths before touching any artifact state so no
	// duplicate artifact appears for the same root cause.
	for _, s := range h.suppressors {
		s.Suppress()
	}

	h.log.Info("unhandled failure captured", "thread", failing.Name)

	name := artifact.LogName(artifact.KindManaged, artifact.NextSequence(), h.cfg.AppVersion, h.cfg.ProcessName)
	path, ok := h.store.AcquireLogFile(name)
	if !ok {
		path = ""
	}

	// The emergency text is built whether or not a file was obtained; it
	// falls back to callback delivery.
	emergency := h.emergency(crashTime, failing, failure)

	if path != "" {
		opts := h.cfg.Populate
		// Managed-crash artifacts always carry the foreground indicator
		// when the host supplies the delegate; hang artifacts never do.
		opts.Foreground = true
		if h.cfg.DumpAllThreads {
			opts.ThreadDump = func() (string, error) {
				return h.otherThreads(failing), nil
			}
		}
		if h.populator.Populate(path, emergency, opts) {
			emergency = ""
		}
	}

	if h.callback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.log.Warn("capture callback panicked", "panic", r)
				}
			}()
			h.callback(path, emergency)
		}()
	}
}

// emergency renders the managed-crash header, the failing thread's
// identity line and the failure's own description and stack.
func (h *Handler) emergency(crashTime time.Time, failing ThreadInfo, failure error) string {
	var b strings.Builder
	b.WriteString(report.Header(h.startTime, crashTime, report.TypeManaged, h.cfg.AppID, h.cfg.AppVersion))
	b.WriteString(report.Identity(h.cfg.PID, failing.ID, failing.Name, h.cfg.ProcessName))
	b.WriteString("\nmanaged stacktrace:\n")
	if failure != nil {
		b.WriteString(fmt.Sprintf("%v\n", failure))
	}
	if failing.Stack != "" {
		b.WriteString(failing.Stack)
		if !strings.HasSuffix(failing.Stack, "\n") {
			b.WriteByte('\n')
		}
	}
	b.WriteString("\n")
	return b.String()
}

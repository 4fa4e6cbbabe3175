// Package report builds the emergency text for a capture and populates an
// artifact file with diagnostic sections. The capture pipeline and the ANR
// correlator share this code so both artifact types carry the same layout.
//
// Diagnostic collection itself (logcat excerpts, descriptor listings,
// memory snapshots) lives outside this subsystem; it is consumed through
// the Delegates struct and every delegate is optional. A failing delegate
// costs its own section and nothing else.
package report

import (
	"fmt"
	"time"
)

// Maker identifies the library in the artifact preamble.
const Maker = "tombstone 1.0.0"

// Separator lines used in the artifact body.
const (
	SepHead         = "*** *** *** *** *** *** *** *** *** *** *** *** *** *** *** ***"
	SepOtherThreads = "--- --- --- --- --- --- --- --- --- --- --- --- --- --- --- ---"
	SepThreadsEnd   = "+++ +++ +++ +++ +++ +++ +++ +++ +++ +++ +++ +++ +++ +++ +++ +++"
)

// timeLayout is the timestamp format used in artifact headers.
const timeLayout = "2006-01-02T15:04:05.000Z0700"

// CrashType labels the failure class in the artifact header.
type CrashType string

const (
	TypeManaged CrashType = "managed"
	TypeANR     CrashType = "anr"
)

// Delegates carries the collaborator hooks a capture may call. Any field
// may be nil; the corresponding section is skipped.
type Delegates struct {
	// LogcatExcerpt returns the tail of the main/system/events log buffers.
	LogcatExcerpt func(mainLines, systemLines, eventsLines int) (string, error)
	// OpenDescriptors lists the process's open file descriptors.
	OpenDescriptors func() (string, error)
	// NetworkSnapshot describes current network state.
	NetworkSnapshot func() (string, error)
	// MemorySnapshot describes memory usage and process limits.
	MemorySnapshot func() (string, error)
	// ApplicationForeground reports whether the app is in the foreground.
	ApplicationForeground func() bool
	// ProcessHung reports whether pid is currently in a not-responding
	// state. Used by the correlator's liveness check only.
	ProcessHung func(pid int, timeout time.Duration) bool
}

// Header renders the fixed artifact preamble.
func Header(start, event time.Time, crashType CrashType, appID, appVersion string) string {
	return fmt.Sprintf(
		"\n\n%s\n"+
			"Tombstone maker: '%s'\n"+
			"Crash type: '%s'\n"+
			"Start time: '%s'\n"+
			"Crash time: '%s'\n"+
			"App ID: '%s'\n"+
			"App version: '%s'\n",
		SepHead, Maker, crashType,
		start.Format(timeLayout), event.Format(timeLayout),
		appID, appVersion)
}

// Identity renders the pid/thread identity line that follows the header.
func Identity(pid, tid int, threadName, processName string) string {
	return fmt.Sprintf("pid: %d, tid: %d, name: %s  >>> %s <<<\n", pid, tid, threadName, processName)
}

// Options selects which sections Populate appends after the emergency text.
type Options struct {
	LogcatMainLines   int
	LogcatSystemLines int
	LogcatEventsLines int

	DumpDescriptors bool
	DumpNetwork     bool

	// Foreground appends a foreground/background indicator section.
	Foreground bool

	// ThreadDump, when non-nil, supplies the other-thread stack section.
	ThreadDump func() (string, error)
}

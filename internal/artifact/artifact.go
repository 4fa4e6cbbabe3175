// Package artifact defines the on-disk naming scheme shared by every
// component that touches the artifact directory. Names embed a fixed-width
// sequence number so that a plain lexicographic sort over file names yields
// creation order without reading any file metadata.
package artifact

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Kind identifies the type of a diagnostic file in the artifact directory.
type Kind int

const (
	// KindManaged is a crash log produced by the in-process failure hook.
	KindManaged Kind = iota
	// KindNative is a crash log produced by the native capture path.
	KindNative
	// KindANR is a hang-trace log extracted by the correlator.
	KindANR
	// KindTrace is an on-demand trace snapshot.
	KindTrace
	// KindPlaceholderClean is a zero-filled placeholder ready for reuse.
	KindPlaceholderClean
	// KindPlaceholderDirty is a placeholder awaiting zero-fill.
	KindPlaceholderDirty
)

const (
	// LogPrefix starts the name of every real (non-placeholder) artifact.
	LogPrefix = "tombstone"
	// PlaceholderPrefix starts the name of every placeholder file.
	PlaceholderPrefix = "placeholder"

	// SequenceDigits is the zero-padded width of the sequence field.
	// Fixed width is what makes names sortable by creation order.
	SequenceDigits = 20
)

// Kind suffixes. The two-part extension keeps artifact files trivially
// distinguishable from anything else a caller might drop in the directory.
const (
	SuffixManaged = ".crash.tombstone"
	SuffixNative  = ".native.tombstone"
	SuffixANR     = ".anr.tombstone"
	SuffixTrace   = ".trace.tombstone"
	SuffixClean   = ".clean.tombstone"
	SuffixDirty   = ".dirty.tombstone"
)

// LogKinds lists the real artifact kinds in the order a maintenance pass
// processes them.
var LogKinds = []Kind{KindNative, KindManaged, KindANR, KindTrace}

// String returns a short human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindManaged:
		return "managed-crash"
	case KindNative:
		return "native-crash"
	case KindANR:
		return "anr"
	case KindTrace:
		return "trace-snapshot"
	case KindPlaceholderClean:
		return "placeholder-clean"
	case KindPlaceholderDirty:
		return "placeholder-dirty"
	default:
		return "unknown"
	}
}

// Suffix returns the file name suffix for the kind.
func (k Kind) Suffix() string {
	switch k {
	case KindManaged:
		return SuffixManaged
	case KindNative:
		return SuffixNative
	case KindANR:
		return SuffixANR
	case KindTrace:
		return SuffixTrace
	case KindPlaceholderClean:
		return SuffixClean
	case KindPlaceholderDirty:
		return SuffixDirty
	default:
		return ""
	}
}

// IsPlaceholder reports whether the kind is one of the two placeholder states.
func (k Kind) IsPlaceholder() bool {
	return k == KindPlaceholderClean || k == KindPlaceholderDirty
}

// Info is the result of parsing an artifact file name.
type Info struct {
	Kind     Kind
	Sequence uint64
	// AppVersion and ProcessName are embedded for matching and debugging
	// only; retention never looks at them. Empty for placeholders.
	AppVersion  string
	ProcessName string
}

// Created recovers the wall-clock creation time embedded in the sequence.
func (i Info) Created() time.Time {
	return time.UnixMilli(int64(i.Sequence / 1000))
}

// unique is the process-wide rolling counter mixed into sequence numbers so
// that two artifacts created within the same millisecond still sort in
// creation order.
var unique atomic.Int64

// NextSequence returns a fresh sequence number: the current wall clock
// scaled to microseconds plus a rolling counter in [1, 999].
func NextSequence() uint64 {
	n := unique.Add(1)
	if n >= 999 {
		unique.Store(0)
	}
	return uint64(time.Now().UnixMilli())*1000 + uint64(n)
}

// LogName builds the file name for a real artifact:
//
//	tombstone_<20-digit sequence>_<appVersion>__<processName><suffix>
func LogName(kind Kind, seq uint64, appVersion, processName string) string {
	return fmt.Sprintf("%s_%0*d_%s__%s%s", LogPrefix, SequenceDigits, seq, appVersion, processName, kind.Suffix())
}

// PlaceholderName builds the file name for a placeholder:
//
//	placeholder_<20-digit sequence><suffix>
func PlaceholderName(seq uint64, clean bool) string {
	suffix := SuffixDirty
	if clean {
		suffix = SuffixClean
	}
	return fmt.Sprintf("%s_%0*d%s", PlaceholderPrefix, SequenceDigits, seq, suffix)
}

// Parse decodes a file name produced by LogName or PlaceholderName.
// It returns ok=false for any name this package did not produce; callers
// use that to skip foreign files during directory scans.
func Parse(name string) (Info, bool) {
	switch {
	case strings.HasPrefix(name, LogPrefix+"_"):
		return parseLog(name)
	case strings.HasPrefix(name, PlaceholderPrefix+"_"):
		return parsePlaceholder(name)
	default:
		return Info{}, false
	}
}

func parseLog(name string) (Info, bool) {
	var kind Kind
	switch {
	case strings.HasSuffix(name, SuffixManaged):
		kind = KindManaged
	case strings.HasSuffix(name, SuffixNative):
		kind = KindNative
	case strings.HasSuffix(name, SuffixANR):
		kind = KindANR
	case strings.HasSuffix(name, SuffixTrace):
		kind = KindTrace
	default:
		return Info{}, false
	}

	body := strings.TrimSuffix(strings.TrimPrefix(name, LogPrefix+"_"), kind.Suffix())
	if len(body) < SequenceDigits+1 || body[SequenceDigits] != '_' {
		return Info{}, false
	}
	seq, err := strconv.ParseUint(body[:SequenceDigits], 10, 64)
	if err != nil {
		return Info{}, false
	}

	rest := body[SequenceDigits+1:]
	version, process, ok := strings.Cut(rest, "__")
	if !ok {
		return Info{}, false
	}

	return Info{Kind: kind, Sequence: seq, AppVersion: version, ProcessName: process}, true
}

func parsePlaceholder(name string) (Info, bool) {
	var kind Kind
	switch {
	case strings.HasSuffix(name, SuffixClean):
		kind = KindPlaceholderClean
	case strings.HasSuffix(name, SuffixDirty):
		kind = KindPlaceholderDirty
	default:
		return Info{}, false
	}

	body := strings.TrimSuffix(strings.TrimPrefix(name, PlaceholderPrefix+"_"), kind.Suffix())
	if len(body) != SequenceDigits {
		return Info{}, false
	}
	seq, err := strconv.ParseUint(body, 10, 64)
	if err != nil {
		return Info{}, false
	}

	return Info{Kind: kind, Sequence: seq}, true
}

// IsLog reports whether name belongs to a real artifact of the given kind.
func IsLog(name string, kind Kind) bool {
	return strings.HasPrefix(name, LogPrefix+"_") && strings.HasSuffix(name, kind.Suffix())
}

// IsPlaceholder reports whether name belongs to a placeholder in the given
// state.
func IsPlaceholder(name string, clean bool) bool {
	suffix := SuffixDirty
	if clean {
		suffix = SuffixClean
	}
	return strings.HasPrefix(name, PlaceholderPrefix+"_") && strings.HasSuffix(name, suffix)
}

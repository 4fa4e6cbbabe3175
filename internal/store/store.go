// Package store owns the artifact directory. It enforces per-kind retention
// ceilings and keeps a pool of pre-zeroed placeholder files that guarantee
// disk space for a forthcoming crash report even when the device is near
// ENOSPC. The store is the sole component that deletes or renames artifact
// files; everything else goes through it.
//
// Every filesystem call in this package is fallible and every failure
// degrades to "delete and move on". No store operation raises an error to
// the hosting application; failures are logged and swallowed. Concurrent
// maintenance and capture-time acquisition are serialized only by atomic
// rename: a rename either succeeds and the file changes identity exactly
// once, or fails and no partial state is observed.
package store

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/crashworks/tombstone/internal/artifact"
	"github.com/crashworks/tombstone/internal/logging"
)

// DefaultBacklogSlack is how far past its ceiling a kind may drift before
// initialization treats the directory as a pathological backlog and cleans
// up synchronously. Hand-picked in the interest of not blocking startup on
// ordinary housekeeping; override via Config.BacklogSlack.
const DefaultBacklogSlack = 10

// zeroBlockSize is the unit of the zero-fill pass.
const zeroBlockSize = 1024

// Config carries everything the store needs to manage a directory.
type Config struct {
	// Dir is the flat artifact directory. Created on demand.
	Dir string

	// Ceilings maps each real artifact kind to its retention ceiling.
	// A kind absent from the map has ceiling 0: keep none.
	Ceilings map[artifact.Kind]int

	// PlaceholderTarget is the clean-pool size maintenance drives toward.
	// Zero or negative disables placeholdering entirely.
	PlaceholderTarget int

	// PlaceholderSizeKB is the minimum zero-filled size of a placeholder.
	PlaceholderSizeKB int

	// MaintainDelay postpones a deferred maintenance pass. Zero runs it
	// immediately on the background worker.
	MaintainDelay time.Duration

	// BacklogSlack overrides DefaultBacklogSlack when positive.
	BacklogSlack int
}

// urgency is the maintenance decision made once at initialization.
type urgency int

const (
	// urgencyNone: every count is already where maintenance would leave it.
	urgencyNone urgency = iota
	// urgencyDeferred: some housekeeping needed, run after MaintainDelay.
	urgencyDeferred
	// urgencySoon: unwanted files exist, run on the worker without delay.
	urgencySoon
	// urgencyImmediate: pathological backlog, handled synchronously during
	// initialization; nothing left for Maintain to do.
	urgencyImmediate
)

// Store manages retention and the placeholder pool for one directory.
type Store struct {
	dir      string
	ceilings map[artifact.Kind]int
	target   int
	sizeKB   int
	delay    time.Duration
	slack    int

	urgency urgency
	log     *logging.Logger
}

// New creates a Store and scans the directory once to decide how urgently a
// maintenance pass is needed. If the scan finds a backlog far beyond the
// ceilings it cleans up synchronously before returning; ordinary excess is
// left for Maintain so application startup is never blocked on it.
func New(cfg Config, log *logging.Logger) *Store {
	if log == nil {
		log = logging.NopLogger()
	}

	slack := cfg.BacklogSlack
	if slack <= 0 {
		slack = DefaultBacklogSlack
	}

	// A negative target means the same thing as zero: no pool.
	target := cfg.PlaceholderTarget
	if target < 0 {
		target = 0
	}

	ceilings := make(map[artifact.Kind]int, len(cfg.Ceilings))
	for kind, max := range cfg.Ceilings {
		if !kind.IsPlaceholder() && max > 0 {
			ceilings[kind] = max
		}
	}

	s := &Store{
		dir:      cfg.Dir,
		ceilings: ceilings,
		target:   target,
		sizeKB:   cfg.PlaceholderSizeKB,
		delay:    cfg.MaintainDelay,
		slack:    slack,
		log:      log.WithComponent("store").WithDir(cfg.Dir),
	}
	s.initialize()
	return s
}

// Dir returns the artifact directory the store manages.
func (s *Store) Dir() string {
	return s.dir
}

// initialize counts existing artifacts per kind and classifies the state of
// the directory. It never fails: an unreadable directory simply means there
// is nothing to maintain yet.
func (s *Store) initialize() {
	// A directory that does not exist yet still needs a deferred pass to
	// build the placeholder pool for a fresh install.
	s.urgency = urgencyDeferred

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	logCounts := make(map[artifact.Kind]int)
	cleanCount := 0
	dirtyCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := artifact.Parse(entry.Name())
		if !ok {
			continue
		}
		switch info.Kind {
		case artifact.KindPlaceholderClean:
			cleanCount++
		case artifact.KindPlaceholderDirty:
			dirtyCount++
		default:
			logCounts[info.Kind]++
		}
	}

	withinCeilings := true
	farBeyond := false
	beyond := false
	for _, kind := range artifact.LogKinds {
		max := s.ceilings[kind]
		count := logCounts[kind]
		if count > max {
			withinCeilings = false
			beyond = true
		}
		if count > max+s.slack {
			farBeyond = true
		}
	}

	switch {
	case withinCeilings && cleanCount == s.target && dirtyCount == 0:
		s.urgency = urgencyNone
	case farBeyond || cleanCount > s.target+s.slack || dirtyCount > s.slack:
		// Crash loops can pile up hundreds of files between launches.
		s.log.Warn("artifact backlog detected, cleaning up now",
			"clean", cleanCount, "dirty", dirtyCount)
		s.doMaintain()
		s.urgency = urgencyImmediate
	case beyond || cleanCount > s.target || dirtyCount > 0:
		s.urgency = urgencySoon
	default:
		// Counts are fine but the clean pool is below target.
		s.urgency = urgencyDeferred
	}
}

// Maintain executes the maintenance pass decided at initialization on a
// background worker, either immediately or after the configured delay.
// It is a no-op when initialization found nothing to do.
func (s *Store) Maintain() {
	switch s.urgency {
	case urgencyNone, urgencyImmediate:
		return
	case urgencySoon:
		go s.doMaintain()
	case urgencyDeferred:
		if s.delay <= 0 {
			go s.doMaintain()
			return
		}
		time.AfterFunc(s.delay, s.doMaintain)
	}
}

// MaintainNow runs one full maintenance pass synchronously, regardless of
// the urgency decided at initialization. Used by the operator CLI.
func (s *Store) MaintainNow() {
	s.doMaintain()
	s.urgency = urgencyNone
}

// doMaintain runs one full maintenance pass: retention eviction for every
// real kind, then placeholder pool rebalancing. A failure on one kind must
// not abort processing of the others.
func (s *Store) doMaintain() {
	if !s.ensureDir() {
		return
	}

	for _, kind := range artifact.LogKinds {
		if !s.EvictExcess(kind, s.ceilings[kind]) {
			s.log.Warn("retention eviction incomplete", "kind", kind.String())
		}
	}

	s.RebalancePlaceholderPool()
}

// EvictExcess lists artifacts of the given kind and recycles the oldest
// ones until at most ceiling remain. A ceiling of zero recycles everything.
// It reports whether every targeted file was recycled or deleted.
func (s *Store) EvictExcess(kind artifact.Kind, ceiling int) bool {
	names := s.listSorted(func(name string) bool {
		return artifact.IsLog(name, kind)
	})
	if len(names) <= ceiling {
		return true
	}

	ok := true
	for _, name := range names[:len(names)-ceiling] {
		if !s.RecycleLogFile(filepath.Join(s.dir, name)) {
			ok = false
		}
	}
	return ok
}

// MaintainANR evicts excess hang-trace artifacts only. The correlator calls
// this right before populating a fresh ANR artifact so the new file never
// pushes the kind over its ceiling.
func (s *Store) MaintainANR() bool {
	if !s.ensureDir() {
		return false
	}
	return s.EvictExcess(artifact.KindANR, s.ceilings[artifact.KindANR])
}

// listSorted returns the names in the artifact directory accepted by the
// filter, sorted ascending. Because sequence fields are fixed-width and
// zero-padded this is creation order.
func (s *Store) listSorted(accept func(string) bool) []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("failed to list artifact directory", "error", err)
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if accept(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// ensureDir creates the artifact directory if it is missing.
func (s *Store) ensureDir() bool {
	if s.dir == "" {
		return false
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.log.Error("failed to create artifact directory", "error", err)
		return false
	}
	return true
}

// remove deletes a file, logging but otherwise ignoring failure.
func (s *Store) remove(path string) bool {
	if err := os.Remove(path); err != nil {
		s.log.Warn("failed to delete artifact", "path", path, "error", err)
		return false
	}
	return true
}

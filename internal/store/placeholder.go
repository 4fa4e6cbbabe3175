package store

import (
	"os"
	"path/filepath"

	"github.com/crashworks/tombstone/internal/artifact"
)

// RebalancePlaceholderPool drives the clean pool toward its target size.
// Dirty files are consumed first; if none remain, brand-new dirty files are
// created and zero-filled. The loop is capped at twice the target so a
// filesystem that keeps failing cannot pin the worker. Afterward any excess
// clean files are deleted oldest-first and every remaining dirty file is
// deleted unconditionally: dirty is a transient state that never survives
// a maintenance pass.
func (s *Store) RebalancePlaceholderPool() {
	if !s.ensureDir() {
		return
	}

	cleanNames := s.listSorted(func(name string) bool {
		return artifact.IsPlaceholder(name, true)
	})
	dirtyNames := s.listSorted(func(name string) bool {
		return artifact.IsPlaceholder(name, false)
	})

	cleanCount := len(cleanNames)
	dirtyCount := len(dirtyNames)
	attempts := 0
	for cleanCount < s.target {
		if dirtyCount > 0 {
			dirtyCount--
			if s.cleanDirtyFile(filepath.Join(s.dir, dirtyNames[dirtyCount])) {
				cleanCount++
			}
		} else if path, ok := s.createDirtyFile(); ok {
			if s.cleanDirtyFile(path) {
				cleanCount++
			}
		}

		attempts++
		if attempts > s.target*2 {
			break
		}
	}

	if attempts > 0 {
		cleanNames = s.listSorted(func(name string) bool {
			return artifact.IsPlaceholder(name, true)
		})
		dirtyNames = s.listSorted(func(name string) bool {
			return artifact.IsPlaceholder(name, false)
		})
	}

	if excess := len(cleanNames) - s.target; excess > 0 {
		for _, name := range cleanNames[:excess] {
			s.remove(filepath.Join(s.dir, name))
		}
	}

	for _, name := range dirtyNames {
		s.remove(filepath.Join(s.dir, name))
	}
}

// createDirtyFile creates a brand-new empty dirty placeholder.
func (s *Store) createDirtyFile() (string, bool) {
	path := filepath.Join(s.dir, artifact.PlaceholderName(artifact.NextSequence(), false))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		s.log.Warn("failed to create dirty placeholder", "error", err)
		return "", false
	}
	if err := f.Close(); err != nil {
		s.log.Warn("failed to close dirty placeholder", "error", err)
	}
	return path, true
}

// cleanDirtyFile zero-fills a dirty placeholder and renames it to the clean
// suffix. The fill covers the larger of the minimum placeholder size and the
// file's current length, so a placeholder converted from a large evicted log
// never shrinks below what the next crash may need. Committing real zeroed
// pages here is what makes the capture-time rename free of new block
// allocation. On any failure the file is deleted.
func (s *Store) cleanDirtyFile(path string) bool {
	ok := s.zeroFill(path)
	if ok {
		cleanPath := filepath.Join(s.dir, artifact.PlaceholderName(artifact.NextSequence(), true))
		if err := os.Rename(path, cleanPath); err != nil {
			s.log.Warn("failed to rename placeholder to clean", "path", path, "error", err)
			ok = false
		}
	}

	if !ok {
		_ = os.Remove(path)
	}
	return ok
}

// zeroFill overwrites the file with zero blocks. The written length is
// s.sizeKB KiB, or the file's own length when that is larger; only the
// final block may be partial.
func (s *Store) zeroFill(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		s.log.Warn("failed to stat dirty placeholder", "path", path, "error", err)
		return false
	}

	blockCount := int64(s.sizeKB)
	tail := int64(0)
	if size := info.Size(); size > int64(s.sizeKB)*zeroBlockSize {
		blockCount = size / zeroBlockSize
		if tail = size % zeroBlockSize; tail != 0 {
			blockCount++
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		s.log.Warn("failed to open dirty placeholder", "path", path, "error", err)
		return false
	}
	defer func() { _ = f.Close() }()

	block := make([]byte, zeroBlockSize)
	for i := int64(0); i < blockCount; i++ {
		chunk := block
		if i+1 == blockCount && tail != 0 {
			chunk = block[:tail]
		}
		if _, err := f.Write(chunk); err != nil {
			s.log.Warn("failed to zero-fill placeholder", "path", path, "error", err)
			return false
		}
	}

	if err := f.Sync(); err != nil {
		s.log.Warn("failed to sync placeholder", "path", path, "error", err)
		return false
	}
	return true
}

// AcquireLogFile claims a file for the given artifact name, preferring to
// rename a clean placeholder (most recently created first) over creating a
// fresh file. Clean placeholders that fail to rename are deleted as they
// are encountered. It returns the full path, or ok=false when both the pool
// and the fresh-create fallback are exhausted.
func (s *Store) AcquireLogFile(name string) (string, bool) {
	if !s.ensureDir() {
		return "", false
	}
	target := filepath.Join(s.dir, name)

	cleanNames := s.listSorted(func(n string) bool {
		return artifact.IsPlaceholder(n, true)
	})
	for i := len(cleanNames) - 1; i >= 0; i-- {
		cleanPath := filepath.Join(s.dir, cleanNames[i])
		if err := os.Rename(cleanPath, target); err == nil {
			return target, true
		}
		s.log.Warn("failed to claim clean placeholder", "path", cleanPath)
		_ = os.Remove(cleanPath)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		s.log.Error("failed to create artifact file", "path", target, "error", err)
		return "", false
	}
	if err := f.Close(); err != nil {
		s.log.Warn("failed to close artifact file", "path", target, "error", err)
	}
	return target, true
}

// RecycleLogFile is the reverse of acquisition. When placeholdering is
// disabled or the clean pool is already full the file is deleted outright;
// otherwise it is renamed to a dirty placeholder and zero-filled
// synchronously. Used by retention eviction and by callers discarding an
// artifact they no longer want.
func (s *Store) RecycleLogFile(path string) bool {
	if path == "" {
		return false
	}

	if s.target <= 0 {
		return s.remove(path)
	}

	cleanNames := s.listSorted(func(n string) bool {
		return artifact.IsPlaceholder(n, true)
	})
	if len(cleanNames) >= s.target {
		return s.remove(path)
	}

	dirtyPath := filepath.Join(s.dir, artifact.PlaceholderName(artifact.NextSequence(), false))
	if err := os.Rename(path, dirtyPath); err != nil {
		s.log.Warn("failed to rename artifact to dirty placeholder", "path", path, "error", err)
		return s.remove(path)
	}

	return s.cleanDirtyFile(dirtyPath)
}

// AppendText writes text at the logical end of an artifact file. A file
// claimed from the placeholder pool is all zero bytes, so the write position
// is found by scanning backward past trailing zeros rather than seeking to
// the physical end. Reports whether the write happened.
func (s *Store) AppendText(path, text string) bool {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		s.log.Warn("failed to open artifact for append", "path", path, "error", err)
		return false
	}
	defer func() { _ = f.Close() }()

	pos, err := logicalEnd(f)
	if err != nil {
		s.log.Warn("failed to locate append position", "path", path, "error", err)
		return false
	}

	if _, err := f.WriteAt([]byte(text), pos); err != nil {
		s.log.Warn("failed to append to artifact", "path", path, "error", err)
		return false
	}
	if err := f.Sync(); err != nil {
		s.log.Warn("failed to sync artifact", "path", path, "error", err)
		return false
	}
	return true
}

// logicalEnd returns the offset just past the last non-zero byte.
func logicalEnd(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()

	buf := make([]byte, 64*1024)
	for end := size; end > 0; {
		start := end - int64(len(buf))
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil {
			return 0, err
		}
		chunk := buf[:n]
		for i := len(chunk) - 1; i >= 0; i-- {
			if chunk[i] != 0 {
				return start + int64(i) + 1, nil
			}
		}
		end = start
	}
	return 0, nil
}

// CleanPoolSize returns the current number of clean placeholders. Exposed
// for the operator CLI and tests.
func (s *Store) CleanPoolSize() int {
	return len(s.listSorted(func(n string) bool {
		return artifact.IsPlaceholder(n, true)
	}))
}

// CountKind returns the current number of artifacts of one kind.
func (s *Store) CountKind(kind artifact.Kind) int {
	if kind == artifact.KindPlaceholderClean {
		return s.CleanPoolSize()
	}
	if kind == artifact.KindPlaceholderDirty {
		return len(s.listSorted(func(n string) bool {
			return artifact.IsPlaceholder(n, false)
		}))
	}
	return len(s.listSorted(func(n string) bool {
		return artifact.IsLog(n, kind)
	}))
}

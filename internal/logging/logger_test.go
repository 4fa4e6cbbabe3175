package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "tombstone.log")

		logger, err := NewLogger(logPath, LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer func() { _ = logger.Close() }()

		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", logPath)
		}
	})

	t.Run("creates nested directories", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "nested", "dir", "tombstone.log")

		logger, err := NewLogger(logPath, LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer func() { _ = logger.Close() }()

		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", logPath)
		}
	})

	t.Run("empty path writes to stderr without error", func(t *testing.T) {
		logger, err := NewLogger("", LevelError)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
}

func TestLoggerLevels(t *testing.T) {
	t.Run("filters below configured level", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "tombstone.log")

		logger, err := NewLogger(logPath, LevelWarn)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		logger.Debug("debug message")
		logger.Info("info message")
		logger.Warn("warn message")
		logger.Error("error message")
		_ = logger.Close()

		entries := readEntries(t, logPath)
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0]["msg"] != "warn message" {
			t.Errorf("expected warn message first, got %v", entries[0]["msg"])
		}
		if entries[1]["msg"] != "error message" {
			t.Errorf("expected error message second, got %v", entries[1]["msg"])
		}
	})

	t.Run("unknown level defaults to info", func(t *testing.T) {
		if got := parseLevel("chatty"); got != slog.LevelInfo {
			t.Errorf("expected LevelInfo, got %v", got)
		}
	})
}

func TestLoggerAttributes(t *testing.T) {
	t.Run("component attribute propagates", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "tombstone.log")

		logger, err := NewLogger(logPath, LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		storeLog := logger.WithComponent("store").WithDir("/tmp/artifacts")
		storeLog.Info("maintenance pass", "evicted", 3)
		_ = logger.Close()

		entries := readEntries(t, logPath)
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
		entry := entries[0]
		if entry["component"] != "store" {
			t.Errorf("expected component=store, got %v", entry["component"])
		}
		if entry["dir"] != "/tmp/artifacts" {
			t.Errorf("expected dir=/tmp/artifacts, got %v", entry["dir"])
		}
		if entry["evicted"] != float64(3) {
			t.Errorf("expected evicted=3, got %v", entry["evicted"])
		}
	})

	t.Run("child does not mutate parent", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "tombstone.log")

		logger, err := NewLogger(logPath, LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		_ = logger.WithComponent("anr")
		logger.Info("plain message")
		_ = logger.Close()

		entries := readEntries(t, logPath)
		if _, ok := entries[0]["component"]; ok {
			t.Error("parent logger inherited child attribute")
		}
	})

	t.Run("With skips non-string keys", func(t *testing.T) {
		logger := NopLogger()
		child := logger.With(42, "value", "ok", true)
		if len(child.attrs) != 1 {
			t.Errorf("expected 1 attribute, got %d", len(child.attrs))
		}
	})
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Info("discarded")
	logger.Error("also discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

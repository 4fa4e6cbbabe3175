package anr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Shared-file fixture: two blocks for two different processes.
const twoBlockTrace = `----- pid 100 at 2024-01-01 00:00:00 -----
Cmd line: other
other stack line
----- end 100 -----
----- pid 200 at 2024-01-01 00:00:05 -----
Cmd line: target
"main" prio=5 tid=1 Blocked
  at com.example.Target.run(Target.java:42)
----- end 200 -----
`

func writeTrace(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traces.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write trace file: %v", err)
	}
	return path
}

func mustParseLocal(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation(traceTimeLayout, value, time.Local)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", value, err)
	}
	return ts
}

func TestExtractSegment(t *testing.T) {
	window := 15 * time.Second

	t.Run("returns the matching block body", func(t *testing.T) {
		path := writeTrace(t, twoBlockTrace)
		eventTime := mustParseLocal(t, "2024-01-01 00:00:05")

		got := extractSegment(path, 200, "target", eventTime, window)

		want := "Cmd line: target\n" +
			"\"main\" prio=5 tid=1 Blocked\n" +
			"  at com.example.Target.run(Target.java:42)\n"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("unknown pid matches nothing", func(t *testing.T) {
		path := writeTrace(t, twoBlockTrace)
		eventTime := mustParseLocal(t, "2024-01-01 00:00:05")

		if got := extractSegment(path, 999, "target", eventTime, window); got != "" {
			t.Errorf("expected empty result, got %q", got)
		}
	})

	t.Run("stale timestamp matches nothing", func(t *testing.T) {
		path := writeTrace(t, twoBlockTrace)
		eventTime := mustParseLocal(t, "2024-01-01 12:00:00")

		if got := extractSegment(path, 200, "target", eventTime, window); got != "" {
			t.Errorf("expected empty result for stale block, got %q", got)
		}
	})

	t.Run("wrong process name matches nothing", func(t *testing.T) {
		path := writeTrace(t, twoBlockTrace)
		eventTime := mustParseLocal(t, "2024-01-01 00:00:05")

		if got := extractSegment(path, 200, "impostor", eventTime, window); got != "" {
			t.Errorf("expected empty result, got %q", got)
		}
	})

	t.Run("timestamp within tolerance matches", func(t *testing.T) {
		path := writeTrace(t, twoBlockTrace)
		// 10 seconds after the block timestamp, within the 15s window.
		eventTime := mustParseLocal(t, "2024-01-01 00:00:15")

		if got := extractSegment(path, 200, "target", eventTime, window); got == "" {
			t.Error("expected a match within the tolerance window")
		}
	})

	t.Run("truncated block returns empty", func(t *testing.T) {
		truncated := `----- pid 200 at 2024-01-01 00:00:05 -----
Cmd line: target
partial stack
`
		path := writeTrace(t, truncated)
		eventTime := mustParseLocal(t, "2024-01-01 00:00:05")

		if got := extractSegment(path, 200, "target", eventTime, window); got != "" {
			t.Errorf("expected empty result for truncated file, got %q", got)
		}
	})

	t.Run("stops after the accepted block", func(t *testing.T) {
		trace := twoBlockTrace + `----- pid 200 at 2024-01-01 00:00:06 -----
Cmd line: target
second block for same pid
----- end 200 -----
`
		path := writeTrace(t, trace)
		eventTime := mustParseLocal(t, "2024-01-01 00:00:05")

		got := extractSegment(path, 200, "target", eventTime, window)
		if got == "" {
			t.Fatal("expected a match")
		}
		if strings.Contains(got, "second block") {
			t.Errorf("scan did not stop after first accepted block: %q", got)
		}
	})

	t.Run("garbled header lines are skipped", func(t *testing.T) {
		trace := `----- pid not-a-number at whenever -----
----- pid 200 at 2024-01-01 00:00:05 -----
Cmd line: target
stack
----- end 200 -----
`
		path := writeTrace(t, trace)
		eventTime := mustParseLocal(t, "2024-01-01 00:00:05")

		if got := extractSegment(path, 200, "target", eventTime, window); got == "" {
			t.Error("expected parser to skip the garbled header and match")
		}
	})

	t.Run("missing file returns empty", func(t *testing.T) {
		eventTime := mustParseLocal(t, "2024-01-01 00:00:05")
		if got := extractSegment("/nonexistent/traces.txt", 200, "target", eventTime, window); got != "" {
			t.Errorf("expected empty result, got %q", got)
		}
	})
}

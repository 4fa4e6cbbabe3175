package anr

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Shared trace files hold one block per process, interleaved for every
// process on the device and often stale:
//
//	----- pid 1234 at 2024-01-01 00:00:05 -----
//	Cmd line: com.example.app
//	<free-form stack content>
//	----- end 1234 -----
var cmdLinePattern = regexp.MustCompile(`^Cmd\sline:\s+(.*)$`)

const (
	blockHeaderPrefix = "----- pid "
	blockEndPrefix    = "----- end "
	traceTimeLayout   = "2006-01-02 15:04:05"
)

// ExtractSegment scans a shared trace file for the single block belonging
// to the given process at the given event time. Exposed for the operator
// CLI; the correlator uses the same logic internally.
func ExtractSegment(path string, pid int, processName string, eventTime time.Time, tolerance time.Duration) string {
	return extractSegment(path, pid, processName, eventTime, tolerance)
}

// extractSegment scans a shared trace file for the single block belonging
// to the given process at the given event time. The scan is forward-only
// and single-pass: a block is accepted when its pid, timestamp (within
// tolerance) and Cmd line process name all match, and its body is
// accumulated verbatim up to the terminating end line. Returns "" when no
// block matches or the file ends before a terminator. Parse failures are
// "no match", never errors.
func extractSegment(path string, pid int, processName string, eventTime time.Time, tolerance time.Duration) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var body strings.Builder
	found := false
	for scanner.Scan() {
		line := scanner.Text()

		if !found && strings.HasPrefix(line, blockHeaderPrefix) {
			blockPid, blockTime, ok := parseBlockHeader(line)
			if !ok || blockPid != pid {
				continue
			}
			if delta := eventTime.Sub(blockTime); delta > tolerance || delta < -tolerance {
				continue
			}

			if !scanner.Scan() {
				break
			}
			line = scanner.Text()
			m := cmdLinePattern.FindStringSubmatch(line)
			if m == nil || m[1] != processName {
				continue
			}

			found = true
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}

		if found {
			if strings.HasPrefix(line, blockEndPrefix) {
				return body.String()
			}
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}

	// No matching block, or the file was truncated mid-block (likely still
	// being written); the caller treats both the same way.
	return ""
}

// parseBlockHeader extracts the pid and timestamp from a block header line.
func parseBlockHeader(line string) (int, time.Time, bool) {
	rest := strings.TrimPrefix(line, blockHeaderPrefix)
	pidStr, rest, ok := strings.Cut(rest, " at ")
	if !ok {
		return 0, time.Time{}, false
	}
	timeStr, ok := strings.CutSuffix(rest, " -----")
	if !ok {
		return 0, time.Time{}, false
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, time.Time{}, false
	}
	ts, err := time.ParseInLocation(traceTimeLayout, timeStr, time.Local)
	if err != nil {
		return 0, time.Time{}, false
	}
	return pid, ts, true
}

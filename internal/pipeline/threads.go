package pipeline

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/crashworks/tombstone/internal/report"
)

// otherThreads renders the stacks of every live thread except the failing
// one, filtered by the allowlist and capped by ThreadDumpMax, followed by
// a tally block.
func (h *Handler) otherThreads(failing ThreadInfo) string {
	var (
		b       strings.Builder
		total   int
		matched int
		ignored int
		dumped  int
	)

	for _, t := range h.threads() {
		if t.ID == failing.ID && t.Name == failing.Name {
			continue
		}
		total++

		if len(h.allowlist) > 0 && !matchesAny(h.allowlist, t.Name) {
			continue
		}
		matched++

		if h.cfg.ThreadDumpMax > 0 && dumped >= h.cfg.ThreadDumpMax {
			ignored++
			continue
		}
		dumped++

		b.WriteString(report.SepOtherThreads)
		b.WriteString("\n")
		b.WriteString(report.Identity(h.cfg.PID, t.ID, t.Name, h.cfg.ProcessName))
		b.WriteString("\nmanaged stacktrace:\n")
		b.WriteString(t.Stack)
		if !strings.HasSuffix(t.Stack, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("total threads (exclude the failing thread): %d\n", total))
	if len(h.allowlist) > 0 {
		b.WriteString(fmt.Sprintf("threads matched allowlist: %d\n", matched))
	}
	if h.cfg.ThreadDumpMax > 0 {
		b.WriteString(fmt.Sprintf("threads ignored by max count limit: %d\n", ignored))
	}
	b.WriteString(fmt.Sprintf("dumped threads: %d\n", dumped))
	b.WriteString("\n")
	b.WriteString(report.SepThreadsEnd)
	b.WriteString("\n\n")
	return b.String()
}

func matchesAny(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// GoroutineLister is the default ThreadLister. It snapshots every
// goroutine's stack via the runtime and splits the dump into per-goroutine
// entries named "goroutine-<id>".
func GoroutineLister() []ThreadInfo {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, len(buf)*2)
	}

	var threads []ThreadInfo
	for _, entry := range strings.Split(string(buf), "\n\n") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, stack := parseGoroutineEntry(entry)
		if id < 0 {
			continue
		}
		threads = append(threads, ThreadInfo{
			ID:    id,
			Name:  "goroutine-" + strconv.Itoa(id),
			Stack: stack,
		})
	}
	return threads
}

// parseGoroutineEntry splits "goroutine N [state]:\n<frames>" into the
// goroutine id and its frame lines. Returns -1 for unrecognized entries.
func parseGoroutineEntry(entry string) (int, string) {
	header, rest, ok := strings.Cut(entry, "\n")
	if !ok || !strings.HasPrefix(header, "goroutine ") {
		return -1, ""
	}
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return -1, ""
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return -1, ""
	}
	return id, rest
}

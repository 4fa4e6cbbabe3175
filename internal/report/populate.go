package report

import (
	"fmt"

	"github.com/crashworks/tombstone/internal/logging"
)

// Appender is the slice of the store this package needs: sequential text
// appends that report success instead of returning errors.
type Appender interface {
	AppendText(path, text string) bool
}

// Populator writes diagnostic sections into artifact files.
type Populator struct {
	store     Appender
	delegates Delegates
	log       *logging.Logger
}

// NewPopulator creates a Populator. A nil logger discards output.
func NewPopulator(store Appender, delegates Delegates, log *logging.Logger) *Populator {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Populator{store: store, delegates: delegates, log: log.WithComponent("report")}
}

// Populate appends sections to the artifact at path in fixed order:
// emergency text, logcat excerpt, open descriptors, network snapshot,
// memory snapshot (always attempted), foreground indicator, other-thread
// dump. Each section is independently guarded so a failing delegate does
// not block the sections after it.
//
// The return value reports whether the emergency text reached the file.
// When it did, the caller must not also deliver it via callback; the
// payload is handed over exactly once.
func (p *Populator) Populate(path, emergency string, opts Options) bool {
	emergencyWritten := false
	if emergency != "" {
		emergencyWritten = p.store.AppendText(path, emergency)
		if !emergencyWritten {
			p.log.Warn("failed to write emergency section", "path", path)
		}
	}

	if opts.LogcatMainLines > 0 || opts.LogcatSystemLines > 0 || opts.LogcatEventsLines > 0 {
		p.section(path, "logcat", func() (string, error) {
			if p.delegates.LogcatExcerpt == nil {
				return "", nil
			}
			return p.delegates.LogcatExcerpt(opts.LogcatMainLines, opts.LogcatSystemLines, opts.LogcatEventsLines)
		})
	}

	if opts.DumpDescriptors {
		p.section(path, "open descriptors", nilSafe(p.delegates.OpenDescriptors))
	}

	if opts.DumpNetwork {
		p.section(path, "network", nilSafe(p.delegates.NetworkSnapshot))
	}

	p.section(path, "memory", nilSafe(p.delegates.MemorySnapshot))

	if opts.Foreground && p.delegates.ApplicationForeground != nil {
		p.section(path, "foreground", func() (string, error) {
			state := "no"
			if p.delegates.ApplicationForeground() {
				state = "yes"
			}
			return fmt.Sprintf("foreground:\n%s\n\n", state), nil
		})
	}

	if opts.ThreadDump != nil {
		p.section(path, "other threads", opts.ThreadDump)
	}

	return emergencyWritten
}

// section runs one delegate and appends its output, swallowing every
// failure mode: delegate error, delegate panic, append failure.
func (p *Populator) section(path, name string, fn func() (string, error)) {
	text, err := p.runDelegate(name, fn)
	if err != nil {
		p.log.Warn("diagnostic section failed", "section", name, "error", err)
		return
	}
	if text == "" {
		return
	}
	if !p.store.AppendText(path, text) {
		p.log.Warn("failed to append diagnostic section", "section", name, "path", path)
	}
}

// runDelegate invokes fn with panic containment. A collaborator living in
// the hosting application must not be able to abort the capture.
func (p *Populator) runDelegate(name string, fn func() (string, error)) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("delegate panicked: %v", r)
		}
	}()
	return fn()
}

func nilSafe(fn func() (string, error)) func() (string, error) {
	return func() (string, error) {
		if fn == nil {
			return "", nil
		}
		return fn()
	}
}

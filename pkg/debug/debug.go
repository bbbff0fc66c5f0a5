// Package debug holds process-wide verbosity switches for hot paths such as
// per-tick guard decisions and per-face filter verdicts, which are too
// chatty for the structured log.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

var (
	enabled  atomic.Bool
	tracking atomic.Bool

	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

// SetEnabled turns general debug output on or off.
func SetEnabled(v bool) { enabled.Store(v) }

// Enabled reports whether general debug output is on.
func Enabled() bool { return enabled.Load() }

// SetTracking turns per-tick scheduler and filter traces on or off
// (--debug-tracking).
func SetTracking(v bool) { tracking.Store(v) }

// Tracking reports whether tracking traces are on.
func Tracking() bool { return tracking.Load() }

// SetOutput redirects debug output. Used by tests.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

// Log prints a message only if debug mode is enabled
func Log(format string, args ...any) {
	if enabled.Load() {
		write(format, args...)
	}
}

// TrackLog prints a message only if tracking debug mode is enabled
func TrackLog(format string, args ...any) {
	if tracking.Load() {
		write(format, args...)
	}
}

func write(format string, args ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(out, format, args...)
}

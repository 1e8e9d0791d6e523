// Package probe is the boundary a watched program imports. P returns its
// argument unchanged and, while capture is enabled, appends one observation
// to the probe log so the watch session can echo the value back into the
// source file as a comment.
//
// Capture defaults to disabled: importing this package outside a watch cycle
// never writes anything.
package probe

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"probewatch/internal/protocol"
)

// Environment contract with the orchestrator. A subprocess run receives the
// capture flag and log destination through these variables.
const (
	EnvCapture = "PROBEWATCH_CAPTURE"
	EnvLog     = "PROBEWATCH_LOG"
)

// DefaultLogPath is used when PROBEWATCH_LOG is unset.
const DefaultLogPath = ".probewatch.log"

var (
	enabled atomic.Bool
	logPath atomic.Value // string
	logMu   sync.Mutex
)

func init() {
	if os.Getenv(EnvCapture) == "1" {
		enabled.Store(true)
	}
	if p := os.Getenv(EnvLog); p != "" {
		logPath.Store(p)
	} else {
		logPath.Store(DefaultLogPath)
	}
}

// SetEnabled flips the capture flag for in-process runs. The orchestrator is
// the only intended caller; watched programs must not touch it.
func SetEnabled(on bool) { enabled.Store(on) }

// SetLogPath overrides the log destination for in-process runs.
func SetLogPath(path string) { logPath.Store(path) }

// P returns v unchanged. While capture is enabled it records the caller's
// file and line together with a rendering of v. Calls without a resolvable
// caller frame are dropped silently; probing never fails the probed program.
func P(v any) any {
	if !enabled.Load() {
		return v
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok || file == "" || line < 1 {
		return v
	}
	if i := strings.IndexByte(file, '?'); i >= 0 {
		file = file[:i]
	}
	appendEntry(protocol.Entry{File: file, Line: line, Result: protocol.Render(v)})
	return v
}

// Tap is the coordinate-carrying variant used by instrumented interpreter
// runs, where the Go runtime cannot see interpreted frames.
func Tap(file string, line, col int, v any) any {
	if !enabled.Load() {
		return v
	}
	appendEntry(protocol.Entry{File: file, Line: line, Column: col, Result: protocol.Render(v)})
	return v
}

func appendEntry(e protocol.Entry) {
	logMu.Lock()
	defer logMu.Unlock()
	path := logPath.Load().(string)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	// Paths are stored relative to the log's directory: the one base both
	// sides of the log share.
	_, _ = f.WriteString(protocol.Encode(filepath.Dir(path), e) + "\n")
}

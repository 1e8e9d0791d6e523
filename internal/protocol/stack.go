package protocol

import "strings"

// FromStack derives an entry from a raw textual stack trace in the format of
// runtime/debug.Stack: a goroutine header followed by pairs of a function
// line and a tab-indented "path:line[:column] +0x..." location line. The
// first located frame belongs to the probe itself; the entry is built from
// the second, the probe's immediate caller. A ?query suffix on the path
// (cache busting in generated artifacts) is ignored.
//
// Reports false when no caller frame can be located. Probes invoked from
// contexts without a file-backed caller are unsupported and dropped silently.
func FromStack(stack string, value any) (Entry, bool) {
	var locs []string
	for _, line := range strings.Split(stack, "\n") {
		if strings.HasPrefix(line, "\t") {
			locs = append(locs, strings.TrimSpace(line))
		}
	}
	if len(locs) < 2 {
		return Entry{}, false
	}
	loc := locs[1]
	if i := strings.IndexByte(loc, ' '); i >= 0 {
		loc = loc[:i] // drop the trailing " +0x..." offset
	}
	file, line, col, ok := splitLocation(loc)
	if !ok || file == "" || line < 1 {
		return Entry{}, false
	}
	if i := strings.IndexByte(file, '?'); i >= 0 {
		file = file[:i]
	}
	return Entry{File: file, Line: line, Column: col, Result: Render(value)}, true
}

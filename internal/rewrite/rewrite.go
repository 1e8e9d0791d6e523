// Package rewrite inserts, replaces, and strips probe annotations in source
// text. Annotations come in two forms: a trailing comment on the line where a
// call expression ends, and a block comment inserted right after that line
// when any rendered value spans multiple lines. Everything outside the
// annotations is left byte-for-byte untouched.
package rewrite

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Annotation wire format. Changing any of these is a breaking format change:
// they are used both for writing and for recognizing prior annotations.
const (
	TrailingMarker = " //=> "
	BlockOpen      = "/*=> "
	BlockClose     = "*/"
)

// Entry locates one probe observation in authored-source coordinates.
type Entry struct {
	Line   int // 1-based
	Column int // 1-based, 0 = unknown
	Result string
}

// Strip removes every annotation, trailing and block, leaving all other text
// and line breaks in place. It is the identity on marker-free text and
// idempotent on already-stripped text.
func Strip(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		if isBlockOpen(lines[i]) {
			// Drop every line through the first closing marker.
			for i < len(lines) && !isBlockClose(lines[i]) {
				i++
			}
			continue
		}
		line := lines[i]
		if idx := strings.Index(line, TrailingMarker); idx >= 0 {
			line = line[:idx]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// StripTrailing removes only trailing annotations. Used within a cycle so
// that line numbers reported by the just-executed artifact stay valid: block
// regions are replaced in place by Apply instead.
func StripTrailing(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, TrailingMarker); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

// Apply writes one annotation per call-site end-line for the given entries.
// Entries sharing a source line render in call order, and groups whose call
// expressions end on the same line merge into that line's single annotation.
// Groups that do not anchor a call expression, or whose call expression never
// closes, are discarded. The output is deterministic for a given input, and a
// stale block already attached to a call site is replaced rather than
// accumulated.
func Apply(text string, entries []Entry) string {
	if len(entries) == 0 {
		return text
	}
	lines := strings.Split(text, "\n")

	// Group by source line, keeping call order within each group.
	groups := make(map[int][]Entry)
	var order []int
	for _, e := range entries {
		if _, ok := groups[e.Line]; !ok {
			order = append(order, e.Line)
		}
		groups[e.Line] = append(groups[e.Line], e)
	}
	sort.Ints(order)

	// Deleted lines are overwritten with a per-run sentinel and filtered once
	// at the end, and insertions are buffered by original line index, so
	// every group still indexes the original line numbering.
	sentinel := "\x00probewatch:" + uuid.NewString()
	inserts := make(map[int][]string)

	// Scan every group before mutating any line: a trailing write could
	// otherwise land on a line a later group has yet to depth-scan. Groups
	// resolving to the same end-line merge into one annotation.
	type pending struct {
		results   []string
		multiline bool
	}
	byEnd := make(map[int]*pending)
	var endOrder []int

	for _, ln := range order {
		group := groups[ln]
		if ln < 1 || ln > len(lines) {
			continue
		}

		// Leftmost known column anchors the search; a group with no known
		// column starts at column 1.
		anchor := 0
		for _, e := range group {
			if e.Column > 0 && (anchor == 0 || e.Column < anchor) {
				anchor = e.Column
			}
		}
		if anchor == 0 {
			anchor = 1
		}

		row := lines[ln-1]
		if anchor-1 >= len(row) {
			continue
		}
		openIdx := strings.IndexByte(row[anchor-1:], '(')
		if openIdx < 0 {
			continue // not a call expression
		}
		openIdx += anchor - 1

		endLine, ok := findCallEnd(lines, ln-1, openIdx+1)
		if !ok {
			continue
		}

		p, seen := byEnd[endLine]
		if !seen {
			p = &pending{}
			byEnd[endLine] = p
			endOrder = append(endOrder, endLine)
		}
		for _, e := range group {
			p.results = append(p.results, e.Result)
			if strings.Contains(e.Result, "\n") {
				p.multiline = true
			}
		}
	}

	for _, endLine := range endOrder {
		p := byEnd[endLine]

		// At most one annotation construct per call site: whatever block is
		// already attached to this end-line goes away.
		markBlockDeleted(lines, endLine+1, sentinel)

		if p.multiline {
			inserts[endLine] = blockLines(leadingWhitespace(lines[endLine]), p.results)
		} else {
			end := lines[endLine]
			if idx := strings.Index(end, TrailingMarker); idx >= 0 {
				end = end[:idx]
			}
			lines[endLine] = end + TrailingMarker + strings.Join(p.results, ", ")
		}
	}

	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if line == sentinel {
			continue
		}
		out = append(out, line)
		out = append(out, inserts[i]...)
	}
	return strings.Join(out, "\n")
}

// findCallEnd scans forward from just past an opening parenthesis, tracking
// delimiter depth across line boundaries, and reports the index of the line
// on which the call expression closes. False when end-of-text is reached
// before the depth returns to zero.
func findCallEnd(lines []string, lineIdx, colIdx int) (int, bool) {
	depth := 1
	for i := lineIdx; i < len(lines); i++ {
		start := 0
		if i == lineIdx {
			start = colIdx
		}
		for j := start; j < len(lines[i]); j++ {
			switch lines[i][j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// markBlockDeleted overwrites a block annotation starting at lines[idx] with
// the sentinel, through its closing line. No-op when lines[idx] does not open
// a block.
func markBlockDeleted(lines []string, idx int, sentinel string) {
	if idx >= len(lines) || !isBlockOpen(lines[idx]) {
		return
	}
	for idx < len(lines) {
		closing := isBlockClose(lines[idx])
		lines[idx] = sentinel
		if closing {
			return
		}
		idx++
	}
}

// blockLines renders a block annotation: the open marker carries the first
// content line, continuation lines align under the marker, and every line
// replicates the call-end line's leading whitespace.
func blockLines(indent string, results []string) []string {
	parts := strings.Split(strings.Join(results, ", "), "\n")
	cont := indent + strings.Repeat(" ", len(BlockOpen))
	out := make([]string, 0, len(parts)+1)
	out = append(out, indent+BlockOpen+parts[0])
	for _, p := range parts[1:] {
		out = append(out, cont+p)
	}
	return append(out, indent+BlockClose)
}

func isBlockOpen(line string) bool {
	idx := strings.Index(line, BlockOpen)
	return idx >= 0 && strings.TrimSpace(line[:idx]) == ""
}

func isBlockClose(line string) bool {
	return strings.HasSuffix(strings.TrimRight(line, " \t"), BlockClose)
}

func leadingWhitespace(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' {
			return s[:i]
		}
	}
	return s
}

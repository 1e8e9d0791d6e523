// Package protocol encodes probe observations as single log lines so that
// arbitrary result text survives line-oriented parsing.
package protocol

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// Delimiter separates the location segment from the escaped result.
const Delimiter = " :: "

// Entry is one probe observation: where the probe was called and what it saw.
// Column 0 means the column is unknown; position mapping needs a column, so
// unknown-column entries never cross a mapping table.
type Entry struct {
	File   string
	Line   int // 1-based
	Column int // 1-based, 0 = unknown
	Result string
}

// Encode renders the entry as one log line:
//
//	relativePath:line[:column] :: escaped-result
//
// The file path is stored relative to baseDir. The result is query-escaped so
// embedded newlines or the delimiter itself cannot break the line format.
func Encode(baseDir string, e Entry) string {
	path := e.File
	if rel, err := filepath.Rel(baseDir, e.File); err == nil {
		path = rel
	}
	loc := path + ":" + strconv.Itoa(e.Line)
	if e.Column > 0 {
		loc += ":" + strconv.Itoa(e.Column)
	}
	return loc + Delimiter + url.QueryEscape(e.Result)
}

// Decode parses one log line back into an entry. It reports false for lines
// missing the delimiter or carrying an unparseable location; callers drop
// such lines instead of failing the batch.
func Decode(baseDir, line string) (Entry, bool) {
	idx := strings.Index(line, Delimiter)
	if idx < 0 {
		return Entry{}, false
	}
	result, err := url.QueryUnescape(line[idx+len(Delimiter):])
	if err != nil {
		return Entry{}, false
	}
	file, ln, col, ok := splitLocation(line[:idx])
	if !ok || file == "" || ln < 1 || col < 0 {
		return Entry{}, false
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(baseDir, file)
	}
	return Entry{File: file, Line: ln, Column: col, Result: result}, true
}

// splitLocation parses "path:line" or "path:line:column". The path itself may
// contain colons (Windows drives), so the numbers are taken from the right.
func splitLocation(loc string) (file string, line, col int, ok bool) {
	parts := strings.Split(loc, ":")
	if len(parts) < 2 {
		return "", 0, 0, false
	}
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", 0, 0, false
	}
	if len(parts) >= 3 {
		if m, err := strconv.Atoi(parts[len(parts)-2]); err == nil {
			return strings.Join(parts[:len(parts)-2], ":"), m, n, true
		}
	}
	return strings.Join(parts[:len(parts)-1], ":"), n, 0, true
}

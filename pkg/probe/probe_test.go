package probe

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"probewatch/internal/protocol"
)

func useTempLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.log")
	SetLogPath(path)
	t.Cleanup(func() {
		SetEnabled(false)
		SetLogPath(DefaultLogPath)
	})
	return path
}

func readEntries(t *testing.T, logPath string) []protocol.Entry {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var out []protocol.Entry
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		e, ok := protocol.Decode(filepath.Dir(logPath), line)
		if !ok {
			t.Fatalf("undecodable log line %q", line)
		}
		out = append(out, e)
	}
	return out
}

func TestP_DisabledWritesNothing(t *testing.T) {
	logPath := useTempLog(t)
	SetEnabled(false)

	if got := P("hi"); got != "hi" {
		t.Errorf("P changed its argument: %v", got)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("disabled probe wrote a log")
	}
}

func TestP_RecordsCallerLocation(t *testing.T) {
	logPath := useTempLog(t)
	SetEnabled(true)

	_, thisFile, _, _ := runtime.Caller(0)
	got := P(41 + 1)
	_, _, callLine, _ := runtime.Caller(0)
	callLine-- // P was on the previous line

	if got != 42 {
		t.Errorf("P changed its argument: %v", got)
	}
	entries := readEntries(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.File != thisFile || e.Line != callLine {
		t.Errorf("got %s:%d, want %s:%d", e.File, e.Line, thisFile, callLine)
	}
	if e.Column != 0 {
		t.Errorf("runtime frames carry no column, got %d", e.Column)
	}
	if e.Result != "42" {
		t.Errorf("got result %q", e.Result)
	}
}

func TestTap_RecordsGivenCoordinates(t *testing.T) {
	logPath := useTempLog(t)
	SetEnabled(true)

	if got := Tap("/work/script.go", 9, 5, "x"); got != "x" {
		t.Errorf("Tap changed its argument: %v", got)
	}
	entries := readEntries(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.File != "/work/script.go" || e.Line != 9 || e.Column != 5 {
		t.Errorf("got %s:%d:%d", e.File, e.Line, e.Column)
	}
	if e.Result != `"x"` {
		t.Errorf("got result %q", e.Result)
	}
}

func TestP_AppendsAcrossCalls(t *testing.T) {
	logPath := useTempLog(t)
	SetEnabled(true)

	P(1)
	P(2)

	entries := readEntries(t, logPath)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Result != "1" || entries[1].Result != "2" {
		t.Errorf("entries out of order: %+v", entries)
	}
}

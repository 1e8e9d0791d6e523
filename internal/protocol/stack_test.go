package protocol

import "testing"

func TestFromStack_SecondFrameIsCaller(t *testing.T) {
	stack := "goroutine 1 [running]:\n" +
		"probewatch/pkg/probe.P(...)\n" +
		"\t/work/probe/probe.go:42 +0x19\n" +
		"main.main()\n" +
		"\t/work/script.go:9 +0x2c\n"

	e, ok := FromStack(stack, 7)
	if !ok {
		t.Fatal("expected a caller frame")
	}
	if e.File != "/work/script.go" || e.Line != 9 {
		t.Errorf("got %s:%d, want /work/script.go:9", e.File, e.Line)
	}
	if e.Result != "7" {
		t.Errorf("got result %q, want 7", e.Result)
	}
}

func TestFromStack_QuerySuffixSkipped(t *testing.T) {
	stack := "goroutine 1 [running]:\n" +
		"probe.P(...)\n" +
		"\t/work/probe.go:1 +0x0\n" +
		"main.main()\n" +
		"\t/work/script.go?v=1700000000:9:5 +0x2c\n"

	e, ok := FromStack(stack, nil)
	if !ok {
		t.Fatal("expected a caller frame")
	}
	if e.File != "/work/script.go" {
		t.Errorf("cache-busting suffix not removed: %q", e.File)
	}
	if e.Line != 9 || e.Column != 5 {
		t.Errorf("got %d:%d, want 9:5", e.Line, e.Column)
	}
}

func TestFromStack_NoCallerFrame(t *testing.T) {
	cases := []string{
		"",
		"goroutine 1 [running]:\nprobe.P(...)\n\t/work/probe.go:1 +0x0\n",
		"goroutine 1 [running]:\nprobe.P(...)\n\t/work/probe.go:1\nmain.main()\n\tgarbage\n",
	}
	for _, stack := range cases {
		if _, ok := FromStack(stack, 1); ok {
			t.Errorf("FromStack succeeded for %q, want silent drop", stack)
		}
	}
}

package runner

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"probewatch/pkg/probe"
)

// DefaultEntry is the designated entry function a watched file may export.
// Top-level code runs regardless; the entry function is invoked when present
// and awaited to completion.
const DefaultEntry = "main.Main"

// probeCall is the probe call prefix rewritten during instrumentation.
const probeCall = "probe.P("

// YaegiRunner interprets the artifact in-process with yaegi, avoiding a
// compile step per save. Interpreted frames are invisible to the Go runtime,
// so probe calls are instrumented with their own coordinates before
// evaluation: every `probe.P(` becomes `probe.Tap(file, line, col, `.
type YaegiRunner struct {
	LogPath string
	Entry   string // entry function name, DefaultEntry when empty
	Logger  *zap.Logger
}

func (r *YaegiRunner) Run(ctx context.Context, artifact string) (err error) {
	src, err := os.ReadFile(artifact)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	// Interpreted panics surface as runtime panics out of Eval; a broken
	// save is a transient fault, not a session fault.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("interpret %s: panic: %v", artifact, rec)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(probeSymbols()); err != nil {
		return fmt.Errorf("load probe symbols: %w", err)
	}

	probe.SetLogPath(r.LogPath)
	probe.SetEnabled(true)
	defer probe.SetEnabled(false)

	if _, err := i.Eval(Instrument(string(src), artifact)); err != nil {
		return fmt.Errorf("eval %s: %w", artifact, err)
	}

	entry := r.Entry
	if entry == "" {
		entry = DefaultEntry
	}
	v, err := i.Eval(entry)
	if err != nil {
		return nil // no designated entry function; top-level code already ran
	}
	return callEntry(ctx, v)
}

// callEntry invokes the designated entry function and awaits its completion.
func callEntry(ctx context.Context, v reflect.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch fn := v.Interface().(type) {
	case func():
		fn()
		return nil
	case func() error:
		return fn()
	default:
		return nil
	}
}

// probeSymbols exposes the probe boundary to interpreted programs under the
// module's real import path.
func probeSymbols() interp.Exports {
	return interp.Exports{
		"probewatch/pkg/probe/probe": {
			"P":              reflect.ValueOf(probe.P),
			"Tap":            reflect.ValueOf(probe.Tap),
			"DefaultLogPath": reflect.ValueOf(probe.DefaultLogPath),
		},
	}
}

// Instrument rewrites probe.P call sites into coordinate-carrying probe.Tap
// calls. Coordinates are 1-based and refer to the original text; the added
// arguments keep the parentheses balanced, so the expression shape the
// rewrite engine scans for is unchanged. Matches inside string, raw-string,
// and rune literals and inside comments are left alone: rewriting those would
// change program text rather than a call expression.
func Instrument(src, file string) string {
	var b strings.Builder
	b.Grow(len(src))
	line, col := 1, 1
	emit := func(c byte) {
		b.WriteByte(c)
		if c == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	const (
		code = iota
		str      // "..."
		raw      // `...`
		char     // '...'
		lineCmt  // // ...
		blockCmt // /* ... */
	)
	state := code

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch state {
		case code:
			if c == 'p' && strings.HasPrefix(src[i:], probeCall) {
				fmt.Fprintf(&b, "probe.Tap(%q, %d, %d, ", file, line, col)
				col += len(probeCall)
				i += len(probeCall) - 1
				continue
			}
			switch c {
			case '"':
				state = str
			case '`':
				state = raw
			case '\'':
				state = char
			case '/':
				if i+1 < len(src) && src[i+1] == '/' {
					state = lineCmt
				} else if i+1 < len(src) && src[i+1] == '*' {
					state = blockCmt
				}
			}
		case str, char:
			quote := byte('"')
			if state == char {
				quote = '\''
			}
			if c == '\\' && i+1 < len(src) {
				emit(c)
				i++
				c = src[i]
			} else if c == quote {
				state = code
			}
		case raw:
			if c == '`' {
				state = code
			}
		case lineCmt:
			if c == '\n' {
				state = code
			}
		case blockCmt:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				emit(c)
				i++
				c = src[i]
				state = code
			}
		}
		emit(c)
	}
	return b.String()
}

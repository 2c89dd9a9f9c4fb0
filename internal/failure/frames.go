package failure

import (
	"fmt"
	"runtime"
	"strings"
)

// Frame is one resolved stack frame.
type Frame struct {
	Function string
	Path     string
	Line     int
}

// Valid reports whether the frame points at a source line.
func (f Frame) Valid() bool {
	return f.Path != "" && f.Line > 0
}

func (f Frame) String() string {
	if !f.Valid() {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", f.Path, f.Line)
}

// internalPrefixes lists function-name prefixes that belong to the harness
// itself or the Go runtime. Frames matching them are dropped from reports.
var internalPrefixes = []string{
	"runtime.",
	"github.com/roach88/anaphora/internal/bdd.",
	"github.com/roach88/anaphora/internal/failure.",
}

// Capture returns the current goroutine's stack, innermost first.
// skip counts frames above the caller of Capture.
func Capture(skip int) []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var out []Frame
	for {
		fr, more := frames.Next()
		out = append(out, Frame{Function: fr.Function, Path: fr.File, Line: fr.Line})
		if !more {
			break
		}
	}
	return out
}

// Caller returns the single frame skip levels above the caller of Caller.
func Caller(skip int) Frame {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Frame{}
	}
	fn := ""
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
	}
	return Frame{Function: fn, Path: file, Line: line}
}

// Trim removes harness and runtime frames, keeping user code only.
func Trim(frames []Frame) []Frame {
	if len(frames) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(frames))
	for _, fr := range frames {
		if isInternal(fr.Function) {
			continue
		}
		out = append(out, fr)
	}
	return out
}

func isInternal(function string) bool {
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}

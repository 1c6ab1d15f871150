package debug

import (
	"fmt"
	"runtime"
	"strings"
)

// Frame represents a single captured stack frame.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	PC       uint64 `json:"pc"`
	Line     int    `json:"line"`
}

// CaptureBacktrace records up to maxFrames frames of the current call
// stack, skipping the given number of callers above this function.
func CaptureBacktrace(skip, maxFrames int) []Frame {
	if maxFrames <= 0 {
		return nil
	}

	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	out := make([]Frame, 0, n)

	for {
		fr, more := frames.Next()
		out = append(out, Frame{
			Function: fr.Function,
			File:     fr.File,
			PC:       uint64(fr.PC),
			Line:     fr.Line,
		})
		if !more {
			break
		}
	}

	return out
}

// FormatBacktrace renders frames one per line in report order.
func FormatBacktrace(frames []Frame) string {
	var b strings.Builder
	for i, fr := range frames {
		fmt.Fprintf(&b, "#%02d pc %#x %s (%s:%d)\n", i, fr.PC, fr.Function, fr.File, fr.Line)
	}
	return b.String()
}

package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	ColorReset   = "\033[0m"
	ColorBold    = "\033[1m"
	ColorRed     = "\033[31m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorMagenta = "\033[35m"
	ColorCyan    = "\033[36m"
	ColorGray    = "\033[90m"
)

var (
	consoleMu  sync.Mutex
	consoleOut io.Writer = os.Stdout
	noColor    atomic.Bool
)

// SetConsole redirects console lines, e.g. to a buffer in tests. Colors are
// dropped when plain is set.
func SetConsole(w io.Writer, plain bool) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	consoleOut = w
	noColor.Store(plain)
}

// Console returns the current console writer.
func Console() io.Writer {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	return consoleOut
}

func TimeHM() string {
	return time.Now().Format("15:04")
}

func Colorize(s string, color string) string {
	if color == "" || noColor.Load() {
		return s
	}
	return color + s + ColorReset
}

// Exclusive runs fn with the console writer while no other console output can
// interleave. fn must not call Line, Linef, Console or Exclusive.
func Exclusive(fn func(w io.Writer)) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	fn(consoleOut)
}

// Line prints a single console line prefixed with HH:MM.
func Line(label string, labelColor string, msg string) {
	if label != "" {
		label = Colorize(label, labelColor)
	}
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if label != "" {
		fmt.Fprintf(consoleOut, "%s %s %s\n", TimeHM(), label, msg)
		return
	}
	fmt.Fprintf(consoleOut, "%s %s\n", TimeHM(), msg)
}

func Linef(label string, labelColor string, format string, args ...any) {
	Line(label, labelColor, fmt.Sprintf(format, args...))
}

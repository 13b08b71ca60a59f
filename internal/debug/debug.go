// Package debug holds the process-wide verbosity switches and builds the
// structured logger handed to the crawler's components.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

var (
	enabled     = os.Getenv("BUGCRAWL_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Options configures NewLogger.
type Options struct {
	// Verbose logs at debug level. Enabled() also turns it on.
	Verbose bool
	// JSON forces the JSON handler. Without it, JSON is still used when w
	// is not a terminal.
	JSON bool
}

// NewLogger returns a logger writing to w. Quiet mode raises the level to
// warnings.
func NewLogger(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case opts.Verbose || Enabled():
		level = slog.LevelDebug
	case quietMode:
		level = slog.LevelWarn
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.JSON || !isTerminal(w) {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

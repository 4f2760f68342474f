package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Level is the severity of a structured event
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a structured record of one cluster call and its outcome
type Event struct {
	Level   Level
	Call    string
	Index   string
	Tier    string
	Outcome string
	Detail  string
}

// Logger handles operational logging to stderr, keeping stdout clean for data output
type Logger struct {
	writer io.Writer
	quiet  bool
	debug  bool
}

// New creates a new logger that writes to stderr
func New(quiet, debug bool) *Logger {
	return NewWithWriter(os.Stderr, quiet, debug)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, quiet, debug bool) *Logger {
	return &Logger{
		writer: w,
		quiet:  quiet,
		debug:  debug,
	}
}

// Infof logs an informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	if !l.quiet {
		_, _ = fmt.Fprintf(l.writer, format+"\n", args...)
	}
}

// Successf logs a success message
func (l *Logger) Successf(format string, args ...interface{}) {
	if !l.quiet {
		_, _ = fmt.Fprintf(l.writer, "✓ "+format+"\n", args...)
	}
}

// Warningf logs a warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	if !l.quiet {
		_, _ = fmt.Fprintf(l.writer, "Warning: "+format+"\n", args...)
	}
}

// Errorf logs an error message (always shown, even in quiet mode)
func (l *Logger) Errorf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(l.writer, "Error: "+format+"\n", args...)
}

// Debugf logs a debug message (only shown when debug mode is enabled)
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.debug {
		_, _ = fmt.Fprintf(l.writer, "DEBUG: "+format+"\n", args...)
	}
}

// Println prints a blank line (for spacing)
func (l *Logger) Println() {
	if !l.quiet {
		_, _ = fmt.Fprintln(l.writer)
	}
}

// Event writes a structured record as a single key=value line.
// Errors are always written, debug events only in debug mode and
// everything else is suppressed in quiet mode.
func (l *Logger) Event(e Event) {
	if !l.enabled(e.Level) {
		return
	}

	var b strings.Builder
	writeField(&b, "level", string(e.Level))
	writeField(&b, "call", e.Call)
	writeField(&b, "index", e.Index)
	writeField(&b, "tier", e.Tier)
	writeField(&b, "outcome", e.Outcome)
	writeField(&b, "detail", e.Detail)
	_, _ = fmt.Fprintln(l.writer, b.String())
}

func (l *Logger) enabled(level Level) bool {
	switch level {
	case LevelError:
		return true
	case LevelDebug:
		return l.debug
	default:
		return !l.quiet
	}
}

// writeField appends key=value, quoting values with spaces. Empty values are skipped.
func writeField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(key)
	b.WriteByte('=')
	if strings.ContainsAny(value, " \t\n\"=") {
		fmt.Fprintf(b, "%q", value)
		return
	}
	b.WriteString(value)
}

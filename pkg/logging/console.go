package logging

import (
	"fmt"
	"io"
	"os"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
)

// Logger prints operator-facing console messages. Each message is also
// forwarded to the run log at the matching level.
type Logger struct {
	out     io.Writer
	verbose bool
}

// New creates a new console Logger writing to stdout.
func New(verbose bool) *Logger {
	enableColors()
	return &Logger{out: os.Stdout, verbose: verbose}
}

// SetOutput changes the output destination.
func (l *Logger) SetOutput(w io.Writer) {
	l.out = w
}

func (l *Logger) colorPrintf(color, format string, v ...interface{}) {
	fmt.Fprintf(l.out, "%s%s%s\n", color, fmt.Sprintf(format, v...), colorReset)
}

// Printf prints a regular message.
func (l *Logger) Printf(format string, v ...interface{}) {
	fmt.Fprintf(l.out, format+"\n", v...)
}

// Success prints a success message in green.
func (l *Logger) Success(format string, v ...interface{}) {
	l.colorPrintf(colorGreen, format, v...)
	emit(LevelInfo, fmt.Sprintf(format, v...))
}

// Warning prints a warning message in yellow.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.colorPrintf(colorYellow, format, v...)
	emit(LevelWarn, fmt.Sprintf(format, v...))
}

// Error prints an error message in red.
func (l *Logger) Error(format string, v ...interface{}) {
	l.colorPrintf(colorRed, format, v...)
	emit(LevelError, fmt.Sprintf(format, v...))
}

// Debug prints a debug message in blue when verbose.
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.verbose {
		l.colorPrintf(colorBlue, format, v...)
	}
	emit(LevelDebug, fmt.Sprintf(format, v...))
}

// Fatal prints an error message in red and exits with code.
func (l *Logger) Fatal(code int, format string, v ...interface{}) {
	l.Error(format, v...)
	CloseLogger()
	os.Exit(code)
}

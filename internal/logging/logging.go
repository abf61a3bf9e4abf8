package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// ProjectLogName is the append-only log kept inside every project directory.
const ProjectLogName = "remixer.log"

// New creates the console logger. Verbose switches the level to debug.
func New(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           level,
	})
}

// Discard returns a logger that writes nowhere (tests, dry runs).
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OpenProjectLog opens <projectPath>/remixer.log for appending.
func OpenProjectLog(projectPath string) (*os.File, error) {
	if err := os.MkdirAll(projectPath, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(projectPath, ProjectLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// WithProjectLog returns a logger that writes logfmt lines to both the
// console writer and the project log file.
func WithProjectLog(console io.Writer, projectLog io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(io.MultiWriter(console, projectLog), log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
		Formatter:       log.LogfmtFormatter,
	})
}

// WithComponent creates a child logger with a component field.
func WithComponent(l *log.Logger, component string) *log.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With("component", component)
}

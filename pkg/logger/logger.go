// Package logger builds the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a slog.Logger writing human-readable lines to stderr.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stderr, debug)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	})
	return slog.New(handler)
}

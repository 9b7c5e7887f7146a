package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
)

// Logger is the process-wide logger. It discards everything until SetupLogger
// is called so packages can log unconditionally.
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	FilePermission = 0644
	TimeFormat     = "2006-01-02 15:04:05"
)

func SetupLogger(w io.Writer, verbose bool) {
	Logger = NewLogger(w, verbose)
}

// NewLogger builds a tint handler backed logger without touching the global.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: TimeFormat,
		NoColor:    w != os.Stdout && w != os.Stderr,
	}))
}

func SetupLogWriter(logPath string) (io.Writer, *os.File, error) {
	// stdout carries the console report
	if logPath == "" {
		return os.Stderr, nil, nil
	}

	if dir := filepath.Dir(logPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FilePermission)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return io.MultiWriter(os.Stderr, logFile), logFile, nil
}

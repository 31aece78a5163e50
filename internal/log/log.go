// Package log provides the shell's debug log.
// Messages are written to a file so they never interleave with job output;
// logging is off unless enabled with --debug or log.debug in the config.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Category groups related log messages.
type Category string

const (
	CatWorker  Category = "worker"  // Job table and state machine
	CatLaunch  Category = "launch"  // fork/exec and process groups
	CatSignal  Category = "signal"  // Signal relay
	CatRepl    Category = "repl"    // Front end loop
	CatHistory Category = "history" // History file load/save
	CatConfig  Category = "config"  // Configuration loading
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init opens path for appending and routes all log calls to it.
// Returns a cleanup function that closes the file.
func Init(path string, level slog.Level) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // user-chosen debug log path
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	SetOutput(f, level)
	return func() {
		SetOutput(nil, level)
		_ = f.Close()
	}, nil
}

// SetOutput points the logger at w. A nil writer disables logging.
func SetOutput(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		logger = nil
		return
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	emit(slog.LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	emit(slog.LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	emit(slog.LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	emit(slog.LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	emit(slog.LevelError, cat, msg, fields...)
}

func emit(level slog.Level, cat Category, msg string, fields ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		return
	}
	l.Log(context.Background(), level, msg, append([]any{"cat", string(cat)}, fields...)...)
}

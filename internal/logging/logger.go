package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level names accepted by NewLogger. Matching is case-insensitive.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the name of the log file created inside the log directory.
const FileName = "releasetrain.log"

// output is the destination shared by a logger and all of its children.
type output struct {
	mu   sync.Mutex
	file *os.File
}

// Logger writes JSON log entries tagged with the release context a child
// logger was derived for. It is safe for concurrent use.
type Logger struct {
	slog *slog.Logger
	out  *output
}

// NewLogger creates a Logger appending to {logDir}/releasetrain.log, or
// writing to stderr when logDir is empty. Entries below level are dropped;
// an unknown level means INFO.
func NewLogger(logDir string, level string) (*Logger, error) {
	if logDir == "" {
		return NewLoggerWriter(os.Stderr, level), nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(logDir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewLoggerWriter(file, level)
	l.out.file = file
	return l, nil
}

// NewLoggerWriter creates a Logger writing JSON entries to w.
func NewLoggerWriter(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{slog: slog.New(handler), out: &output{}}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a slog
// level. Unknown names yield slog.LevelInfo.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (l *Logger) child(s *slog.Logger) *Logger {
	return &Logger{slog: s, out: l.out}
}

// WithRun tags every entry with the release run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return l.child(l.slog.With(slog.String("run_id", runID)))
}

// WithProject tags every entry with the project name.
func (l *Logger) WithProject(project string) *Logger {
	return l.child(l.slog.With(slog.String("project", project)))
}

// WithStep tags every entry with the release step name.
func (l *Logger) WithStep(step string) *Logger {
	return l.child(l.slog.With(slog.String("step", step)))
}

// WithGroup tags every entry with the 1-based release group index.
func (l *Logger) WithGroup(group int) *Logger {
	return l.child(l.slog.With(slog.Int("group", group)))
}

// With returns a child Logger carrying alternating key-value pairs. Pairs
// whose key is not a string are dropped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	return l.child(l.slog.With(attrs...))
}

// Debug logs msg at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info logs msg at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn logs msg at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs msg at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Log(context.Background(), slog.LevelError, msg, args...)
}

// Close syncs and closes the log file. Loggers writing to stderr or a
// caller-supplied writer are left open. Closing twice is a no-op.
func (l *Logger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.file == nil {
		return nil
	}
	file := l.out.file
	l.out.file = nil
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return NewLoggerWriter(io.Discard, LevelError)
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NopLogger()
	}
	return l
}

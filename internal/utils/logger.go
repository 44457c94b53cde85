// Package utils provides shared utilities for the proxy.
package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
)

// LevelSuccess sits above Info so success lines always print.
const LevelSuccess = slog.LevelInfo + 2

// Logger wraps slog with colored output and debug mode support.
type Logger struct {
	mu           sync.RWMutex
	debugEnabled bool
	logger       *slog.Logger
}

// consoleHandler implements slog.Handler with per-level colored prefixes.
// Output goes to stderr so streamed responses on stdout stay clean.
type consoleHandler struct {
	out          io.Writer
	color        bool
	debugEnabled *bool
	mu           *sync.RWMutex
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level == slog.LevelDebug {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return *h.debugEnabled
	}
	return true
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var color, prefix string

	switch {
	case r.Level == slog.LevelDebug:
		color, prefix = colorMagenta, "[DEBUG]"
	case r.Level == LevelSuccess:
		color, prefix = colorGreen, "[SUCCESS]"
	case r.Level == slog.LevelInfo:
		color, prefix = colorBlue, "[INFO]"
	case r.Level == slog.LevelWarn:
		color, prefix = colorYellow, "[WARN]"
	case r.Level >= slog.LevelError:
		color, prefix = colorRed, "[ERROR]"
	default:
		color, prefix = colorReset, "[LOG]"
	}

	timestamp := r.Time.Format("15:04:05")
	var msg string
	if h.color {
		msg = fmt.Sprintf("%s%s %s%s %s\n", color, timestamp, prefix, colorReset, r.Message)
	} else {
		msg = fmt.Sprintf("%s %s %s\n", timestamp, prefix, r.Message)
	}

	_, err := h.out.Write([]byte(msg))
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h // attributes are ignored; messages are preformatted
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return h
}

// NewLogger creates a new Logger writing to stderr. Colors are suppressed
// when NO_COLOR is set.
func NewLogger() *Logger {
	l := &Logger{}
	l.logger = slog.New(&consoleHandler{
		out:          os.Stderr,
		color:        os.Getenv("NO_COLOR") == "",
		debugEnabled: &l.debugEnabled,
		mu:           &l.mu,
	})
	return l
}

// SetDebug enables or disables debug mode.
func (l *Logger) SetDebug(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugEnabled = enabled
}

// IsDebugEnabled returns true if debug mode is enabled.
func (l *Logger) IsDebugEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.debugEnabled
}

// Debug logs a debug message (only if debug mode is enabled).
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(fmt.Sprintf(msg, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

// Success logs a success message (green).
func (l *Logger) Success(msg string, args ...any) {
	l.logger.Log(context.Background(), LevelSuccess, fmt.Sprintf(msg, args...))
}

// DefaultLogger is the package-level logger instance.
var DefaultLogger = NewLogger()

// SetDebug sets the debug mode on the default logger.
func SetDebug(enabled bool) {
	DefaultLogger.SetDebug(enabled)
}

// IsDebugEnabled returns true if debug mode is enabled on the default logger.
func IsDebugEnabled() bool {
	return DefaultLogger.IsDebugEnabled()
}

// Debug logs using the default logger.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// Info logs using the default logger.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// Warn logs using the default logger.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// Error logs using the default logger.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// Success logs using the default logger.
func Success(msg string, args ...any) {
	DefaultLogger.Success(msg, args...)
}

// FormatDuration formats a duration in human-readable form (e.g. "1h23m45s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

package logging

import "sync"

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// SetDefault installs the process-wide logger. Passing nil disables
// package-level logging.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default returns the process-wide logger, or nil if none is installed.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Package-level helpers that no-op when no default logger is installed.
// Library code logs through these so it stays usable without wiring.

// Debug logs a debug event to the default logger
func Debug(category Category, eventType string, message string, details map[string]any) {
	if l := Default(); l != nil {
		l.Debug(category, eventType, message, details)
	}
}

// Info logs an info event to the default logger
func Info(category Category, eventType string, message string, details map[string]any) {
	if l := Default(); l != nil {
		l.Info(category, eventType, message, details)
	}
}

// Warn logs a warning event to the default logger
func Warn(category Category, eventType string, message string, details map[string]any) {
	if l := Default(); l != nil {
		l.Warn(category, eventType, message, details)
	}
}

// Error logs an error event to the default logger
func Error(category Category, eventType string, message string, details map[string]any) {
	if l := Default(); l != nil {
		l.Error(category, eventType, message, details)
	}
}

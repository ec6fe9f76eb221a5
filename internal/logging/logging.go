// Package logging provides the logging system for friday.
//
// Output channels:
//   - Console (stderr): human-readable lines filtered by level
//   - File: optional session log capturing every level
//   - Tracer (JSONL): structured runtime events, only active in debug mode
//
// Usage:
//
//	log, err := logging.New(logging.ConfigFromEnv())
//	if err != nil {
//	    // handle error
//	}
//	defer log.Close()
//
//	log.Info("compacted history", logging.TokensFreed(1200))
//	log.Event(logging.EventLoopRedirect, logging.Signature(sig))
//
// A nil *Logger is valid and discards everything, so components take one
// through an option and never check for nil themselves.
package logging

import (
	"io"
)

// Logger fans messages out to the console, file and tracer channels.
type Logger struct {
	config  Config
	console *ConsoleWriter
	file    *FileWriter
	tracer  *Tracer
	metrics *Metrics

	sessionID string

	// Component prefix (e.g., "context", "loop", "agent")
	prefix string
}

// New creates a new Logger instance.
func New(cfg Config) (*Logger, error) {
	consoleLevel := cfg.Level
	if cfg.Verbose || cfg.DebugMode {
		consoleLevel = LevelDebug
	}

	tracer, err := NewTracer(cfg.DebugDir, cfg.DebugMode)
	if err != nil {
		return nil, err
	}

	var file *FileWriter
	if cfg.LogDir != "" {
		file = NewFileWriter(cfg.LogDir)
	}

	return &Logger{
		config:    cfg,
		console:   NewConsoleWriter(consoleLevel),
		file:      file,
		tracer:    tracer,
		metrics:   NewMetrics(),
		sessionID: tracer.GetSessionID(),
	}, nil
}

// NewWriter creates a console-only logger writing to w. Used by tests and
// by callers that embed the runtime without touching the filesystem.
func NewWriter(w io.Writer, level Level) *Logger {
	console := NewConsoleWriter(level)
	console.SetOutput(w)
	return &Logger{
		config:  Config{Level: level},
		console: console,
		metrics: NewMetrics(),
	}
}

// WithPrefix returns a new logger with the given prefix.
// The prefix appears in log output as [prefix].
func (l *Logger) WithPrefix(prefix string) *Logger {
	if l == nil {
		return nil
	}
	clone := *l
	clone.prefix = prefix
	return &clone
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Field) {
	if l == nil {
		return
	}
	l.log(LevelDebug, msg, fields...)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, fields ...Field) {
	if l == nil {
		return
	}
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Field) {
	if l == nil {
		return
	}
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Field) {
	if l == nil {
		return
	}
	l.log(LevelError, msg, fields...)
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.console.Write(level, l.prefix, msg, fields...)
	if l.file != nil {
		_ = l.file.Write(level, l.prefix, msg, fields...)
	}
}

// Event records a structured event to the tracer.
// Events are only written when debug mode is enabled.
func (l *Logger) Event(eventType string, fields ...Field) {
	if l == nil || !l.tracer.IsEnabled() {
		return
	}
	l.tracer.Event(eventType, l.prefix, fields...)
}

// Metrics returns the metrics collector. A nil logger returns a nil
// collector, whose methods are no-ops.
func (l *Logger) Metrics() *Metrics {
	if l == nil {
		return nil
	}
	return l.metrics
}

// SessionID returns the tracer session ID, or "" when tracing is off.
func (l *Logger) SessionID() string {
	if l == nil {
		return ""
	}
	return l.sessionID
}

// IsDebugEnabled returns true if debug logging is enabled.
func (l *Logger) IsDebugEnabled() bool {
	if l == nil {
		return false
	}
	return l.console.Enabled(LevelDebug)
}

// IsTracingEnabled returns true if event tracing is enabled.
func (l *Logger) IsTracingEnabled() bool {
	if l == nil {
		return false
	}
	return l.tracer.IsEnabled()
}

// SetLevel sets the console log level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.console.SetLevel(level)
}

// Close flushes the metrics summary to the tracer and closes all writers.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	if l.tracer.IsEnabled() {
		l.tracer.EventWithData(EventSessionEnd, l.metrics.Snapshot())
	}

	var first error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			first = err
		}
	}
	if err := l.tracer.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

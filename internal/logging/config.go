package logging

import (
	"os"
	"strings"
)

// Level represents log severity levels.
type Level int

const (
	// LevelDebug logs everything, including verbose debugging information.
	LevelDebug Level = iota
	// LevelInfo logs informational messages and above.
	LevelInfo
	// LevelWarn logs warnings and errors only.
	LevelWarn
	// LevelError logs only error messages.
	LevelError
)

// String returns the string representation of a log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level. Unknown values map to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level for console output.
	Level Level

	// DebugMode enables JSONL event tracing.
	DebugMode bool

	// DebugDir is the directory for trace files.
	DebugDir string

	// LogDir enables a session log file when non-empty.
	LogDir string

	// Verbose enables debug-level console output without tracing.
	Verbose bool
}

// DefaultDebugDir is the default directory for debug traces.
const DefaultDebugDir = "/tmp/friday-debug"

// ConfigFromEnv creates a Config from environment variables.
//
// Environment variables:
//   - FRIDAY_DEBUG: "1" enables debug tracing
//   - FRIDAY_DEBUG_DIR: override trace directory
//   - FRIDAY_LOG_DIR: write a session log file into this directory
//   - FRIDAY_LOG_LEVEL: console log level (debug, info, warn, error)
func ConfigFromEnv() Config {
	cfg := Config{
		Level:    LevelInfo,
		DebugDir: DefaultDebugDir,
	}

	if os.Getenv("FRIDAY_DEBUG") == "1" {
		cfg.DebugMode = true
		cfg.Level = LevelDebug
	}
	if dir := os.Getenv("FRIDAY_DEBUG_DIR"); dir != "" {
		cfg.DebugDir = dir
	}
	if dir := os.Getenv("FRIDAY_LOG_DIR"); dir != "" {
		cfg.LogDir = dir
	}
	if level := os.Getenv("FRIDAY_LOG_LEVEL"); level != "" {
		cfg.Level = ParseLevel(level)
	}

	return cfg
}

// WithDebugMode returns a copy of the config with debug mode toggled.
func (c Config) WithDebugMode(enabled bool) Config {
	c.DebugMode = enabled
	if enabled {
		c.Level = LevelDebug
	}
	return c
}

// WithLevel returns a copy of the config with the specified level.
func (c Config) WithLevel(level Level) Config {
	c.Level = level
	return c
}

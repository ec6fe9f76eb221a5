package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileWriter appends every log line, regardless of level, to a session log.
// The file is created lazily on first write.
type FileWriter struct {
	mu       sync.Mutex
	file     *os.File
	logDir   string
	logPath  string
	initOnce sync.Once
	initErr  error
}

// NewFileWriter creates a file writer rooted at logDir.
func NewFileWriter(logDir string) *FileWriter {
	return &FileWriter{logDir: logDir}
}

func (f *FileWriter) init() error {
	f.initOnce.Do(func() {
		f.initErr = f.open()
	})
	return f.initErr
}

func (f *FileWriter) open() error {
	if err := os.MkdirAll(f.logDir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	now := time.Now()
	logPath := filepath.Join(f.logDir, fmt.Sprintf("friday_%s.log", now.Format("2006-01-02_15-04-05")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}

	f.file = file
	f.logPath = logPath
	_, _ = fmt.Fprintf(file, "=== Session started at %s ===\n", now.Format("2006-01-02 15:04:05"))

	latestPath := filepath.Join(f.logDir, "latest.log")
	_ = os.Remove(latestPath)
	_ = os.Symlink(filepath.Base(logPath), latestPath)

	return nil
}

// Write appends a log line to the file.
func (f *FileWriter) Write(level Level, prefix, msg string, fields ...Field) error {
	if err := f.init(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	_, err := f.file.WriteString(formatLine(time.Now(), level, prefix, msg, fields))
	return err
}

// Path returns the path to the current log file, or "" before the first write.
func (f *FileWriter) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logPath
}

// Close writes the session footer and closes the file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	_, _ = fmt.Fprintf(f.file, "=== Session ended at %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
	err := f.file.Close()
	f.file = nil
	return err
}

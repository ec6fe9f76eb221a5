package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one JSONL trace record.
type Event struct {
	Timestamp string         `json:"ts"`
	Event     string         `json:"event"`
	Session   string         `json:"session"`
	Component string         `json:"component,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Tracer writes structured events to a JSONL file.
// It is only active when debug mode is enabled.
type Tracer struct {
	mu          sync.Mutex
	sessionID   string
	file        *os.File
	enabled     bool
	sessionPath string
}

// NewTracer creates a tracer. When debugMode is false the tracer is a no-op.
func NewTracer(debugDir string, debugMode bool) (*Tracer, error) {
	t := &Tracer{enabled: debugMode}
	if !debugMode {
		return t, nil
	}

	if err := os.MkdirAll(debugDir, 0755); err != nil {
		return nil, fmt.Errorf("create debug directory: %w", err)
	}

	t.sessionID = "sess_" + uuid.NewString()

	sessionPath := filepath.Join(debugDir, fmt.Sprintf("trace_%s.jsonl", time.Now().Format("2006-01-02_15-04-05")))
	file, err := os.OpenFile(sessionPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	t.file = file
	t.sessionPath = sessionPath

	latestPath := filepath.Join(debugDir, "latest.jsonl")
	_ = os.Remove(latestPath)
	_ = os.Symlink(sessionPath, latestPath)

	t.write(EventSessionStart, "", map[string]any{"debug_dir": debugDir})
	return t, nil
}

// IsEnabled returns whether tracing is active.
func (t *Tracer) IsEnabled() bool {
	return t != nil && t.enabled
}

// GetSessionID returns the trace session ID.
func (t *Tracer) GetSessionID() string {
	if t == nil {
		return ""
	}
	return t.sessionID
}

// Event records an event with the given fields.
func (t *Tracer) Event(eventType, component string, fields ...Field) {
	if !t.IsEnabled() {
		return
	}
	t.write(eventType, component, fieldsToMap(fields))
}

// EventWithData records an event with a data map merged with fields.
func (t *Tracer) EventWithData(eventType string, data map[string]any, fields ...Field) {
	if !t.IsEnabled() {
		return
	}
	merged := make(map[string]any, len(data)+len(fields))
	for k, v := range data {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	t.write(eventType, "", merged)
}

func (t *Tracer) write(eventType, component string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return
	}

	line, err := json.Marshal(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Event:     eventType,
		Session:   t.sessionID,
		Component: component,
		Data:      data,
	})
	if err != nil {
		return
	}
	_, _ = t.file.Write(append(line, '\n'))
}

// Path returns the trace file path.
func (t *Tracer) Path() string {
	if t == nil {
		return ""
	}
	return t.sessionPath
}

// Close closes the trace file.
func (t *Tracer) Close() error {
	if !t.IsEnabled() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

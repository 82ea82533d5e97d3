package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventAuth  EventType = "auth"
	EventSync  EventType = "sync"
	EventCover EventType = "cover"
	EventPrune EventType = "prune"
	EventError EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a level name to an EventLevel, defaulting to info
func ParseLevel(name string) EventLevel {
	level := EventLevel(name)
	if _, ok := levelPriority[level]; ok {
		return level
	}
	return LevelInfo
}

// Event is one line of the event log
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	RunID     string            `json:"run_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	ReleaseID int64             `json:"release_id,omitempty"`
	URL       string            `json:"url,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Items     int               `json:"items,omitempty"`
	Bytes     int64             `json:"bytes,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	// Append so a restart within the same second keeps earlier events
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogAuth logs an authentication attempt
func (l *EventLogger) LogAuth(username string, ok bool) error {
	level := LevelInfo
	outcome := "ok"
	if !ok {
		level = LevelError
		outcome = "failed"
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventAuth,
		Username: username,
		Outcome:  outcome,
	})
}

// LogSync logs a finished collection fetch
func (l *EventLogger) LogSync(runID, username string, items, expected, pages int, truncated bool, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	outcome := "complete"
	switch {
	case err != nil:
		level = LevelError
		errMsg = err.Error()
		outcome = "failed"
	case truncated:
		level = LevelWarning
		outcome = "partial"
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventSync,
		RunID:    runID,
		Username: username,
		Outcome:  outcome,
		Items:    items,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
		Extra: map[string]string{
			"expected":   fmt.Sprintf("%d", expected),
			"pages_read": fmt.Sprintf("%d", pages),
		},
	})
}

// LogCover logs the outcome of one cover download. Cache hits are debug
// level, failures are warnings.
func (l *EventLogger) LogCover(releaseID int64, url, outcome string, attempts int, bytes int64, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	switch {
	case err != nil:
		level = LevelWarning
		errMsg = err.Error()
	case outcome == "cached":
		level = LevelDebug
	}

	return l.Log(&Event{
		Level:     level,
		Event:     EventCover,
		ReleaseID: releaseID,
		URL:       url,
		Outcome:   outcome,
		Bytes:     bytes,
		Duration:  duration.Milliseconds(),
		Error:     errMsg,
		Extra: map[string]string{
			"attempts": fmt.Sprintf("%d", attempts),
		},
	})
}

// LogPrune logs removal of covers for releases that left the collection
func (l *EventLogger) LogPrune(removed int) error {
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventPrune,
		Items: removed,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, releaseID int64, err error) error {
	return l.Log(&Event{
		Level:     LevelError,
		Event:     event,
		ReleaseID: releaseID,
		Error:     err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}

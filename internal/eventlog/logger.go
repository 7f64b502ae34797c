// Package eventlog records capture and dispatch events in a JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Capture event types.
const (
	CaptureRequested EventType = "capture_requested"
	CaptureStarted   EventType = "capture_started"
	CaptureFinalized EventType = "capture_finalized"
	CaptureAborted   EventType = "capture_aborted"
	CaptureError     EventType = "capture_error"
	AnalysisError    EventType = "analysis_error"
)

// Query event types.
const (
	QueryDispatched EventType = "query_dispatched"
	DispatchFailed  EventType = "dispatch_failed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// CaptureDetails contains capture-specific event details.
type CaptureDetails struct {
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	Artifact   string `json:"artifact,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	SizeBytes  int    `json:"size_bytes,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// QueryDetails contains dispatch event details.
type QueryDetails struct {
	Kind      string `json:"kind"` // "text" or "audio"
	Text      string `json:"text,omitempty"`
	Artifact  string `json:"artifact,omitempty"`
	SizeBytes int    `json:"size_bytes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "voicecapture", "logs", strconv.Itoa(port), "events.jsonl")
	default: // linux, darwin
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/voicecapture", strconv.Itoa(port), "events.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// ErrClosed is returned when logging to a closed logger.
var ErrClosed = errors.New("event log closed")

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogCapture logs a capture lifecycle event.
func (l *Logger) LogCapture(eventType EventType, sessionID string, details *CaptureDetails) error {
	event := &Event{Type: eventType, SessionID: sessionID}
	if details != nil {
		event.Details = details
	}
	return l.Log(event)
}

// LogQuery logs a dispatch outcome.
func (l *Logger) LogQuery(eventType EventType, details *QueryDetails) error {
	return l.Log(&Event{
		Type:    eventType,
		Details: details,
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterCapture TypeFilter = "capture"
	FilterQuery   TypeFilter = "query"
	FilterError   TypeFilter = "error"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type, newest first,
// and whether older matching events remain.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}
	offset = max(offset, 0)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.Matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

// Matches reports whether t passes the filter.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterAll:
		return true
	case FilterCapture:
		return IsCaptureEvent(t)
	case FilterQuery:
		return IsQueryEvent(t)
	case FilterError:
		return IsErrorEvent(t)
	default:
		return false
	}
}

// IsCaptureEvent returns true if the event type is a capture lifecycle event.
func IsCaptureEvent(t EventType) bool {
	switch t {
	case CaptureRequested, CaptureStarted, CaptureFinalized, CaptureAborted, CaptureError, AnalysisError:
		return true
	}
	return false
}

// IsQueryEvent returns true if the event type is a dispatch event.
func IsQueryEvent(t EventType) bool {
	return t == QueryDispatched || t == DispatchFailed
}

// IsErrorEvent returns true if the event type reports a failure.
func IsErrorEvent(t EventType) bool {
	return t == CaptureError || t == AnalysisError || t == DispatchFailed
}

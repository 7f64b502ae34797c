package types

// WSCommandResult is the standard response for command execution.
type WSCommandResult struct {
	Type    string `json:"type"`            // "<command>_result"
	Success bool   `json:"success"`         // true if command succeeded
	Error   any    `json:"error,omitempty"` // Error message or *ValidationError
	Data    any    `json:"data,omitempty"`  // Optional response data
}

// WSEventLogResult is sent to clients with event log entries.
type WSEventLogResult struct {
	Type    string `json:"type"`              // Message type identifier
	Success bool   `json:"success"`           // Operation succeeded
	Error   string `json:"error,omitempty"`   // Error message if failed
	Entries any    `json:"entries,omitempty"` // Log entries, newest first
	HasMore bool   `json:"has_more"`          // More entries exist past this page
	Path    string `json:"path,omitempty"`    // Log file path
}

// Package types provides shared type definitions used across the capture service.
package types

import (
	"time"
)

// CaptureState represents the current state of the capture controller.
type CaptureState string

const (
	// StateIdle indicates no device is held and no visualization is running.
	StateIdle CaptureState = "idle"
	// StateRequesting indicates device acquisition is in flight.
	StateRequesting CaptureState = "requesting"
	// StateRecording indicates the device is held and audio is being encoded.
	StateRecording CaptureState = "recording"
	// StateFinalizing indicates the encoder is flushing into an artifact.
	StateFinalizing CaptureState = "finalizing"
	// StateError indicates the current attempt failed.
	StateError CaptureState = "error"
)

// ErrorKind classifies capture failures.
type ErrorKind string

const (
	// ErrorDevice means the device was denied, unavailable, or went away.
	ErrorDevice ErrorKind = "device"
	// ErrorEncoding means the encoder failed or produced nothing.
	ErrorEncoding ErrorKind = "encoding"
	// ErrorAnalysis means the frequency sampler became unreadable.
	ErrorAnalysis ErrorKind = "analysis"
)

// Audio format constants for PCM capture and encoding.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 48000
	// Channels is the number of captured audio channels (mono).
	Channels = 1
	// BytesPerSample is the size of one S16LE sample.
	BytesPerSample = 2
)

// Spectrum display constants.
const (
	// BandCount is the number of frequency bands per snapshot.
	BandCount = 20
	// MaxBandValue is the largest band-energy reading.
	MaxBandValue = 255
	// MinBarHeight is the smallest rendered bar height.
	MinBarHeight = 3
	// MaxBarHeight is the tallest rendered bar height.
	MaxBarHeight = 24
)

const (
	// ShutdownTimeout is the duration to wait for a subprocess to exit after a graceful signal.
	ShutdownTimeout = 3000 * time.Millisecond
	// FinalizeTimeout bounds how long the encoder may take to flush.
	FinalizeTimeout = 10000 * time.Millisecond
)

// Bands holds one reading per frequency band, each in [0, MaxBandValue].
type Bands [BandCount]uint8

// FrequencySnapshot holds the bar heights for one animation tick.
type FrequencySnapshot [BandCount]int

// IdleSnapshot returns a snapshot with every bar at its minimum height.
func IdleSnapshot() FrequencySnapshot {
	var s FrequencySnapshot
	for i := range s {
		s[i] = MinBarHeight
	}
	return s
}

// Artifact is the finished binary object produced by a completed recording.
type Artifact struct {
	Content   []byte `validate:"min=1"`
	MediaType string `validate:"required"`
	Name      string `validate:"required"`
}

// Info returns the artifact metadata without its content.
func (a *Artifact) Info() ArtifactInfo {
	return ArtifactInfo{
		Name:      a.Name,
		MediaType: a.MediaType,
		Size:      len(a.Content),
	}
}

// ArtifactInfo describes an artifact without carrying its bytes.
type ArtifactInfo struct {
	Name      string `json:"name"`       // Generated file name
	MediaType string `json:"media_type"` // Fixed encoder media type
	Size      int    `json:"size"`       // Content length in bytes
}

// CaptureStatus contains a summary of the controller's current state.
type CaptureStatus struct {
	State         CaptureState `json:"state"`                     // Current controller state
	SessionID     string       `json:"session_id,omitzero"`       // Active session identifier
	Duration      float64      `json:"duration,omitzero"`         // Seconds since recording began
	LastError     string       `json:"last_error,omitzero"`       // Most recent error
	LastErrorKind ErrorKind    `json:"last_error_kind,omitzero"`  // Kind of the most recent error
	Dispatched    int          `json:"dispatched_count,omitzero"` // Artifacts handed to the dispatcher
}

// AudioDevice represents an available audio input device.
type AudioDevice struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// WSStatusResponse is sent to clients with the full capture status.
type WSStatusResponse struct {
	Type            string        `json:"type"`             // Message type identifier
	FFmpegAvailable bool          `json:"ffmpeg_available"` // FFmpeg binary is available
	Capture         CaptureStatus `json:"capture"`          // Controller status
	Devices         []AudioDevice `json:"devices"`          // Available audio devices
	AudioInput      string        `json:"audio_input"`      // Selected audio input device
	Platform        string        `json:"platform"`         // Operating system platform
	Version         VersionInfo   `json:"version"`          // Version information
}

// WSSpectrumResponse is sent to clients with the latest bar heights.
type WSSpectrumResponse struct {
	Type string            `json:"type"` // Message type identifier
	Bars FrequencySnapshot `json:"bars"` // Current bar heights
}

// WSCaptureEvent is sent to clients on state transitions and terminal outcomes.
type WSCaptureEvent struct {
	Type      string        `json:"type"`                 // Message type identifier
	State     CaptureState  `json:"state,omitempty"`      // New state (state events)
	Artifact  *ArtifactInfo `json:"artifact,omitempty"`   // Finished artifact (artifact events)
	ErrorKind ErrorKind     `json:"error_kind,omitempty"` // Failure kind (error events)
	Error     string        `json:"error,omitempty"`      // Failure message (error events)
}

// Package recording turns a live microphone stream into a finished audio artifact.
package recording

import (
	"errors"
	"fmt"
)

// Sentinel errors for recording operations.
var (
	// ErrNoTracks is returned when a stream carries no audio tracks.
	ErrNoTracks = errors.New("stream has no audio tracks")

	// ErrEmptyRecording is returned when a session stops before any encoded segment arrived.
	ErrEmptyRecording = errors.New("recording produced no audio")

	// ErrEncoder wraps failures reported by the encoder.
	ErrEncoder = errors.New("encoder failure")

	// ErrStreamEnded is returned when the device stream stops while the session is open.
	ErrStreamEnded = errors.New("audio stream ended unexpectedly")

	// ErrSessionClosed is returned when opening or observing a session that has been closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrEncoderClosed is returned when writing to an encoder that is not running.
	ErrEncoderClosed = errors.New("encoder not running")

	// ErrFinalizeTimeout is returned by Close when the encoder does not drain in time.
	ErrFinalizeTimeout = fmt.Errorf("%w: finalize timed out", ErrEncoder)
)

// NamePrefix starts every generated artifact file name.
const NamePrefix = "voice-query"

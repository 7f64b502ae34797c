package capture

import (
	"errors"
	"fmt"

	"github.com/oszuidwest/zwfm-voicecapture/internal/audio"
	"github.com/oszuidwest/zwfm-voicecapture/internal/device"
	"github.com/oszuidwest/zwfm-voicecapture/internal/recording"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// Sentinel errors for controller operations.
var (
	// ErrClosed is returned by StartRecording after Close.
	ErrClosed = errors.New("capture controller closed")
)

// Error is a classified capture failure.
type Error struct {
	Kind types.ErrorKind // device, encoding or analysis
	Op   string          // operation that failed
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. It returns "" for errors outside the capture taxonomy.
func KindOf(err error) types.ErrorKind {
	if err == nil {
		return ""
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}

	switch {
	case errors.Is(err, audio.ErrSamplerClosed):
		return types.ErrorAnalysis
	case errors.Is(err, recording.ErrEncoder), errors.Is(err, recording.ErrEmptyRecording):
		return types.ErrorEncoding
	case errors.Is(err, device.ErrUnavailable), errors.Is(err, recording.ErrNoTracks), errors.Is(err, recording.ErrStreamEnded):
		return types.ErrorDevice
	default:
		return ""
	}
}

// classify wraps err as an *Error, using fallback when err has no kind of its own.
func classify(op string, fallback types.ErrorKind, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := KindOf(err)
	if kind == "" {
		kind = fallback
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

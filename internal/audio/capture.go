package audio

import (
	"errors"
	"fmt"

	"github.com/oszuidwest/zwfm-voicecapture/internal/util"
)

var (
	// ErrNoAudioDevice is returned when no audio input device is available.
	ErrNoAudioDevice = errors.New("no audio input device found")
	// ErrCaptureTool is returned when the platform capture command is not installed.
	ErrCaptureTool = errors.New("capture tool not found")
)

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform uses FFmpeg for capture.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for mono S16LE capture on stdout.
	BuildArgs func(device string) []string
}

// BuildCaptureCommand returns the command and arguments for microphone capture.
// If device is empty, it uses the platform default or the first detected device.
func BuildCaptureCommand(device, ffmpegPath string) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	// Windows has no safe default.
	if device == "" {
		devices := cfg.Devices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}
	if util.LookupBinary("", command) == "" {
		return "", nil, fmt.Errorf("%w: %s", ErrCaptureTool, command)
	}

	return command, cfg.BuildArgs(device), nil
}

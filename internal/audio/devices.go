package audio

import (
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// Devices returns available audio input devices for the current platform.
func Devices() []Device {
	cfg := getPlatformConfig()
	return cfg.Devices()
}

// AudioDevices returns the available input devices in their wire representation.
func AudioDevices() []types.AudioDevice {
	devices := Devices()
	out := make([]types.AudioDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, types.AudioDevice{ID: d.ID, Name: d.Name})
	}
	return out
}

// DeviceListConfig defines how to list audio devices for a platform.
type DeviceListConfig struct {
	// Command and args to list devices.
	Command []string

	// AudioStartMarker indicates the start of audio devices section.
	AudioStartMarker string

	// AudioStopMarker indicates the end of audio devices section (optional).
	AudioStopMarker string

	// DevicePattern is the regex to extract device info.
	DevicePattern *regexp.Regexp

	// ParseDevice converts regex matches to a Device.
	ParseDevice func(matches []string) *Device

	// FallbackDevices are returned if detection fails.
	FallbackDevices []Device
}

// parseDeviceList runs the listing command and parses its output.
//
//nolint:gocritic // hugeParam: config is built once per call
func parseDeviceList(cfg DeviceListConfig) []Device {
	if len(cfg.Command) == 0 {
		return cfg.FallbackDevices
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil && len(output) == 0 {
		slog.Error("failed to list audio devices", "error", err)
		return cfg.FallbackDevices
	}

	return parseDeviceOutput(string(output), cfg)
}

// parseDeviceOutput extracts devices from listing output.
//
//nolint:gocritic // hugeParam: config is built once per call
func parseDeviceOutput(output string, cfg DeviceListConfig) []Device {
	var devices []Device
	inAudioSection := cfg.AudioStartMarker == ""

	for line := range strings.SplitSeq(output, "\n") {
		if cfg.AudioStartMarker != "" && strings.Contains(line, cfg.AudioStartMarker) {
			inAudioSection = true
			continue
		}
		if cfg.AudioStopMarker != "" && strings.Contains(line, cfg.AudioStopMarker) {
			inAudioSection = false
			continue
		}
		if !inAudioSection || cfg.DevicePattern == nil {
			continue
		}

		// DirectShow repeats each device under an alternative name.
		if strings.Contains(line, "Alternative name") {
			continue
		}

		matches := cfg.DevicePattern.FindStringSubmatch(line)
		if len(matches) > 0 && cfg.ParseDevice != nil {
			if dev := cfg.ParseDevice(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}

	if len(devices) == 0 {
		return cfg.FallbackDevices
	}
	return devices
}

//go:build darwin

package audio

import (
	"regexp"
	"strings"
)

var avfoundationDevice = regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "ffmpeg",
		DefaultDevice: ":default",
		UsesFFmpeg:    true,
		BuildArgs: func(device string) []string {
			return buildFFmpegCaptureArgs("avfoundation", avfoundationAudioInput(device))
		},
	}
}

// avfoundationAudioInput turns a configured microphone into an AVFoundation
// input with no video: "1" and "USB Mic" become ":1" and ":USB Mic".
func avfoundationAudioInput(device string) string {
	device = strings.TrimSpace(device)
	switch {
	case device == "":
		return ":default"
	case strings.HasPrefix(device, ":"):
		return device
	default:
		return ":" + device
	}
}

// Devices lists the microphones AVFoundation reports; cameras are skipped.
func (cfg *CaptureConfig) Devices() []Device {
	return parseDeviceList(DeviceListConfig{
		Command:          []string{cfg.Command, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		AudioStartMarker: "AVFoundation audio devices:",
		AudioStopMarker:  "AVFoundation video devices:",
		DevicePattern:    avfoundationDevice,
		ParseDevice: func(matches []string) *Device {
			if len(matches) < 3 {
				return nil
			}
			return &Device{
				ID:   ":" + matches[1],
				Name: strings.TrimSpace(matches[2]),
			}
		},
		FallbackDevices: []Device{
			{ID: ":default", Name: "System default"},
		},
	})
}

package audio

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDeviceOutputSections(t *testing.T) {
	cfg := DeviceListConfig{
		AudioStartMarker: "audio devices:",
		AudioStopMarker:  "video devices:",
		DevicePattern:    regexp.MustCompile(`\[(\d+)\]\s*(.+)`),
		ParseDevice: func(m []string) *Device {
			return &Device{ID: ":" + m[1], Name: m[2]}
		},
	}

	output := "[0] Camera\naudio devices:\n[0] Built-in Microphone\n[1] USB Mic\nvideo devices:\n[1] Screen"

	require.Equal(t, []Device{
		{ID: ":0", Name: "Built-in Microphone"},
		{ID: ":1", Name: "USB Mic"},
	}, parseDeviceOutput(output, cfg))
}

func TestParseDeviceOutputFallback(t *testing.T) {
	fallback := []Device{{ID: "default", Name: "System default"}}
	cfg := DeviceListConfig{
		DevicePattern:   regexp.MustCompile(`card (\d+)`),
		ParseDevice:     func(m []string) *Device { return &Device{ID: m[1]} },
		FallbackDevices: fallback,
	}

	require.Equal(t, fallback, parseDeviceOutput("no cards here", cfg))
}

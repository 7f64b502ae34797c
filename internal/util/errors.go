package util

import (
	"fmt"
	"regexp"
	"strings"
)

// maxErrorLineLength is the maximum length for extracted error messages.
const maxErrorLineLength = 200

// ffmpegContext matches the "[alsa @ 0x55d1c0]" prefix FFmpeg puts on log lines.
var ffmpegContext = regexp.MustCompile(`^\[[^\]]+ @ 0x[0-9a-f]+\]\s*`)

// WrapError wraps an error with a descriptive operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// ExtractLastError returns the last non-empty stderr line of a capture or
// encoder process, without FFmpeg's component prefix and cut to a readable length.
func ExtractLastError(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(ffmpegContext.ReplaceAllString(strings.TrimSpace(lines[i]), ""))
		if line == "" {
			continue
		}
		if len(line) > maxErrorLineLength {
			return line[:maxErrorLineLength] + "..."
		}
		return line
	}
	return ""
}

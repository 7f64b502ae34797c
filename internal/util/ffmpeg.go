package util

import "os/exec"

// LookupBinary returns the path of an external tool. A non-empty customPath
// must itself resolve; otherwise name is searched in PATH. It returns an
// empty string when the tool is not available.
func LookupBinary(customPath, name string) string {
	if customPath != "" {
		name = customPath
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}

// ResolveFFmpegPath returns the path to the FFmpeg binary, honoring a
// configured path, or an empty string if FFmpeg is not found.
func ResolveFFmpegPath(customPath string) string {
	return LookupBinary(customPath, "ffmpeg")
}

// Package audio provides microphone capture commands, device discovery and
// spectrum analysis of captured PCM.
package audio

import "encoding/binary"

// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
const MaxSampleValue = 32768.0

// DecodeS16LE appends the normalized [-1, 1) samples of mono S16LE PCM to dst.
// A trailing odd byte is ignored.
func DecodeS16LE(dst []float64, pcm []byte) []float64 {
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		dst = append(dst, float64(s)/MaxSampleValue)
	}
	return dst
}

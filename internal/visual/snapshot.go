// Package visual turns frequency-band readings into bar heights on a
// per-frame cooperative schedule.
package visual

import "github.com/oszuidwest/zwfm-voicecapture/internal/types"

// BarHeight maps a band reading in [0, 255] to a bar height in [3, 24].
func BarHeight(v uint8) int {
	h := int(v) * types.MaxBarHeight / types.MaxBandValue
	return max(types.MinBarHeight, h)
}

// Snapshot converts one set of band readings into bar heights.
func Snapshot(b types.Bands) types.FrequencySnapshot {
	var s types.FrequencySnapshot
	for i, v := range b {
		s[i] = BarHeight(v)
	}
	return s
}

package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"github.com/stretchr/testify/require"
)

// sinePCM renders a mono S16LE sine wave.
func sinePCM(freq, amplitude float64, samples int) []byte {
	pcm := make([]byte, samples*types.BytesPerSample)
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/types.SampleRate)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*32767)))
	}
	return pcm
}

func TestSamplerBeforeAudioReturnsZeros(t *testing.T) {
	s := NewSampler(DefaultSpectrumConfig())

	bands, err := s.Sample()
	require.NoError(t, err)
	require.Equal(t, types.Bands{}, bands)
}

func TestSamplerSilenceReadsZero(t *testing.T) {
	s := NewSampler(DefaultSpectrumConfig())
	s.Write(make([]byte, DefaultFFTSize*types.BytesPerSample))

	bands, err := s.Sample()
	require.NoError(t, err)
	require.Equal(t, types.Bands{}, bands)
}

func TestSamplerSinePeaksInMatchingBand(t *testing.T) {
	cfg := DefaultSpectrumConfig()
	s := NewSampler(cfg)
	s.Write(sinePCM(1000, 0.5, cfg.FFTSize))

	bands, err := s.Sample()
	require.NoError(t, err)

	bin := int(math.Round(1000 / (float64(cfg.SampleRate) / float64(cfg.FFTSize))))
	edges := bandEdges(cfg)
	target := -1
	for b := range types.BandCount {
		if edges[b] <= bin && bin < edges[b+1] {
			target = b
		}
	}
	require.NotEqual(t, -1, target, "1 kHz must fall inside the analysed range")

	for b, v := range bands {
		require.LessOrEqual(t, v, bands[target], "band %d louder than the tone's band", b)
	}
	require.Greater(t, bands[target], uint8(200))
	require.Less(t, bands[0], uint8(128))
}

func TestSamplerLatestWriteWins(t *testing.T) {
	cfg := DefaultSpectrumConfig()
	cfg.Smoothing = 0
	s := NewSampler(cfg)

	s.Write(sinePCM(1000, 0.5, cfg.FFTSize))
	loud, err := s.Sample()
	require.NoError(t, err)

	s.Write(make([]byte, cfg.FFTSize*types.BytesPerSample))
	quiet, err := s.Sample()
	require.NoError(t, err)

	require.NotEqual(t, loud, quiet)
	require.Equal(t, types.Bands{}, quiet)
}

func TestSamplerClosed(t *testing.T) {
	s := NewSampler(DefaultSpectrumConfig())
	s.Close()
	s.Close()

	s.Write(sinePCM(440, 0.5, 512))
	_, err := s.Sample()
	require.ErrorIs(t, err, ErrSamplerClosed)
}

func TestBandEdgesStrictlyIncreasing(t *testing.T) {
	for _, size := range []int{64, 256, 1024, 4096} {
		cfg := DefaultSpectrumConfig()
		cfg.FFTSize = size
		edges := bandEdges(cfg)

		require.GreaterOrEqual(t, edges[0], 1, "fft %d uses the DC bin", size)
		require.LessOrEqual(t, edges[types.BandCount], size/2+1, "fft %d exceeds bin count", size)
		for i := 1; i < len(edges); i++ {
			require.Greater(t, edges[i], edges[i-1], "fft %d band %d is empty", size, i-1)
		}
	}
}

func TestDecodeS16LE(t *testing.T) {
	pcm := []byte{0x00, 0x80, 0xff, 0x7f, 0x00, 0x00, 0x01}

	got := DecodeS16LE(nil, pcm)
	require.Equal(t, []float64{-1, 32767.0 / 32768.0, 0}, got)
}

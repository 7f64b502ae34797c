package audio

import (
	"errors"
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrSamplerClosed is returned by Sample after the sampler has been closed.
var ErrSamplerClosed = errors.New("frequency sampler closed")

// Spectrum analysis defaults.
const (
	DefaultFFTSize     = 1024
	DefaultMinHz       = 80.0
	DefaultMaxHz       = 8000.0
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	DefaultSmoothing   = 0.8
)

// SpectrumConfig controls how PCM is turned into band readings.
type SpectrumConfig struct {
	FFTSize     int     // Samples per analysis window (power of two)
	SampleRate  int     // PCM sample rate in Hz
	MinHz       float64 // Lower edge of the first band
	MaxHz       float64 // Upper edge of the last band
	MinDecibels float64 // Level mapped to reading 0
	MaxDecibels float64 // Level mapped to reading 255
	Smoothing   float64 // Per-bin averaging constant in [0, 1)
}

// DefaultSpectrumConfig returns the analysis settings used when none are configured.
func DefaultSpectrumConfig() SpectrumConfig {
	return SpectrumConfig{
		FFTSize:     DefaultFFTSize,
		SampleRate:  types.SampleRate,
		MinHz:       DefaultMinHz,
		MaxHz:       DefaultMaxHz,
		MinDecibels: DefaultMinDecibels,
		MaxDecibels: DefaultMaxDecibels,
		Smoothing:   DefaultSmoothing,
	}
}

// Sampler exposes the latest per-band energy of a live PCM stream.
// Write runs the analysis and overwrites a single slot; Sample only loads
// that slot, so readers never wait on the analysis and never see a backlog.
type Sampler struct {
	cfg SpectrumConfig

	mu       sync.Mutex // guards the analysis state below
	ring     []float64
	pos      int
	decoded  []float64
	frame    []float64
	window   []float64
	fft      *fourier.FFT
	coeffs   []complex128
	smoothed []float64
	edges    [types.BandCount + 1]int

	latest atomic.Pointer[types.Bands]
	closed atomic.Bool
}

// NewSampler creates a sampler for mono S16LE PCM.
func NewSampler(cfg SpectrumConfig) *Sampler {
	n := cfg.FFTSize
	return &Sampler{
		cfg:      cfg,
		ring:     make([]float64, n),
		frame:    make([]float64, n),
		window:   blackman(n),
		fft:      fourier.NewFFT(n),
		coeffs:   make([]complex128, n/2+1),
		smoothed: make([]float64, n/2+1),
		edges:    bandEdges(cfg),
	}
}

// Write feeds captured PCM into the analysis window and publishes fresh readings.
// It is intended to be subscribed to the capture stream as a read-only observer.
func (s *Sampler) Write(pcm []byte) {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.decoded = DecodeS16LE(s.decoded[:0], pcm)
	if len(s.decoded) == 0 {
		return
	}
	for _, v := range s.decoded {
		s.ring[s.pos] = v
		s.pos = (s.pos + 1) % len(s.ring)
	}

	bands := s.analyzeLocked()
	s.latest.Store(&bands)
}

// Sample returns the most recent band readings. It never blocks.
// Before any audio has arrived every reading is zero.
func (s *Sampler) Sample() (types.Bands, error) {
	if s.closed.Load() {
		return types.Bands{}, ErrSamplerClosed
	}
	if b := s.latest.Load(); b != nil {
		return *b, nil
	}
	return types.Bands{}, nil
}

// Close makes the sampler unreadable. It is safe to call more than once.
func (s *Sampler) Close() {
	s.closed.Store(true)
}

// analyzeLocked computes band readings over the current window. Must be called with lock held.
func (s *Sampler) analyzeLocked() types.Bands {
	n := len(s.ring)
	for i := range n {
		s.frame[i] = s.ring[(s.pos+i)%n] * s.window[i]
	}

	s.coeffs = s.fft.Coefficients(s.coeffs, s.frame)

	tau := s.cfg.Smoothing
	for k := range s.smoothed {
		mag := cmplx.Abs(s.coeffs[k]) / float64(n)
		s.smoothed[k] = tau*s.smoothed[k] + (1-tau)*mag
	}

	var bands types.Bands
	for b := range types.BandCount {
		var peak uint8
		for k := s.edges[b]; k < s.edges[b+1]; k++ {
			if v := s.toReading(s.smoothed[k]); v > peak {
				peak = v
			}
		}
		bands[b] = peak
	}
	return bands
}

// toReading maps a magnitude onto [0, 255] between the configured decibel bounds.
func (s *Sampler) toReading(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	scaled := (db - s.cfg.MinDecibels) * types.MaxBandValue / (s.cfg.MaxDecibels - s.cfg.MinDecibels)
	scaled = math.Min(math.Max(scaled, 0), types.MaxBandValue)
	return uint8(math.Floor(scaled))
}

// bandEdges returns log-spaced FFT bin boundaries; band b covers [edges[b], edges[b+1]).
// Every band covers at least one bin and the DC bin is never used.
func bandEdges(cfg SpectrumConfig) [types.BandCount + 1]int {
	var edges [types.BandCount + 1]int

	binHz := float64(cfg.SampleRate) / float64(cfg.FFTSize)
	limit := cfg.FFTSize/2 + 1
	ratio := cfg.MaxHz / cfg.MinHz

	for i := range edges {
		f := cfg.MinHz * math.Pow(ratio, float64(i)/types.BandCount)
		edges[i] = int(math.Round(f / binHz))
	}

	edges[0] = max(edges[0], 1)
	for i := 1; i < len(edges); i++ {
		edges[i] = max(edges[i], edges[i-1]+1)
	}
	for i := len(edges) - 1; i >= 0; i-- {
		edges[i] = min(edges[i], limit-(len(edges)-1-i))
	}
	return edges
}

// blackman returns the Blackman window of length n.
func blackman(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range n {
		x := 2 * math.Pi * float64(i) / float64(n-1)
		w[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return w
}

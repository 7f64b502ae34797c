// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oszuidwest/zwfm-voicecapture/internal/audio"
	"github.com/oszuidwest/zwfm-voicecapture/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort            = 8080
	DefaultFrameRate          = 60
	DefaultSpectrumIntervalMs = 50
	DefaultStatusIntervalMs   = 3000
)

var validate = util.NewValidator()

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"`                     // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port" validate:"gte=1,lte=65535"` // HTTP server port
}

// AudioConfig holds audio input device settings.
type AudioConfig struct {
	Input string `json:"input"` // Audio input device identifier (empty = platform default)
}

// SpectrumConfig holds frequency analysis settings.
type SpectrumConfig struct {
	FFTSize     int     `json:"fft_size" validate:"oneof=256 512 1024 2048 4096"`  // Samples per analysis window
	MinHz       float64 `json:"min_hz" validate:"gte=20"`                          // Lower edge of the first band
	MaxHz       float64 `json:"max_hz" validate:"gtfield=MinHz,lte=24000"`         // Upper edge of the last band
	MinDecibels float64 `json:"min_decibels" validate:"gte=-160"`                  // Level mapped to the lowest reading
	MaxDecibels float64 `json:"max_decibels" validate:"gtfield=MinDecibels,lte=0"` // Level mapped to the highest reading
	Smoothing   float64 `json:"smoothing" validate:"gte=0,lt=1"`                   // Per-bin averaging constant
}

// DisplayConfig holds UI refresh settings.
type DisplayConfig struct {
	FrameRate          int `json:"frame_rate" validate:"gte=1,lte=240"`             // Visualization ticks per second
	SpectrumIntervalMs int `json:"spectrum_interval_ms" validate:"gte=10,lte=1000"` // Spectrum push interval per client
	StatusIntervalMs   int `json:"status_interval_ms" validate:"gte=500,lte=60000"` // Periodic status push interval
}

// EventLogConfig holds event log settings.
type EventLogConfig struct {
	Path string `json:"path" validate:"safepath"` // JSON lines file (empty = platform default)
}

// UpdateCheckConfig holds release check settings.
type UpdateCheckConfig struct {
	Enabled *bool `json:"enabled"` // Check GitHub for new releases (default true)
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System      SystemConfig      `json:"system"`
	Audio       AudioConfig       `json:"audio"`
	Spectrum    SpectrumConfig    `json:"spectrum"`
	Display     DisplayConfig     `json:"display"`
	EventLog    EventLogConfig    `json:"event_log"`
	UpdateCheck UpdateCheckConfig `json:"update_check"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.applyDefaults()
	c.Spectrum.Smoothing = audio.DefaultSmoothing
	return c
}

// Path returns the configuration file path.
func (c *Config) Path() string {
	return c.filePath
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validateLocked()
}

// validateLocked checks all configuration fields. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", util.CollectValidation(err))
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	c.System.Port = cmp.Or(c.System.Port, DefaultWebPort)

	c.Spectrum.FFTSize = cmp.Or(c.Spectrum.FFTSize, audio.DefaultFFTSize)
	c.Spectrum.MinHz = cmp.Or(c.Spectrum.MinHz, audio.DefaultMinHz)
	c.Spectrum.MaxHz = cmp.Or(c.Spectrum.MaxHz, audio.DefaultMaxHz)
	c.Spectrum.MinDecibels = cmp.Or(c.Spectrum.MinDecibels, audio.DefaultMinDecibels)
	c.Spectrum.MaxDecibels = cmp.Or(c.Spectrum.MaxDecibels, audio.DefaultMaxDecibels)
	// Smoothing 0 is valid, so it is only defaulted in New.

	c.Display.FrameRate = cmp.Or(c.Display.FrameRate, DefaultFrameRate)
	c.Display.SpectrumIntervalMs = cmp.Or(c.Display.SpectrumIntervalMs, DefaultSpectrumIntervalMs)
	c.Display.StatusIntervalMs = cmp.Or(c.Display.StatusIntervalMs, DefaultStatusIntervalMs)

	if c.UpdateCheck.Enabled == nil {
		enabled := true
		c.UpdateCheck.Enabled = &enabled
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// AudioInput returns the configured audio input device.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Input
}

// --- Setters for individual settings ---

// SetAudioInput updates the audio input device and saves the configuration.
func (c *Config) SetAudioInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Input = input
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	FFmpegPath string
	WebPort    int

	// Audio
	AudioInput string

	// Spectrum
	Spectrum audio.SpectrumConfig

	// Display
	FrameRate          int
	SpectrumIntervalMs int
	StatusIntervalMs   int

	// Event log
	EventLogPath string

	// Update check
	UpdateCheckEnabled bool
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	spectrum := audio.DefaultSpectrumConfig()
	spectrum.FFTSize = c.Spectrum.FFTSize
	spectrum.MinHz = c.Spectrum.MinHz
	spectrum.MaxHz = c.Spectrum.MaxHz
	spectrum.MinDecibels = c.Spectrum.MinDecibels
	spectrum.MaxDecibels = c.Spectrum.MaxDecibels
	spectrum.Smoothing = c.Spectrum.Smoothing

	return Snapshot{
		FFmpegPath: c.System.FFmpegPath,
		WebPort:    c.System.Port,

		AudioInput: c.Audio.Input,

		Spectrum: spectrum,

		FrameRate:          c.Display.FrameRate,
		SpectrumIntervalMs: c.Display.SpectrumIntervalMs,
		StatusIntervalMs:   c.Display.StatusIntervalMs,

		EventLogPath: c.EventLog.Path,

		UpdateCheckEnabled: c.UpdateCheck.Enabled == nil || *c.UpdateCheck.Enabled,
	}
}

package tempoloop

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/tempoloop/internal/analysis"
	"github.com/tphakala/tempoloop/internal/engine"
	"github.com/tphakala/tempoloop/internal/window"
)

// Config holds the engine settings of a playback session.
//
// Ramp duration and buffer capacity shape the sound of the shifter and are
// fixed for the session; they are not meant as user-facing controls.
type Config struct {
	// SampleRate of the audio session in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels rendered by the graph.
	Channels int `yaml:"channels"`

	// BufferCapacity is the delay line length of the pitch shifter in
	// samples. The crossfade window is half of it.
	BufferCapacity int `yaml:"buffer_capacity"`

	// RampDuration is how long a pitch or volume change takes to land.
	// Zero applies changes at the next block.
	RampDuration time.Duration `yaml:"ramp_duration"`

	// Analyser settings, with the browser AnalyserNode meaning.
	FFTSize     int     `yaml:"fft_size"`
	Smoothing   float64 `yaml:"smoothing"`
	MinDecibels float64 `yaml:"min_decibels"`
	MaxDecibels float64 `yaml:"max_decibels"`
	Window      string  `yaml:"window"`

	// PollInterval is the period of Run's position updates.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Logger receives engine events. Nil discards them.
	Logger *logrus.Logger `yaml:"-"`
}

// DefaultConfig returns the settings the player was tuned with.
func DefaultConfig() Config {
	return Config{
		SampleRate:     DefaultSampleRate,
		Channels:       DefaultChannels,
		BufferCapacity: DefaultBufferCapacity,
		RampDuration:   DefaultRampDuration,
		FFTSize:        analysis.DefaultFFTSize,
		Smoothing:      analysis.DefaultSmoothing,
		MinDecibels:    analysis.DefaultMinDecibels,
		MaxDecibels:    analysis.DefaultMaxDecibels,
		Window:         DefaultWindow,
		PollInterval:   DefaultPollInterval,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys missing from
// the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate < minSampleRate || c.SampleRate > maxSampleRate {
		return fmt.Errorf("%w: sample rate must be %d-%d Hz", ErrInvalidConfig, minSampleRate, maxSampleRate)
	}

	if c.Channels < 1 || c.Channels > engine.MaxChannels {
		return fmt.Errorf("%w: channels must be 1-%d", ErrInvalidConfig, engine.MaxChannels)
	}

	if c.BufferCapacity < minBufferCapacity || c.BufferCapacity%2 != 0 {
		return fmt.Errorf("%w: buffer capacity must be even and at least %d", ErrInvalidConfig, minBufferCapacity)
	}

	if c.RampDuration < 0 {
		return fmt.Errorf("%w: ramp duration must not be negative", ErrInvalidConfig)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}

	if _, err := window.Parse(c.Window); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	ac := c.analyserConfig()
	if err := ac.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// analyserConfig maps the analyser fields onto analysis.Config. Call it
// after Validate.
func (c *Config) analyserConfig() analysis.Config {
	w, _ := window.Parse(c.Window)
	return analysis.Config{
		FFTSize:               c.FFTSize,
		SmoothingTimeConstant: c.Smoothing,
		MinDecibels:           c.MinDecibels,
		MaxDecibels:           c.MaxDecibels,
		Window:                w,
	}
}

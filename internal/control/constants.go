package control

import "time"

// Parameter ranges. Values outside them are clamped, never rejected.
const (
	MinSemitones = -12
	MaxSemitones = 12

	MinPlaybackRate = 0.25
	MaxPlaybackRate = 2.0

	MinVolume = 0.0
	MaxVolume = 1.0
)

// Defaults
const (
	// DefaultRampDuration is how long a pitch or volume change takes to land.
	DefaultRampDuration = 100 * time.Millisecond

	// DefaultSampleRate is used when the session rate is unknown.
	DefaultSampleRate = 48000

	semitonesPerOctave = 12.0
	octaveRatio        = 2.0
	unityRate          = 1.0
)

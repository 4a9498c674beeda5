package tempoloop

import "time"

// Defaults for Config.
const (
	DefaultSampleRate     = 48000
	DefaultChannels       = 2
	DefaultBufferCapacity = 4096
	DefaultRampDuration   = 100 * time.Millisecond
	DefaultPollInterval   = 50 * time.Millisecond
	DefaultWindow         = "blackman"
)

// Config limits
const (
	minSampleRate     = 8000
	maxSampleRate     = 384000
	minBufferCapacity = 4
)

// NudgeStep is the loop bound adjustment in seconds used by the fine-tune
// controls.
const NudgeStep = 0.1

// Metadata display
const (
	bytesPerMegabyte = 1024 * 1024
	metadataSep      = " • "
)

// Time formatting
const (
	secondsPerMinute = 60
	centisPerSecond  = 100

	// roundingSlack keeps values like 0.29 from truncating to 0.28.
	roundingSlack = 1e-9
)

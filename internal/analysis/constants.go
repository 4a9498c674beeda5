package analysis

// Analyser defaults, matching the browser AnalyserNode the player was built around.
const (
	DefaultFFTSize     = 256
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0

	MinFFTSize = 32
	MaxFFTSize = 32768
)

// Byte conversion
const (
	maxByte        = 255
	timeDomainZero = 128.0

	// decibelsPerLog converts a log10 magnitude into decibels.
	decibelsPerLog = 20.0
)

// Triple buffer slot encoding
const (
	slotCount = 3
	freshBit  = uint32(1 << 31)
)

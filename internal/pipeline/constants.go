package pipeline

// Block sizing
const (
	// DefaultBlockSize is the number of frames rendered per callback.
	DefaultBlockSize = 512

	// MaxBlockSize bounds a single render callback.
	MaxBlockSize = 1 << 16

	// MaxChannels bounds the channel count of a session.
	MaxChannels = 256
)

// Session defaults
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

// Channel layouts with dedicated interleave paths
const (
	monoChannels   = 1
	stereoChannels = 2
)

package engine

// Delay line constants
const (
	// minLineCapacity is the smallest delay line that can interpolate between two slots.
	minLineCapacity = 2
)

// Dual-tap shifter constants
const (
	// DefaultCapacity is the per-channel delay buffer size in samples.
	// The crossfade window is half of it.
	DefaultCapacity = 4096

	// minShifterCapacity keeps the window at least two samples wide.
	minShifterCapacity = 4

	// MaxChannels is the upper bound for pre-allocated delay lines.
	MaxChannels = 256

	// windowDivisor derives the crossfade window from the buffer capacity.
	windowDivisor = 2

	// tapOffset is the phase distance between tap A and tap B (half a cycle).
	tapOffset = 0.5

	// Hann window coefficients: gain(p) = hannOffset - hannScale*cos(2*pi*p)
	hannOffset = 0.5
	hannScale  = 0.5

	// unityFactor is the pitch factor that leaves the pitch unchanged.
	unityFactor = 1.0
)

// Gain stage constants
const (
	unityGain = 1.0
)

// Polyphase resampler constants
const (
	// numPhases is the number of filter phases per input sample.
	numPhases = 256

	// phaseFracBits is the sub-phase precision of the read position.
	phaseFracBits = 16
	phaseFracMask = (1 << phaseFracBits) - 1

	// maxTapsPerPhase bounds the filter length for extreme downsampling.
	maxTapsPerPhase = 2048

	// nyquist is the band edge in cycles per sample.
	nyquist = 0.5
)

// rationalSlack absorbs rounding in the expected output length.
const rationalSlack = 1e-9

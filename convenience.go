package tempoloop

import (
	"fmt"
	"math"

	"github.com/tphakala/tempoloop/internal/control"
	"github.com/tphakala/tempoloop/internal/engine"
)

// PitchFactor converts a semitone offset into a frequency ratio, 2^(n/12).
// 12 gives exactly 2 and -12 exactly 0.5.
func PitchFactor(semitones float64) float64 {
	return control.PitchFactor(semitones)
}

// Shifter is a streaming pitch shifter for offline use. It keeps the
// duration of the signal and delays it by Latency frames.
//
// A Shifter is not safe for concurrent use.
type Shifter[F float32 | float64] struct {
	core      *engine.Shifter[F]
	semitones float64
}

// NewShifter creates a float64 shifter for the given channel count with the
// default 4096-sample buffer. semitones is clamped into [-12, 12].
func NewShifter(channels int, semitones float64) (*Shifter[float64], error) {
	return newShifter[float64](channels, semitones)
}

// NewShifterFloat32 is like NewShifter but processes float32 samples.
func NewShifterFloat32(channels int, semitones float64) (*Shifter[float32], error) {
	return newShifter[float32](channels, semitones)
}

func newShifter[F float32 | float64](channels int, semitones float64) (*Shifter[F], error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: channels must be at least 1", ErrInvalidConfig)
	}
	core, err := engine.NewShifter[F](engine.ShifterConfig{
		Capacity: DefaultBufferCapacity,
		Channels: channels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s := &Shifter[F]{core: core}
	s.SetSemitones(semitones)
	return s, nil
}

// SetSemitones changes the shift immediately, clamped into [-12, 12].
// NaN is ignored.
func (s *Shifter[F]) SetSemitones(semitones float64) {
	if math.IsNaN(semitones) {
		return
	}
	s.semitones = math.Max(control.MinSemitones, math.Min(control.MaxSemitones, semitones))
	s.core.SetPitchFactor(PitchFactor(s.semitones))
}

// Semitones returns the current shift.
func (s *Shifter[F]) Semitones() float64 { return s.semitones }

// Process shifts one chunk of planar audio. dst and src may be the same.
func (s *Shifter[F]) Process(dst, src [][]F) {
	s.core.Process(dst, src)
}

// Latency returns the delay between input and output in frames.
func (s *Shifter[F]) Latency() int { return s.core.Latency() }

// Channels returns the channel count.
func (s *Shifter[F]) Channels() int { return s.core.Channels() }

// Reset clears the history so the next chunk starts a new stream.
func (s *Shifter[F]) Reset() { s.core.Reset() }

// ShiftMono shifts a whole mono signal. The result has the input's length
// and is aligned with it: the shifter latency is compensated.
func ShiftMono(input []float64, semitones float64) ([]float64, error) {
	out, err := ShiftChannels([][]float64{input}, semitones)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ShiftStereo shifts a stereo pair. All channels share one sweep, so the
// stereo image stays intact.
func ShiftStereo(left, right []float64, semitones float64) (leftOut, rightOut []float64, err error) {
	out, err := ShiftChannels([][]float64{left, right}, semitones)
	if err != nil {
		return nil, nil, err
	}
	return out[0], out[1], nil
}

// ShiftChannels shifts planar audio of equal-length channels. Each output
// channel has the length of its input and is aligned with it.
func ShiftChannels(channels [][]float64, semitones float64) ([][]float64, error) {
	if len(channels) == 0 {
		return nil, nil
	}

	s, err := NewShifter(len(channels), semitones)
	if err != nil {
		return nil, err
	}

	frames := 0
	for _, ch := range channels {
		frames = max(frames, len(ch))
	}
	latency := s.Latency()

	// Run the input plus one latency of silence through the shifter and
	// drop the leading latency frames.
	padded := make([][]float64, len(channels))
	for i, ch := range channels {
		padded[i] = make([]float64, frames+latency)
		copy(padded[i], ch)
	}
	s.Process(padded, padded)

	out := make([][]float64, len(channels))
	for i, ch := range channels {
		out[i] = padded[i][latency : latency+len(ch) : latency+len(ch)]
	}
	return out, nil
}

// Quality selects the filter of the sample rate converter.
type Quality = engine.Quality

// Resampling quality presets, from fastest to cleanest.
const (
	QualityQuick    = engine.QualityQuick
	QualityLow      = engine.QualityLow
	QualityMedium   = engine.QualityMedium
	QualityHigh     = engine.QualityHigh
	QualityVeryHigh = engine.QualityVeryHigh
)

// ResampleMono converts a whole mono signal from inputRate to outputRate.
// The result has ceil(len(input)*outputRate/inputRate) samples and no delay.
func ResampleMono(input []float64, inputRate, outputRate float64, quality Quality) ([]float64, error) {
	out, err := ResampleChannels([][]float64{input}, inputRate, outputRate, quality)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ResampleChannels converts planar audio from inputRate to outputRate, one
// independent filter per channel.
func ResampleChannels(channels [][]float64, inputRate, outputRate float64, quality Quality) ([][]float64, error) {
	out, err := engine.ResampleChannels(channels, inputRate, outputRate, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return out, nil
}

// FormatTime formats seconds as m:ss. Negative and non-finite values show
// as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/secondsPerMinute, total%secondsPerMinute)
}

// FormatTimePrecise formats seconds as m:ss.cc, truncated to hundredths.
func FormatTimePrecise(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	centis := int(seconds*centisPerSecond + roundingSlack)
	total := centis / centisPerSecond
	return fmt.Sprintf("%d:%02d.%02d", total/secondsPerMinute, total%secondsPerMinute, centis%centisPerSecond)
}

package engine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/tempoloop/internal/simdops"
	"github.com/tphakala/tempoloop/internal/window"
)

// ErrInvalidResampler is returned by NewResampler for unusable settings.
var ErrInvalidResampler = errors.New("invalid resampler configuration")

// Quality selects the filter length, passband and window of a Resampler.
type Quality int

const (
	// QualityQuick is a short Hann filter for previews.
	QualityQuick Quality = iota
	// QualityLow is a 16-tap Blackman filter.
	QualityLow
	// QualityMedium is a 32-tap Blackman filter.
	QualityMedium
	// QualityHigh is a 64-tap Blackman-Harris filter. It is the default.
	QualityHigh
	// QualityVeryHigh is a 128-tap Blackman-Harris filter.
	QualityVeryHigh
)

type qualitySpec struct {
	taps    int     // taps per phase when not downsampling
	rolloff float64 // cutoff as a fraction of the lower Nyquist frequency
	window  window.Type
}

var qualitySpecs = [...]qualitySpec{
	QualityQuick:    {taps: 8, rolloff: 0.80, window: window.Hann},
	QualityLow:      {taps: 16, rolloff: 0.88, window: window.Blackman},
	QualityMedium:   {taps: 32, rolloff: 0.92, window: window.Blackman},
	QualityHigh:     {taps: 64, rolloff: 0.95, window: window.BlackmanHarris},
	QualityVeryHigh: {taps: 128, rolloff: 0.97, window: window.BlackmanHarris},
}

// String returns the preset name.
func (q Quality) String() string {
	switch q {
	case QualityQuick:
		return "quick"
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	case QualityVeryHigh:
		return "very-high"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

// Resampler converts a mono stream between two fixed sample rates with a
// windowed-sinc polyphase filter.
//
// The read position is a fixed-point accumulator: the integer part selects
// the input sample and the phase, the low phaseFracBits bits blend the two
// neighbouring phases linearly. Output sample i is the input at time
// i*inputRate/outputRate, so the stream carries no delay, and Flush ends it
// with exactly ceil(n*outputRate/inputRate) samples for n input samples.
//
// Type parameter F must be float32 or float64. Filters are designed in
// float64 and stored as F.
type Resampler[F simdops.Float] struct {
	inputRate  float64
	outputRate float64
	ratio      float64 // outputRate / inputRate

	taps   int
	center int   // history samples ahead of the output time
	coeffs [][]F // numPhases+1 rows; row p is the filter at sub-sample offset p/numPhases

	at   int64
	step int64

	history   []F
	outputBuf []F

	ops *simdops.Ops[F]

	samplesIn  int64
	samplesOut int64
	flushed    bool
}

// NewResampler creates a resampler for the given sample rates.
func NewResampler[F simdops.Float](inputRate, outputRate float64, quality Quality) (*Resampler[F], error) {
	if !(inputRate > 0) || !(outputRate > 0) || math.IsInf(inputRate, 0) || math.IsInf(outputRate, 0) {
		return nil, fmt.Errorf("%w: sample rates must be positive: input=%v, output=%v",
			ErrInvalidResampler, inputRate, outputRate)
	}
	if quality < QualityQuick || int(quality) >= len(qualitySpecs) {
		return nil, fmt.Errorf("%w: unknown quality %d", ErrInvalidResampler, int(quality))
	}

	ratio := outputRate / inputRate
	spec := qualitySpecs[quality]

	// Downsampling lowers the cutoff, so the filter gets longer to keep the
	// same transition band relative to it.
	band := math.Min(1, ratio)
	taps := int(math.Ceil(float64(spec.taps)/band - rationalSlack))
	taps = min(taps+taps%2, maxTapsPerPhase)

	r := &Resampler[F]{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      ratio,
		taps:       taps,
		center:     taps/2 - 1,
		coeffs:     designPhases[F](taps, nyquist*band*spec.rolloff, spec.window),
		step:       int64(math.Round(float64(numPhases<<phaseFracBits) / ratio)),
		history:    make([]F, 0, taps*2),
		ops:        simdops.For[F](),
	}
	if r.step < 1 {
		return nil, fmt.Errorf("%w: ratio %v is too large", ErrInvalidResampler, ratio)
	}
	r.Reset()
	return r, nil
}

// designPhases builds the polyphase bank from a windowed-sinc prototype of
// numPhases*taps+1 points sampled at numPhases points per input sample.
// cutoff is in cycles per input sample.
func designPhases[F simdops.Float](taps int, cutoff float64, wt window.Type) [][]F {
	n := numPhases*taps + 1
	proto := window.Symmetric(wt, n)
	half := float64(taps) / 2
	for m := range proto {
		t := float64(m)/numPhases - half
		proto[m] *= 2 * cutoff * sinc(2*cutoff*t)
	}

	// Unity gain per phase: the prototype sums to numPhases.
	if sum := floats.Sum(proto); sum != 0 {
		floats.Scale(numPhases/sum, proto)
	}

	// Tap j of row p weighs the input (taps-1-j) - p/numPhases samples
	// before the far end of the window, i.e. prototype point
	// (taps-1-j)*numPhases + p.
	rows := make([][]F, numPhases+1)
	for p := range rows {
		row := make([]F, taps)
		for j := range row {
			row[j] = F(proto[(taps-1-j)*numPhases+p])
		}
		rows[p] = row
	}
	return rows
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// Process resamples the next chunk of input. The returned slice is owned by
// the caller.
func (r *Resampler[F]) Process(input []F) ([]F, error) {
	if r.flushed {
		return nil, fmt.Errorf("%w: process after flush", ErrInvalidResampler)
	}
	r.samplesIn += int64(len(input))
	return r.process(input, math.MaxInt64), nil
}

// Flush pushes the buffered tail out and ends the stream. Reset starts a
// new one.
func (r *Resampler[F]) Flush() ([]F, error) {
	if r.flushed {
		return []F{}, nil
	}
	r.flushed = true
	expected := int64(math.Ceil(float64(r.samplesIn)*r.ratio - rationalSlack))
	zeros := make([]F, r.taps)
	return r.process(zeros, max(0, expected-r.samplesOut)), nil
}

func (r *Resampler[F]) process(input []F, limit int64) []F {
	r.history = append(r.history, input...)
	histLen := len(r.history)

	numIn := histLen - r.taps + 1
	if numIn <= 0 || limit <= 0 {
		return []F{}
	}
	end := int64(numIn) * numPhases << phaseFracBits

	want := min(int((end-r.at+r.step-1)/r.step), int(min(limit, math.MaxInt32)))
	if want <= 0 {
		return []F{}
	}
	if cap(r.outputBuf) < want {
		r.outputBuf = make([]F, want)
	}
	out := r.outputBuf[:want]

	dot := r.ops.DotProductUnsafe
	at, step, taps := r.at, r.step, r.taps
	fracScale := F(1.0 / float64(int64(1)<<phaseFracBits))
	produced := 0
	for produced < want && at < end {
		full := at >> phaseFracBits
		div := int(full / numPhases)
		phase := int(full % numPhases)
		x := F(at&phaseFracMask) * fracScale

		hist := r.history[div : div+taps]
		a := dot(hist, r.coeffs[phase])
		b := dot(hist, r.coeffs[phase+1])
		out[produced] = a + x*(b-a)
		produced++
		at += step
	}

	consumed := int(at>>phaseFracBits) / numPhases
	consumed = min(consumed, histLen)
	if consumed > 0 {
		copy(r.history, r.history[consumed:])
		r.history = r.history[:histLen-consumed]
	}
	r.at = at - int64(consumed)*numPhases<<phaseFracBits
	r.samplesOut += int64(produced)

	result := make([]F, produced)
	copy(result, out[:produced])
	return result
}

// Reset clears the stream so the next Process starts at time zero.
func (r *Resampler[F]) Reset() {
	r.at = 0
	// Output zero lines up with the first input sample once center
	// samples of silence sit in front of it.
	r.history = append(r.history[:0], make([]F, r.center)...)
	r.samplesIn = 0
	r.samplesOut = 0
	r.flushed = false
}

// Ratio returns outputRate / inputRate.
func (r *Resampler[F]) Ratio() float64 { return r.ratio }

// TapsPerPhase returns the filter length.
func (r *Resampler[F]) TapsPerPhase() int { return r.taps }

// Statistics returns the input and output sample counts of the stream.
func (r *Resampler[F]) Statistics() map[string]int64 {
	return map[string]int64{
		"samplesIn":  r.samplesIn,
		"samplesOut": r.samplesOut,
	}
}

// ResampleChannels converts whole planar channels in one pass. Each output
// channel has ceil(len*outputRate/inputRate) samples.
func ResampleChannels[F simdops.Float](channels [][]F, inputRate, outputRate float64, quality Quality) ([][]F, error) {
	out := make([][]F, len(channels))
	for ch, in := range channels {
		r, err := NewResampler[F](inputRate, outputRate, quality)
		if err != nil {
			return nil, err
		}
		body, err := r.Process(in)
		if err != nil {
			return nil, err
		}
		tail, err := r.Flush()
		if err != nil {
			return nil, err
		}
		out[ch] = append(body, tail...)
	}
	return out, nil
}

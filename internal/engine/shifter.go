package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/tphakala/tempoloop/internal/simdops"
)

// ErrInvalidShifterConfig is returned by NewShifter for unusable settings.
var ErrInvalidShifterConfig = errors.New("invalid shifter configuration")

// Modulator supplies a per-sample control value to a processing stage.
//
// Begin is called once at the start of every block so the implementation
// can pick up a newly published target. Next is then called once per frame.
// Both run on the audio thread and must not block or allocate.
type Modulator interface {
	Begin()
	Next() float64
}

// Fixed is a Modulator that always yields the same value.
type Fixed struct {
	Value float64
}

// Begin implements Modulator.
func (f *Fixed) Begin() {}

// Next implements Modulator.
func (f *Fixed) Next() float64 { return f.Value }

// ShifterConfig configures a Shifter.
type ShifterConfig struct {
	// Capacity is the per-channel delay buffer size in samples.
	// Must be even and at least 4. Zero selects DefaultCapacity.
	Capacity int

	// Channels is the number of delay lines allocated up front (1..MaxChannels).
	// Zero selects stereo.
	Channels int

	// Pitch supplies the pitch factor per frame. Nil selects a fixed factor of 1.
	Pitch Modulator
}

// Validate checks the configuration after defaults are applied.
func (c *ShifterConfig) Validate() error {
	if c.Capacity < minShifterCapacity {
		return fmt.Errorf("%w: capacity must be at least %d: %d", ErrInvalidShifterConfig, minShifterCapacity, c.Capacity)
	}
	if c.Capacity%windowDivisor != 0 {
		return fmt.Errorf("%w: capacity must be even: %d", ErrInvalidShifterConfig, c.Capacity)
	}
	if c.Channels < 1 || c.Channels > MaxChannels {
		return fmt.Errorf("%w: channels must be in [1, %d]: %d", ErrInvalidShifterConfig, MaxChannels, c.Channels)
	}
	return nil
}

// Shifter changes the pitch of a multichannel stream without changing its
// duration, using two read taps that sweep through a delay line half a cycle
// apart and are crossfaded with a Hann window.
//
// The sweep phase is shared by all channels so stereo images stay locked.
// A Shifter is owned by a single goroutine (the audio thread); the pitch
// factor reaches it through the configured Modulator.
type Shifter[F simdops.Float] struct {
	lines  []*Line[F]
	window float64

	pitch Modulator
	fixed Fixed

	factor float64
	inc    float64
	phase  float64

	// per-frame tap state computed by advance
	delayA, delayB float64
	gainA, gainB   float64
}

// NewShifter allocates a shifter and all of its delay lines.
func NewShifter[F simdops.Float](cfg ShifterConfig) (*Shifter[F], error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Shifter[F]{
		lines:  make([]*Line[F], cfg.Channels),
		window: float64(cfg.Capacity / windowDivisor),
		fixed:  Fixed{Value: unityFactor},
		factor: unityFactor,
	}
	for ch := range s.lines {
		line, err := NewLine[F](cfg.Capacity)
		if err != nil {
			return nil, err
		}
		s.lines[ch] = line
	}

	s.pitch = cfg.Pitch
	if s.pitch == nil {
		s.pitch = &s.fixed
	}

	return s, nil
}

// SetPitchFactor switches the shifter to a constant pitch factor.
// The factor must be positive. Call it from the goroutine that processes.
func (s *Shifter[F]) SetPitchFactor(p float64) {
	s.fixed.Value = p
	s.pitch = &s.fixed
}

// Process shifts src into dst. dst and src may alias for in-place use.
// Output channels without a matching input channel or delay line are zeroed.
func (s *Shifter[F]) Process(dst, src [][]F) {
	active := min(len(dst), len(src), len(s.lines))
	frames := -1
	for ch := range active {
		frames = minFrames(frames, len(src[ch]), len(dst[ch]))
	}
	frames = max(frames, 0)

	s.pitch.Begin()
	for i := range frames {
		s.advance()
		for ch := range active {
			dst[ch][i] = s.tap(ch, src[ch][i])
		}
	}

	for ch := range dst {
		if ch < active {
			clear(dst[ch][frames:])
			continue
		}
		clear(dst[ch])
	}
}

// ProcessBlock shifts a planar float64 block in place.
func (s *Shifter[F]) ProcessBlock(block [][]float64) {
	if b, ok := any(block).([][]F); ok {
		s.Process(b, b)
		return
	}

	active := min(len(block), len(s.lines))
	frames := 0
	if active > 0 {
		frames = len(block[0])
		for ch := 1; ch < active; ch++ {
			frames = min(frames, len(block[ch]))
		}
	}

	s.pitch.Begin()
	for i := range frames {
		s.advance()
		for ch := range active {
			block[ch][i] = float64(s.tap(ch, F(block[ch][i])))
		}
	}
	for ch := active; ch < len(block); ch++ {
		clear(block[ch])
	}
}

// advance moves the shared phase one frame and precomputes both taps.
func (s *Shifter[F]) advance() {
	p := s.pitch.Next()
	if p != s.factor {
		s.factor = p
		s.inc = (unityFactor - p) / s.window
	}

	s.phase = wrap(s.phase + s.inc)
	phaseB := wrap(s.phase + tapOffset)

	s.delayA = s.phase * s.window
	s.delayB = phaseB * s.window
	s.gainA = hann(s.phase)
	s.gainB = hann(phaseB)
}

// tap writes one input sample to a channel's line and returns the crossfaded output.
func (s *Shifter[F]) tap(ch int, in F) F {
	line := s.lines[ch]
	line.Write(in)
	a := float64(line.Read(s.delayA))
	b := float64(line.Read(s.delayB))
	return F(a*s.gainA + b*s.gainB)
}

// Phase returns the current sweep phase in [0, 1).
func (s *Shifter[F]) Phase() float64 {
	return s.phase
}

// Factor returns the pitch factor used for the most recent frame.
func (s *Shifter[F]) Factor() float64 {
	return s.factor
}

// Reset flushes all delay lines and rewinds the phase.
// The pitch source is kept.
func (s *Shifter[F]) Reset() {
	for _, line := range s.lines {
		line.Reset()
	}
	s.phase = 0
	s.factor = unityFactor
	s.inc = 0
}

// Latency returns the delay in samples between input and output at factor 1.
func (s *Shifter[F]) Latency() int {
	return int(s.window) / windowDivisor
}

// Capacity returns the per-channel delay buffer size.
func (s *Shifter[F]) Capacity() int {
	return int(s.window) * windowDivisor
}

// WindowSize returns the crossfade window length in samples.
func (s *Shifter[F]) WindowSize() int {
	return int(s.window)
}

// Channels returns the number of pre-allocated delay lines.
func (s *Shifter[F]) Channels() int {
	return len(s.lines)
}

// wrap renormalises x into [0, 1). It never returns 1.
func wrap(x float64) float64 {
	r := x - math.Floor(x)
	if r >= 1 {
		return 0
	}
	return r
}

// hann returns the crossfade gain for a tap at phase x.
func hann(x float64) float64 {
	return hannOffset - hannScale*math.Cos(2*math.Pi*x)
}

func minFrames(cur, a, b int) int {
	n := min(a, b)
	if cur < 0 {
		return n
	}
	return min(cur, n)
}

// Package analysis is a pass-through tap that keeps a recent snapshot of the
// signal for visualisation, with the conventions of the browser AnalyserNode:
// frequency bins in decibels or bytes and time-domain data as floats or bytes.
//
// The audio thread only copies samples and publishes them through a lock-free
// triple buffer. Windowing, FFT and smoothing run on the reader's goroutine.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
	gw "gonum.org/v1/gonum/dsp/window"

	"github.com/tphakala/tempoloop/internal/simdops"
	"github.com/tphakala/tempoloop/internal/window"
)

// ErrInvalidConfig is returned for unusable analyser settings.
var ErrInvalidConfig = errors.New("invalid analyser configuration")

// Config configures an Analyser.
type Config struct {
	// FFTSize is the snapshot length, a power of two in [32, 32768].
	FFTSize int

	// SmoothingTimeConstant blends each spectrum with the previous one, in [0, 1].
	SmoothingTimeConstant float64

	// MinDecibels and MaxDecibels map decibels onto the byte range.
	MinDecibels float64
	MaxDecibels float64

	// Window shapes each snapshot before the FFT.
	Window window.Type
}

// DefaultConfig returns the player's analyser settings.
func DefaultConfig() Config {
	return Config{
		FFTSize:               DefaultFFTSize,
		SmoothingTimeConstant: DefaultSmoothing,
		MinDecibels:           DefaultMinDecibels,
		MaxDecibels:           DefaultMaxDecibels,
		Window:                window.Blackman,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.FFTSize < MinFFTSize || c.FFTSize > MaxFFTSize || bits.OnesCount(uint(c.FFTSize)) != 1 {
		return fmt.Errorf("%w: fft size must be a power of two in [%d, %d]: %d",
			ErrInvalidConfig, MinFFTSize, MaxFFTSize, c.FFTSize)
	}
	if c.SmoothingTimeConstant < 0 || c.SmoothingTimeConstant > 1 || math.IsNaN(c.SmoothingTimeConstant) {
		return fmt.Errorf("%w: smoothing must be in [0, 1]: %v", ErrInvalidConfig, c.SmoothingTimeConstant)
	}
	if !(c.MinDecibels < c.MaxDecibels) {
		return fmt.Errorf("%w: min decibels %v must be below max decibels %v",
			ErrInvalidConfig, c.MinDecibels, c.MaxDecibels)
	}
	return nil
}

// Analyser is a pass-through pipeline stage exposing signal snapshots.
//
// ProcessBlock and Reset belong to the audio thread. The Get* methods and
// Level may be called from any goroutine.
type Analyser struct {
	cfg  Config
	size int

	// audio side
	ring  []float64
	pos   int
	back  int
	slots [slotCount][]float64
	state atomic.Uint32

	// reader side
	mu       sync.Mutex
	front    int
	dirty    bool
	win      gw.Values
	fft      *fourier.FFT
	windowed []float64
	coeffs   []complex128
	smoothed []float64
	decibels []float64
}

// New creates an analyser.
func New(cfg Config) (*Analyser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.FFTSize

	a := &Analyser{
		cfg:      cfg,
		size:     n,
		ring:     make([]float64, n),
		back:     1,
		win:      window.New(cfg.Window, n),
		fft:      fourier.NewFFT(n),
		windowed: make([]float64, n),
		coeffs:   make([]complex128, n/2+1),
		smoothed: make([]float64, n/2),
		decibels: make([]float64, n/2),
		dirty:    true,
	}
	for i := range a.slots {
		a.slots[i] = make([]float64, n)
	}
	// slot 0 is the reader's, slot 1 the writer's, slot 2 the exchange slot
	a.state.Store(2)

	return a, nil
}

// FFTSize returns the snapshot length.
func (a *Analyser) FFTSize() int { return a.size }

// FrequencyBinCount returns half the FFT size.
func (a *Analyser) FrequencyBinCount() int { return a.size / 2 }

// Config returns the analyser settings.
func (a *Analyser) Config() Config { return a.cfg }

// ProcessBlock records the block's mono mix and publishes the newest
// FFTSize samples. The block is not modified.
func (a *Analyser) ProcessBlock(block [][]float64) {
	if len(block) == 0 {
		return
	}
	frames := len(block[0])
	for _, ch := range block[1:] {
		frames = min(frames, len(ch))
	}
	if frames == 0 {
		return
	}

	scale := 1 / float64(len(block))
	for i := range frames {
		var sum float64
		for _, ch := range block {
			sum += ch[i]
		}
		a.ring[a.pos] = sum * scale
		a.pos++
		if a.pos == a.size {
			a.pos = 0
		}
	}

	a.publish()
}

// Reset clears the recorded history and publishes silence.
func (a *Analyser) Reset() {
	clear(a.ring)
	a.pos = 0
	a.publish()
}

// publish copies the ring, oldest first, into the back slot and swaps it in.
func (a *Analyser) publish() {
	dst := a.slots[a.back]
	n := copy(dst, a.ring[a.pos:])
	copy(dst[n:], a.ring[:a.pos])

	prev := a.state.Swap(uint32(a.back) | freshBit)
	a.back = int(prev &^ freshBit)
}

// refresh takes the newest published snapshot if there is one. Caller holds mu.
func (a *Analyser) refresh() {
	if a.state.Load()&freshBit == 0 {
		return
	}
	prev := a.state.Swap(uint32(a.front))
	a.front = int(prev &^ freshBit)
	a.dirty = true
}

// snapshot returns the current time-domain frame. Caller holds mu.
func (a *Analyser) snapshot() []float64 {
	a.refresh()
	return a.slots[a.front]
}

// GetFloatTimeDomainData copies the current waveform into dst.
func (a *Analyser) GetFloatTimeDomainData(dst []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	src := a.snapshot()
	for i := range min(len(dst), len(src)) {
		dst[i] = float32(src[i])
	}
}

// GetByteTimeDomainData copies the current waveform into dst as bytes,
// where 128 is silence and full scale spans [0, 255].
func (a *Analyser) GetByteTimeDomainData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	src := a.snapshot()
	for i := range min(len(dst), len(src)) {
		dst[i] = clampByte(timeDomainZero * (1 + src[i]))
	}
}

// GetFloatFrequencyData copies the current spectrum into dst in decibels.
// Silent bins are -Inf.
func (a *Analyser) GetFloatFrequencyData(dst []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	db := a.spectrum()
	for i := range min(len(dst), len(db)) {
		dst[i] = float32(db[i])
	}
}

// GetByteFrequencyData copies the current spectrum into dst, mapping
// [MinDecibels, MaxDecibels] onto [0, 255].
func (a *Analyser) GetByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	db := a.spectrum()
	scale := maxByte / (a.cfg.MaxDecibels - a.cfg.MinDecibels)
	for i := range min(len(dst), len(db)) {
		if math.IsInf(db[i], -1) {
			dst[i] = 0
			continue
		}
		dst[i] = clampByte(scale * (db[i] - a.cfg.MinDecibels))
	}
}

// Level returns the RMS level of the current waveform.
func (a *Analyser) Level() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return simdops.RMS(a.snapshot())
}

// spectrum recomputes the smoothed decibel spectrum when a new frame
// arrived since the last call. Caller holds mu.
func (a *Analyser) spectrum() []float64 {
	src := a.snapshot()
	if !a.dirty {
		return a.decibels
	}
	a.dirty = false

	a.win.TransformTo(a.windowed, src)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	tau := a.cfg.SmoothingTimeConstant
	norm := 1 / float64(a.size)
	for k := range a.smoothed {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) * norm
		s := tau*a.smoothed[k] + (1-tau)*mag
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.smoothed[k] = s
		a.decibels[k] = decibelsPerLog * math.Log10(s)
	}
	return a.decibels
}

func clampByte(v float64) byte {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= maxByte:
		return maxByte
	default:
		return byte(v)
	}
}

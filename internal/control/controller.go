package control

import (
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// PitchFactor converts a semitone offset into a frequency ratio, 2^(n/12).
func PitchFactor(semitones float64) float64 {
	if semitones == 0 {
		return 1
	}
	return math.Pow(octaveRatio, semitones/semitonesPerOctave)
}

// RateSetter applies a playback rate natively on the host side.
type RateSetter interface {
	SetPlaybackRate(rate float64) error
}

// Config configures a Controller.
type Config struct {
	// SampleRate of the audio session, used to convert ramp time to frames.
	SampleRate int

	// RampDuration is the time a pitch or volume change takes to complete.
	// Zero applies changes at the next block without smoothing.
	RampDuration time.Duration

	// Logger receives debug output. Nil discards it.
	Logger *logrus.Logger
}

// Controller maps user-facing parameters onto the audio-thread Params.
//
// Controller methods belong to the control thread and are not safe for
// concurrent use; callers serialise them.
type Controller struct {
	pitch  *Param
	volume *Param
	rate   RateSetter

	rampSamples int

	semitones    int
	playbackRate float64
	level        float64

	log *logrus.Entry
}

// New creates a Controller at unity pitch, rate and volume.
func New(cfg Config) *Controller {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.RampDuration < 0 {
		cfg.RampDuration = DefaultRampDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Controller{
		pitch:        NewParam(1),
		volume:       NewParam(MaxVolume),
		rampSamples:  int(math.Round(cfg.RampDuration.Seconds() * float64(cfg.SampleRate))),
		playbackRate: unityRate,
		level:        MaxVolume,
		log:          logger.WithField("component", "control"),
	}
}

// PitchParam is the audio-thread view of the pitch factor.
func (c *Controller) PitchParam() *Param { return c.pitch }

// VolumeParam is the audio-thread view of the output gain.
func (c *Controller) VolumeParam() *Param { return c.volume }

// SetRateSetter attaches the host that applies playback rate changes.
func (c *Controller) SetRateSetter(r RateSetter) {
	c.rate = r
}

// RampSamples returns the ramp length in frames.
func (c *Controller) RampSamples() int {
	return c.rampSamples
}

// SetPitchSemitones clamps n into [MinSemitones, MaxSemitones], ramps the
// pitch factor towards 2^(n/12) and returns that factor.
func (c *Controller) SetPitchSemitones(n int) float64 {
	n = max(MinSemitones, min(MaxSemitones, n))
	factor := PitchFactor(float64(n))

	c.semitones = n
	c.pitch.RampTo(factor, c.rampSamples)

	c.log.WithFields(logrus.Fields{
		"semitones": n,
		"factor":    factor,
		"ramp":      c.rampSamples,
	}).Debug("pitch changed")

	return factor
}

// SetPlaybackRate clamps r into [MinPlaybackRate, MaxPlaybackRate] and hands
// it to the host unchanged. The pitch path is never touched.
func (c *Controller) SetPlaybackRate(r float64) (float64, error) {
	r = clamp(r, MinPlaybackRate, MaxPlaybackRate, c.playbackRate)
	c.playbackRate = r

	c.log.WithField("rate", r).Debug("playback rate changed")

	if c.rate == nil {
		return r, nil
	}
	return r, c.rate.SetPlaybackRate(r)
}

// SetVolume clamps v into [MinVolume, MaxVolume] and ramps the output gain.
func (c *Controller) SetVolume(v float64) float64 {
	v = clamp(v, MinVolume, MaxVolume, c.level)
	c.level = v
	c.volume.RampTo(v, c.rampSamples)

	c.log.WithField("volume", v).Debug("volume changed")

	return v
}

// PitchSemitones returns the last accepted semitone offset.
func (c *Controller) PitchSemitones() int { return c.semitones }

// PitchFactor returns the pitch factor the audio thread is ramping towards.
func (c *Controller) PitchFactor() float64 { return c.pitch.Target() }

// PlaybackRate returns the last accepted playback rate.
func (c *Controller) PlaybackRate() float64 { return c.playbackRate }

// Volume returns the last accepted volume.
func (c *Controller) Volume() float64 { return c.level }

// clamp bounds v into [lo, hi]. NaN keeps the fallback.
func clamp(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}

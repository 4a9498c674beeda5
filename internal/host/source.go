package host

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/sirupsen/logrus"

	"github.com/tphakala/tempoloop"
	"github.com/tphakala/tempoloop/internal/engine"
)

// Source errors.
var (
	// ErrInvalidRate is returned for a playback rate that is not positive.
	ErrInvalidRate = errors.New("playback rate must be positive")

	// ErrSourceClosed is returned by Play after Close.
	ErrSourceClosed = errors.New("source closed")
)

// pcmStreamer exposes a session-rate copy of a track to beep. Only the
// audio thread uses it once it has been handed over.
type pcmStreamer struct {
	left, right []float64
	pos         int
}

var _ beep.StreamSeeker = (*pcmStreamer)(nil)

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.left) {
		return 0, false
	}
	n = min(len(samples), len(s.left)-s.pos)
	for i := range n {
		samples[i][0] = s.left[s.pos+i]
		samples[i][1] = s.right[s.pos+i]
	}
	s.pos += n
	return n, true
}

func (s *pcmStreamer) Err() error { return nil }

func (s *pcmStreamer) Len() int { return len(s.left) }

func (s *pcmStreamer) Position() int { return s.pos }

func (s *pcmStreamer) Seek(p int) error {
	s.pos = max(0, min(p, len(s.left)))
	return nil
}

// cursor is a read position prepared on the control side: a PCM streamer
// placed at frame and the speed resampler reading from it.
type cursor struct {
	pcm       *pcmStreamer
	resampler *beep.Resampler
	frame     int64
	rate      float64
}

// Source plays a decoded track into the graph.
//
// The track is converted to the session rate once, when the source is
// created. The playback rate is then applied natively: a beep resampler
// changes the speed (and with it the pitch) and a compensating shifter at
// the inverse factor restores the pitch. Control methods publish their
// changes atomically; Read picks them up at the start of the next block
// without allocating.
type Source struct {
	track       *Track
	sessionRate int
	left, right []float64

	// control side -> audio thread
	playing atomic.Bool
	closed  atomic.Bool
	pending atomic.Pointer[cursor]
	rate    atomic.Uint64

	// audio thread -> control side
	frame atomic.Int64
	ended atomic.Bool

	// audio thread
	cur         *cursor
	comp        *engine.Shifter[float64]
	scratch     [][2]float64
	planar      [2][]float64
	view        [][]float64
	appliedRate float64

	// play head: the cursor's start frame plus the frames consumed since
	consumed float64

	log *logrus.Entry
}

var _ tempoloop.Source = (*Source)(nil)

// NewSource prepares track for playback in a session running at
// sessionRate. A track at another rate is resampled here, on the caller's
// goroutine.
func NewSource(track *Track, sessionRate int, logger *logrus.Logger) (*Source, error) {
	if track == nil || track.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: no audio", ErrInvalidWAV)
	}
	if sessionRate <= 0 {
		return nil, fmt.Errorf("session sample rate must be positive: %d", sessionRate)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	log := logger.WithFields(logrus.Fields{
		"component": "source",
		"track":     track.Meta.Name,
	})

	comp, err := engine.NewShifter[float64](engine.ShifterConfig{Channels: stereoChannels})
	if err != nil {
		return nil, err
	}

	left, right, err := sessionChannels(track, sessionRate, log)
	if err != nil {
		return nil, err
	}

	s := &Source{
		track:       track,
		sessionRate: sessionRate,
		left:        left,
		right:       right,
		comp:        comp,
		scratch:     make([][2]float64, scratchFrames),
		view:        make([][]float64, stereoChannels),
		appliedRate: 1,
		log:         log,
	}
	s.planar[0] = make([]float64, scratchFrames)
	s.planar[1] = make([]float64, scratchFrames)
	s.storeRate(1)
	s.cur = s.newCursor(0, 1)
	return s, nil
}

// sessionChannels returns the left and right channels of track at
// sessionRate. Mono plays on both sides; channels past the first two are
// not played.
func sessionChannels(track *Track, sessionRate int, log *logrus.Entry) (left, right []float64, err error) {
	var played [][]float64
	switch track.Channels() {
	case 0:
		played = [][]float64{nil}
	case 1:
		played = track.Samples[:1]
	default:
		played = track.Samples[:stereoChannels]
	}

	if track.SampleRate != sessionRate && track.Frames() > 0 {
		start := time.Now()
		played, err = tempoloop.ResampleChannels(played, float64(track.SampleRate), float64(sessionRate), conversionQuality)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to convert %d Hz to %d Hz: %w", track.SampleRate, sessionRate, err)
		}
		log.WithFields(logrus.Fields{
			"from":    track.SampleRate,
			"to":      sessionRate,
			"elapsed": time.Since(start),
		}).Debug("converted sample rate")
	}

	if len(played) == 1 {
		return played[0], played[0], nil
	}
	return played[0], played[1], nil
}

// newCursor builds a read position at frame for the given speed. It
// allocates, so it never runs on the audio thread.
func (s *Source) newCursor(frame int64, rate float64) *cursor {
	pcm := &pcmStreamer{left: s.left, right: s.right}
	_ = pcm.Seek(int(frame))
	return &cursor{
		pcm:       pcm,
		resampler: beep.ResampleRatio(resampleQuality, rate, pcm),
		frame:     frame,
		rate:      rate,
	}
}

func (s *Source) frames() int64 { return int64(len(s.left)) }

// Format returns the native sample rate and channel count of the track.
func (s *Source) Format() (sampleRate, channels int) {
	return s.track.SampleRate, s.track.Channels()
}

// Metadata returns the track's file metadata.
func (s *Source) Metadata() tempoloop.Metadata { return s.track.Meta }

// Play starts playback. After the end of the track it starts over.
func (s *Source) Play() error {
	if s.closed.Load() {
		return ErrSourceClosed
	}
	if s.ended.Load() {
		s.Seek(0)
	}
	s.playing.Store(true)
	return nil
}

// Pause stops playback and keeps the position.
func (s *Source) Pause() {
	s.playing.Store(false)
}

// Playing reports whether the source is producing audio.
func (s *Source) Playing() bool { return s.playing.Load() }

// Seek moves the play head to seconds, clamped to the track. The new read
// position is built here and handed to the audio thread whole.
func (s *Source) Seek(seconds float64) {
	if math.IsNaN(seconds) {
		return
	}
	f := int64(math.Round(seconds * float64(s.sessionRate)))
	f = max(0, min(f, s.frames()))
	s.frame.Store(f)
	s.ended.Store(false)
	s.pending.Store(s.newCursor(f, s.PlaybackRate()))
}

// Position returns the play head in seconds.
func (s *Source) Position() float64 {
	return float64(s.frame.Load()) / float64(s.sessionRate)
}

// Duration returns the track length in seconds.
func (s *Source) Duration() float64 {
	return float64(s.frames()) / float64(s.sessionRate)
}

// Ended reports that playback ran off the end of the track.
func (s *Source) Ended() bool { return s.ended.Load() }

// SetPlaybackRate changes the speed. The pitch is preserved.
func (s *Source) SetPlaybackRate(rate float64) error {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	s.storeRate(rate)
	s.log.WithField("rate", rate).Debug("playback rate set")
	return nil
}

// PlaybackRate returns the last rate set.
func (s *Source) PlaybackRate() float64 {
	return math.Float64frombits(s.rate.Load())
}

// PreservesPitch is always true: rate changes are pitch-compensated.
func (s *Source) PreservesPitch() bool { return true }

// Close stops the source for good. Read may still be running on the audio
// thread; it only sees silence from now on.
func (s *Source) Close() error {
	s.closed.Store(true)
	s.playing.Store(false)
	return nil
}

func (s *Source) storeRate(r float64) {
	s.rate.Store(math.Float64bits(r))
}

// Read implements pipeline.Source. It runs on the audio thread and does not
// allocate.
func (s *Source) Read(dst [][]float64) int {
	if len(dst) == 0 {
		return 0
	}

	if c := s.pending.Swap(nil); c != nil {
		// The new cursor drops samples buffered before the seek and
		// forgets an earlier end of stream.
		s.cur = c
		s.appliedRate = c.rate
		s.comp.SetPitchFactor(1 / c.rate)
		s.comp.Reset()
		s.consumed = 0
	}
	if !s.playing.Load() || s.closed.Load() {
		return 0
	}

	if r := s.PlaybackRate(); r != s.appliedRate {
		s.cur.resampler.SetRatio(r)
		s.comp.SetPitchFactor(1 / r)
		s.appliedRate = r
	}

	want := len(dst[0])
	for _, ch := range dst[1:] {
		want = min(want, len(ch))
	}

	done, exhausted := 0, false
	for done < want {
		chunk := min(want-done, len(s.scratch))
		n, ok := s.cur.resampler.Stream(s.scratch[:chunk])
		s.emit(dst, done, n)
		done += n
		if !ok || n < chunk {
			exhausted = true
			break
		}
	}

	// The resampler reads ahead of what it emits, so the play head is
	// derived from the output rather than from the PCM cursor.
	s.consumed += float64(done) * s.appliedRate
	total := s.frames()
	pos := min(s.cur.frame+int64(s.consumed), total)
	if exhausted {
		pos = total
	}

	if s.pending.Load() == nil {
		s.frame.Store(pos)
		if exhausted {
			s.ended.Store(true)
			s.playing.Store(false)
		}
	}
	return done
}

// emit pitch-corrects n resampled frames and writes them at dst[...][at:].
func (s *Source) emit(dst [][]float64, at, n int) {
	if n <= 0 {
		return
	}
	left, right := s.planar[0][:n], s.planar[1][:n]
	for i, fr := range s.scratch[:n] {
		left[i], right[i] = fr[0], fr[1]
	}
	s.view[0], s.view[1] = left, right
	s.comp.Process(s.view, s.view)

	switch len(dst) {
	case 1:
		out := dst[0][at : at+n]
		for i := range out {
			out[i] = (left[i] + right[i]) / stereoChannels
		}
	default:
		copy(dst[0][at:at+n], left)
		copy(dst[1][at:at+n], right)
		for _, ch := range dst[stereoChannels:] {
			clear(ch[at : at+n])
		}
	}
}

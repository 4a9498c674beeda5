package host

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/sirupsen/logrus"

	"github.com/tphakala/tempoloop/internal/pipeline"
)

// errSpeakerNotOpen is returned by Suspend and Resume before Open.
var errSpeakerNotOpen = errors.New("speaker not open")

// SpeakerSink renders the graph to the system audio device through the
// beep speaker. The speaker is process-wide, so only one SpeakerSink may be
// open at a time.
type SpeakerSink struct {
	buffer time.Duration

	mu       sync.Mutex
	ctrl     *beep.Ctrl
	r        pipeline.Renderer
	block    *pipeline.Block
	channels int

	log *logrus.Entry
}

var _ pipeline.Sink = (*SpeakerSink)(nil)

// NewSpeakerSink creates a closed sink. buffer is the device latency; zero
// selects DefaultSpeakerBuffer.
func NewSpeakerSink(buffer time.Duration, logger *logrus.Logger) *SpeakerSink {
	if buffer <= 0 {
		buffer = DefaultSpeakerBuffer
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &SpeakerSink{
		buffer: buffer,
		log:    logger.WithField("component", "speaker"),
	}
}

// Open starts the device and begins rendering r. The speaker plays mono or
// stereo only.
func (s *SpeakerSink) Open(sampleRate, channels int, r pipeline.Renderer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channels < 1 || channels > stereoChannels {
		return fmt.Errorf("speaker plays 1 or 2 channels, not %d", channels)
	}

	sr := beep.SampleRate(sampleRate)
	frames := sr.N(s.buffer)
	if err := speaker.Init(sr, frames); err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}

	s.r = r
	s.channels = channels
	s.block = pipeline.NewBlock(channels, frames)
	s.ctrl = &beep.Ctrl{Streamer: beep.StreamerFunc(s.stream)}
	speaker.Play(s.ctrl)

	s.log.WithFields(logrus.Fields{
		"sample_rate": sampleRate,
		"channels":    channels,
		"buffer":      s.buffer,
	}).Info("speaker opened")
	return nil
}

// stream is called by the speaker with its lock held.
func (s *SpeakerSink) stream(samples [][2]float64) (int, bool) {
	done := 0
	for done < len(samples) {
		n := min(len(samples)-done, s.block.Capacity())
		view := s.block.View(n)
		s.r.Render(view)

		out := samples[done : done+n]
		if s.channels == 1 {
			for i, v := range view[0] {
				out[i] = [2]float64{v, v}
			}
		} else {
			left, right := view[0], view[1]
			for i := range out {
				out[i] = [2]float64{left[i], right[i]}
			}
		}
		done += n
	}
	return len(samples), true
}

// Suspend pauses the output. The device stays open and plays silence.
func (s *SpeakerSink) Suspend() error {
	return s.setPaused(true)
}

// Resume restarts a suspended output.
func (s *SpeakerSink) Resume() error {
	return s.setPaused(false)
}

func (s *SpeakerSink) setPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return errSpeakerNotOpen
	}
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// Close stops the device. Once it returns the renderer is no longer called.
func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	s.ctrl = nil
	s.r = nil
	s.log.Info("speaker closed")
	return nil
}

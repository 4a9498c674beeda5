package pipeline

import (
	"errors"
	"sync"
)

// errNotOpen is returned by OfflineSink.Suspend and Resume before Open.
var errNotOpen = errors.New("sink not open")

// OfflineSink is a Sink without a device clock: the owner pulls blocks with
// Pull. It serves offline rendering and tests.
type OfflineSink struct {
	// OpenErr, when set, is returned by Open to simulate a host without
	// real-time support.
	OpenErr error

	mu         sync.Mutex
	r          Renderer
	sampleRate int
	channels   int
	opens      int
	suspended  bool
	closed     bool
}

// Open implements Sink.
func (s *OfflineSink) Open(sampleRate, channels int, r Renderer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens++
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.r = r
	s.sampleRate = sampleRate
	s.channels = channels
	s.closed = false
	return nil
}

// Pull renders one block. A sink that is not open, suspended or closed
// yields silence.
func (s *OfflineSink) Pull(block [][]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r == nil || s.suspended || s.closed {
		silence(block, 0)
		return 0, false
	}
	return s.r.Render(block)
}

// Suspend implements Sink.
func (s *OfflineSink) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r == nil {
		return errNotOpen
	}
	s.suspended = true
	return nil
}

// Resume implements Sink.
func (s *OfflineSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r == nil {
		return errNotOpen
	}
	s.suspended = false
	return nil
}

// Close implements Sink. It waits for an in-flight Pull.
func (s *OfflineSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.r = nil
	return nil
}

// Opens returns how many times Open was called.
func (s *OfflineSink) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Format returns the sample rate and channel count passed to Open.
func (s *OfflineSink) Format() (sampleRate, channels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate, s.channels
}

// Suspended reports whether the sink is suspended.
func (s *OfflineSink) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

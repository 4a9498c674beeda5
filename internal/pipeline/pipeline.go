// Package pipeline assembles the real-time audio graph:
//
//	source → stages (shifter → analyser → gain) → sink
//
// The graph is built once per session. Loading another track only swaps the
// source; the audio thread notices the swap at the next block and flushes
// every stage so no tail of the previous track leaks into the new one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Pipeline errors.
var (
	// ErrUnavailable reports that the host cannot run real-time processing.
	ErrUnavailable = errors.New("real-time audio processing unavailable")

	// ErrClosed is returned by operations on a closed pipeline.
	ErrClosed = errors.New("pipeline closed")
)

// Stage processes a planar block in place on the audio thread.
type Stage interface {
	// ProcessBlock transforms block in place. It must not block or allocate.
	ProcessBlock(block [][]float64)

	// Reset drops all history so the next block starts from silence.
	Reset()
}

// Source supplies decoded audio to the graph on the audio thread.
type Source interface {
	// Read fills dst with up to len(dst[0]) frames and returns how many
	// it wrote. Frames past the returned count are ignored.
	Read(dst [][]float64) int
}

// Renderer is the callback a Sink drives from its audio thread.
type Renderer interface {
	// Render fills block completely. n is the number of frames taken from
	// the source; ok is false when no source is attached or the pipeline
	// is not running, in which case block holds silence.
	Render(block [][]float64) (n int, ok bool)
}

// Sink is the audio output device.
type Sink interface {
	// Open starts the device and begins calling r.Render from the audio
	// thread. An error means real-time output is unavailable.
	Open(sampleRate, channels int, r Renderer) error

	// Suspend pauses the device clock without releasing it.
	Suspend() error

	// Resume restarts a suspended device.
	Resume() error

	// Close stops the device. No Render call may be in flight after it returns.
	Close() error
}

// State is the lifecycle state of a Pipeline.
type State int32

const (
	// Idle means the graph has not been built yet.
	Idle State = iota

	// Running means the sink is pulling blocks.
	Running

	// Suspended means the graph exists but the sink clock is paused.
	Suspended

	// Closed means the session is over.
	Closed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a Pipeline.
type Config struct {
	SampleRate int
	Channels   int
	Logger     *logrus.Logger
}

type sourceBox struct {
	src Source
}

// Pipeline owns the audio graph of one playback session.
type Pipeline struct {
	cfg Config

	// mu serialises lifecycle changes on the control side. The audio
	// thread never takes it.
	mu     sync.Mutex
	state  atomic.Int32
	sink   Sink
	stages []Stage

	source atomic.Pointer[sourceBox]

	// audio-thread state
	current *sourceBox

	log *logrus.Entry
}

// New creates an idle pipeline.
func New(cfg Config) *Pipeline {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Pipeline{
		cfg: cfg,
		log: logger.WithField("component", "pipeline"),
	}
}

// State returns the lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// SampleRate returns the session sample rate.
func (p *Pipeline) SampleRate() int { return p.cfg.SampleRate }

// Channels returns the session channel count.
func (p *Pipeline) Channels() int { return p.cfg.Channels }

// Init builds the graph and opens the sink. It is idempotent: a running
// pipeline is left alone and a suspended one is resumed. If the sink cannot
// be opened the error wraps ErrUnavailable and the pipeline stays Idle.
func (p *Pipeline) Init(ctx context.Context, sink Sink, stages ...Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case Running:
		return nil
	case Suspended:
		return p.resumeLocked()
	case Closed:
		return ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if sink == nil {
		return fmt.Errorf("%w: no audio output", ErrUnavailable)
	}

	p.stages = stages
	p.sink = sink
	// Render checks the state, so publish Running before the sink can call it.
	p.state.Store(int32(Running))

	if err := sink.Open(p.cfg.SampleRate, p.cfg.Channels, p); err != nil {
		p.state.Store(int32(Idle))
		p.stages = nil
		p.sink = nil
		p.log.WithError(err).Warn("audio output unavailable")
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	p.log.WithFields(logrus.Fields{
		"sample_rate": p.cfg.SampleRate,
		"channels":    p.cfg.Channels,
		"stages":      len(stages),
	}).Info("audio graph started")
	return nil
}

// SetSource attaches src to the graph, replacing the previous source.
// Nil detaches it. Safe to call while the audio thread is rendering.
func (p *Pipeline) SetSource(src Source) {
	p.source.Store(&sourceBox{src: src})
}

// Render implements Renderer. It runs on the audio thread.
func (p *Pipeline) Render(block [][]float64) (int, bool) {
	if p.State() != Running {
		silence(block, 0)
		return 0, false
	}

	if box := p.source.Load(); box != p.current {
		p.current = box
		for _, s := range p.stages {
			s.Reset()
		}
	}

	n, ok := 0, false
	if p.current != nil && p.current.src != nil {
		n, ok = p.current.src.Read(block), true
		if len(block) > 0 {
			n = max(0, min(n, len(block[0])))
		}
	}
	silence(block, n)

	for _, s := range p.stages {
		s.ProcessBlock(block)
	}
	return n, ok
}

// Suspend pauses the sink clock. It is a no-op unless the pipeline runs.
func (p *Pipeline) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != Running {
		return nil
	}
	if err := p.sink.Suspend(); err != nil {
		return err
	}
	p.state.Store(int32(Suspended))
	p.log.Debug("audio graph suspended")
	return nil
}

// Resume restarts a suspended sink.
func (p *Pipeline) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resumeLocked()
}

func (p *Pipeline) resumeLocked() error {
	switch p.State() {
	case Closed:
		return ErrClosed
	case Suspended:
	default:
		return nil
	}
	if err := p.sink.Resume(); err != nil {
		return err
	}
	p.state.Store(int32(Running))
	p.log.Debug("audio graph resumed")
	return nil
}

// Close stops the sink and then flushes every stage.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == Closed {
		return nil
	}
	prev := p.State()
	p.state.Store(int32(Closed))

	var err error
	if prev != Idle && p.sink != nil {
		err = p.sink.Close()
	}
	for _, s := range p.stages {
		s.Reset()
	}
	p.current = nil
	p.log.Info("audio graph closed")
	return err
}

// silence zeroes every channel from frame n on.
func silence(block [][]float64, n int) {
	for _, ch := range block {
		if n < len(ch) {
			clear(ch[n:])
		}
	}
}

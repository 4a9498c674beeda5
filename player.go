package tempoloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/tempoloop/internal/analysis"
	"github.com/tphakala/tempoloop/internal/control"
	"github.com/tphakala/tempoloop/internal/engine"
	"github.com/tphakala/tempoloop/internal/pipeline"
	"github.com/tphakala/tempoloop/internal/transport"
)

// Analyser is the read-only spectrum and waveform view of the output.
// Its methods may be called from any goroutine.
type Analyser interface {
	FFTSize() int
	FrequencyBinCount() int
	GetByteFrequencyData(dst []byte)
	GetFloatFrequencyData(dst []float32)
	GetByteTimeDomainData(dst []byte)
	GetFloatTimeDomainData(dst []float32)
	Level() float64
}

// Player is the control surface of a playback session.
//
// The audio graph is built on the first Play and reused for every track
// loaded afterwards.
type Player struct {
	cfg Config

	mu        sync.Mutex
	sink      Sink
	graph     *pipeline.Pipeline
	ctrl      *control.Controller
	transport *transport.Machine
	shifter   *engine.Shifter[float64]
	analyser  *analysis.Analyser
	gain      *engine.Gain

	source      Source
	meta        Metadata
	lastErr     error
	unavailable bool
	closed      bool

	log *logrus.Entry
}

// NewPlayer creates a player that renders into sink. The sink is not opened
// until the first Play.
func NewPlayer(cfg Config, sink Sink) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	ctrl := control.New(control.Config{
		SampleRate:   cfg.SampleRate,
		RampDuration: cfg.RampDuration,
		Logger:       logger,
	})

	shifter, err := engine.NewShifter[float64](engine.ShifterConfig{
		Capacity: cfg.BufferCapacity,
		Channels: cfg.Channels,
		Pitch:    ctrl.PitchParam(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	analyser, err := analysis.New(cfg.analyserConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &Player{
		cfg:  cfg,
		sink: sink,
		graph: pipeline.New(pipeline.Config{
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Logger:     logger,
		}),
		ctrl:      ctrl,
		transport: transport.New(logger),
		shifter:   shifter,
		analyser:  analyser,
		gain:      engine.NewGain(ctrl.VolumeParam()),
		log:       logger.WithField("component", "player"),
	}, nil
}

// Load replaces the current track. The transport stops at position 0, the
// loop region is cleared and the current playback rate carries over.
func (p *Player) Load(src Source, meta Metadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if src == nil {
		return ErrNoSource
	}

	if old := p.source; old != nil {
		old.Pause()
		if err := old.Close(); err != nil {
			p.log.WithError(err).Warn("failed to close previous track")
		}
	}

	src.Pause()
	src.Seek(0)
	if err := src.SetPlaybackRate(p.ctrl.PlaybackRate()); err != nil {
		p.log.WithError(err).Warn("track rejected playback rate")
	}

	p.source = src
	p.meta = meta
	p.lastErr = nil
	p.ctrl.SetRateSetter(src)
	p.transport.Load(src.Duration())
	p.graph.SetSource(src)

	p.log.WithFields(logrus.Fields{
		"name":     meta.Name,
		"duration": src.Duration(),
	}).Info("track loaded")
	return nil
}

// Play starts playback, building the audio graph on first use. If the graph
// cannot be built the error wraps ErrEngineUnavailable and the track stays
// silent. If the host refuses to play, the error wraps ErrPlaybackFailed.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.playLocked(ctx)
}

// Pause stops playback and keeps the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pauseLocked()
}

// TogglePlay pauses a playing track and plays a paused one.
func (p *Player) TogglePlay(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transport.Playing() {
		p.pauseLocked()
		return nil
	}
	return p.playLocked(ctx)
}

func (p *Player) playLocked(ctx context.Context) error {
	if p.closed {
		return ErrClosed
	}
	if p.source == nil {
		return ErrNoSource
	}

	if err := p.initLocked(ctx); err != nil {
		return err
	}

	if err := p.source.Play(); err != nil {
		p.transport.Pause()
		p.lastErr = fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
		p.log.WithError(err).Warn("playback failed")
		return p.lastErr
	}

	p.transport.Play()
	p.lastErr = nil
	p.log.WithField("position", p.source.Position()).Debug("playing")
	return nil
}

// initLocked builds the graph or resumes it. The graph is idempotent, so
// this is cheap once running.
func (p *Player) initLocked(ctx context.Context) error {
	err := p.graph.Init(ctx, p.sink, p.shifter, p.analyser, p.gain)
	switch {
	case err == nil:
		p.unavailable = false
		return nil
	case errors.Is(err, pipeline.ErrUnavailable):
		p.unavailable = true
		p.lastErr = fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		p.log.WithError(err).Error("pitch engine unavailable")
		return p.lastErr
	default:
		return err
	}
}

func (p *Player) pauseLocked() {
	if p.source != nil {
		p.source.Pause()
	}
	p.transport.Pause()
}

// Seek moves the play head, clamped into [0, duration], and returns the
// position used.
func (p *Player) Seek(seconds float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.transport.Seek(seconds)
	if p.source != nil {
		p.source.Seek(pos)
	}
	return pos
}

// Reset seeks back to the start of the track.
func (p *Player) Reset() float64 {
	return p.Seek(0)
}

// SetPitchSemitones clamps n into [-12, 12] and glides the pitch there.
// It returns the target pitch factor. While the engine is unavailable pitch
// control is disabled and the error wraps ErrEngineUnavailable.
func (p *Player) SetPitchSemitones(n int) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unavailable {
		return p.ctrl.PitchFactor(), ErrEngineUnavailable
	}
	return p.ctrl.SetPitchSemitones(n), nil
}

// SetPlaybackRate clamps r into [0.25, 2] and hands it to the host. The
// pitch is not affected. It returns the rate used.
func (p *Player) SetPlaybackRate(r float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rate, err := p.ctrl.SetPlaybackRate(r)
	if err != nil {
		p.log.WithError(err).WithField("rate", rate).Warn("host rejected playback rate")
	}
	return rate, err
}

// SetVolume clamps v into [0, 1], glides the output gain there and returns it.
func (p *Player) SetVolume(v float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ctrl.SetVolume(v)
}

// SetLoopStart clamps the loop start into [0, end] and returns it.
func (p *Player) SetLoopStart(seconds float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transport.SetLoopStart(seconds)
}

// SetLoopEnd clamps the loop end into [start, duration] and returns it.
func (p *Player) SetLoopEnd(seconds float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transport.SetLoopEnd(seconds)
}

// SetLoopActive turns looping on or off. Looping needs both bounds with
// start before end; the resulting flag is returned.
func (p *Player) SetLoopActive(on bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transport.SetLoopActive(on)
}

// ToggleLoopActive flips looping, subject to SetLoopActive's rule.
func (p *Player) ToggleLoopActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transport.ToggleLoopActive()
}

// ClearLoop removes the loop region.
func (p *Player) ClearLoop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transport.ClearLoop()
}

// MarkLoopStart sets the loop start at the play head.
func (p *Player) MarkLoopStart() LoopRegion {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.syncPositionLocked()
	return p.transport.MarkLoopStart()
}

// MarkLoopEnd sets the loop end at the play head.
func (p *Player) MarkLoopEnd() LoopRegion {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.syncPositionLocked()
	return p.transport.MarkLoopEnd()
}

// NudgeLoopStart moves the loop start by delta seconds and returns it.
func (p *Player) NudgeLoopStart(delta float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transport.NudgeLoopStart(delta)
}

// NudgeLoopEnd moves the loop end by delta seconds and returns it.
func (p *Player) NudgeLoopEnd(delta float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transport.NudgeLoopEnd(delta)
}

func (p *Player) syncPositionLocked() {
	if p.source != nil {
		p.transport.Seek(p.source.Position())
	}
}

// Poll reads the play head from the host, wraps the loop and detects the
// end of the track. It is one timeupdate step; Run calls it periodically.
func (p *Player) Poll() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil || p.closed {
		return p.stateLocked()
	}

	p.transport.SetDuration(p.source.Duration())
	act := p.transport.Tick(p.source.Position(), p.source.Ended())
	switch {
	case act.Seek:
		p.source.Seek(act.To)
		// A loop ending exactly at the end of the track lets the host stop.
		if p.transport.Playing() && !p.source.Playing() {
			if err := p.source.Play(); err != nil {
				p.transport.Pause()
				p.lastErr = fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
			}
		}
	case act.Stop:
		p.source.Pause()
		p.log.Debug("track ended")
	}

	return p.stateLocked()
}

// Run polls until ctx is done or the player is closed.
func (p *Player) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Poll()
			if p.isClosed() {
				return nil
			}
		}
	}
}

func (p *Player) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// State returns a snapshot of the playback state.
func (p *Player) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stateLocked()
}

func (p *Player) stateLocked() PlaybackState {
	return PlaybackState{
		State:          p.transport.State(),
		Position:       p.transport.Position(),
		Duration:       p.transport.Duration(),
		Playing:        p.transport.Playing(),
		PlaybackRate:   p.ctrl.PlaybackRate(),
		PitchSemitones: p.ctrl.PitchSemitones(),
		PitchFactor:    p.ctrl.PitchFactor(),
		Volume:         p.ctrl.Volume(),
		PreservesPitch: p.source == nil || p.source.PreservesPitch(),
	}
}

// Loop returns the loop region.
func (p *Player) Loop() LoopRegion {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transport.Region()
}

// Metadata returns the metadata of the loaded track.
func (p *Player) Metadata() Metadata {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.meta
}

// Analyser returns the spectrum view of the output.
func (p *Player) Analyser() Analyser {
	return p.analyser
}

// Err returns the last error meant for the user, or nil. A successful Play
// or Load clears it.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastErr
}

// PitchAvailable reports whether pitch control works. It is false only
// after the graph failed to start.
func (p *Player) PitchAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.unavailable
}

// Latency returns the delay added by the pitch shifter.
func (p *Player) Latency() time.Duration {
	frames := p.shifter.Latency()
	return time.Duration(frames) * time.Second / time.Duration(p.cfg.SampleRate)
}

// Close stops the device, then releases the track. The player cannot be
// used afterwards.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	errs := []error{p.graph.Close()}
	if p.source != nil {
		p.source.Pause()
		errs = append(errs, p.source.Close())
		p.source = nil
	}
	p.transport.Pause()

	p.log.Info("player closed")
	return errors.Join(errs...)
}

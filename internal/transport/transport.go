// Package transport tracks play state, position and the A/B loop region of
// a loaded track, and decides when the host has to seek.
//
// The Machine only decides; it never touches audio. Hosts feed it the
// current position through Tick and act on the returned Action.
package transport

import (
	"io"
	"math"

	"github.com/sirupsen/logrus"
)

// State is the transport state.
type State int

const (
	// Stopped means nothing is playing. The position is kept.
	Stopped State = iota

	// Playing means the track plays through without a loop.
	Playing

	// Looping means the track plays and an active region wraps it.
	Looping
)

// String returns a human readable state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Looping:
		return "looping"
	default:
		return "unknown"
	}
}

// Region is an A/B loop region in seconds.
// Whenever both bounds are set, 0 <= Start <= End <= duration holds.
type Region struct {
	Start    float64
	End      float64
	HasStart bool
	HasEnd   bool
	Active   bool
}

// Complete reports whether both bounds are set and enclose a non-empty span.
func (r Region) Complete() bool {
	return r.HasStart && r.HasEnd && r.Start < r.End
}

// Action tells the host what to do after a Tick.
type Action struct {
	// Seek requests a jump to To seconds.
	Seek bool
	To   float64

	// Stop reports that playback ended and the transport stopped.
	Stop bool
}

// Machine is the transport/loop state machine. It is not safe for
// concurrent use.
type Machine struct {
	playing  bool
	position float64
	duration float64
	region   Region

	log *logrus.Entry
}

// New returns a stopped machine with nothing loaded.
func New(logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Machine{log: logger.WithField("component", "transport")}
}

// Load resets the machine for a new track of the given duration.
func (m *Machine) Load(duration float64) {
	m.playing = false
	m.position = 0
	m.duration = sanitize(duration)
	m.region = Region{}
	m.log.WithField("duration", m.duration).Debug("track loaded")
}

// SetDuration records the track duration once metadata is known.
// Bounds beyond the new duration are pulled back inside it.
func (m *Machine) SetDuration(d float64) {
	m.duration = sanitize(d)
	if m.region.HasEnd {
		m.region.End = math.Min(m.region.End, m.duration)
	}
	if m.region.HasStart {
		m.region.Start = math.Min(m.region.Start, m.duration)
	}
	if !m.region.Complete() {
		m.region.Active = false
	}
}

// State returns the current transport state.
func (m *Machine) State() State {
	switch {
	case !m.playing:
		return Stopped
	case m.region.Active:
		return Looping
	default:
		return Playing
	}
}

// Play marks the transport as playing.
func (m *Machine) Play() {
	m.playing = true
}

// Pause stops playback and keeps the position.
func (m *Machine) Pause() {
	m.playing = false
}

// Playing reports whether the transport is in Playing or Looping.
func (m *Machine) Playing() bool { return m.playing }

// Position returns the last known position in seconds.
func (m *Machine) Position() float64 { return m.position }

// Duration returns the track duration in seconds.
func (m *Machine) Duration() float64 { return m.duration }

// Region returns a copy of the loop region.
func (m *Machine) Region() Region { return m.region }

// Seek clamps s into [0, duration], records it and returns it.
func (m *Machine) Seek(s float64) float64 {
	if math.IsNaN(s) {
		return m.position
	}
	m.position = math.Max(0, math.Min(s, m.duration))
	return m.position
}

// Reset seeks back to the start of the track.
func (m *Machine) Reset() float64 {
	return m.Seek(0)
}

// SetLoopStart clamps v into [0, end] (or [0, duration] without an end),
// stores it as the loop start and returns it. The active flag is unchanged
// unless the region becomes empty.
func (m *Machine) SetLoopStart(v float64) float64 {
	if math.IsNaN(v) {
		return m.region.Start
	}
	hi := m.duration
	if m.region.HasEnd {
		hi = m.region.End
	}
	m.region.Start = math.Max(0, math.Min(v, hi))
	m.region.HasStart = true
	m.keepValid()

	m.log.WithField("start", m.region.Start).Debug("loop start set")
	return m.region.Start
}

// SetLoopEnd clamps v into [start, duration] (or [0, duration] without a
// start), stores it as the loop end and returns it.
func (m *Machine) SetLoopEnd(v float64) float64 {
	if math.IsNaN(v) {
		return m.region.End
	}
	lo := 0.0
	if m.region.HasStart {
		lo = m.region.Start
	}
	m.region.End = math.Max(lo, math.Min(v, m.duration))
	m.region.HasEnd = true
	m.keepValid()

	m.log.WithField("end", m.region.End).Debug("loop end set")
	return m.region.End
}

// SetLoopActive turns looping on or off. Turning it on only succeeds when
// both bounds are set and start < end. It returns the resulting flag.
func (m *Machine) SetLoopActive(on bool) bool {
	m.region.Active = on && m.region.Complete()
	return m.region.Active
}

// ToggleLoopActive flips the active flag, subject to SetLoopActive's rule.
func (m *Machine) ToggleLoopActive() bool {
	return m.SetLoopActive(!m.region.Active)
}

// ClearLoop removes both bounds and deactivates looping.
func (m *Machine) ClearLoop() {
	m.region = Region{}
}

// MarkLoopStart sets the loop start at the current position. Looping is
// switched on when an end is set after it, and off otherwise.
func (m *Machine) MarkLoopStart() Region {
	m.SetLoopStart(m.position)
	m.region.Active = m.region.Complete()
	return m.region
}

// MarkLoopEnd sets the loop end at the current position. Looping is
// switched on when a start is set before it, and off otherwise.
func (m *Machine) MarkLoopEnd() Region {
	m.SetLoopEnd(m.position)
	m.region.Active = m.region.Complete()
	return m.region
}

// NudgeLoopStart moves the loop start by delta seconds. An unset start is
// nudged from 0.
func (m *Machine) NudgeLoopStart(delta float64) float64 {
	base := 0.0
	if m.region.HasStart {
		base = m.region.Start
	}
	return m.SetLoopStart(base + delta)
}

// NudgeLoopEnd moves the loop end by delta seconds. An unset end is nudged
// from the track duration.
func (m *Machine) NudgeLoopEnd(delta float64) float64 {
	base := m.duration
	if m.region.HasEnd {
		base = m.region.End
	}
	return m.SetLoopEnd(base + delta)
}

// Tick records a position report from the host and returns what it has to do.
// ended reports that the host reached the end of the track.
func (m *Machine) Tick(position float64, ended bool) Action {
	if !math.IsNaN(position) {
		m.position = math.Max(0, position)
	}

	r := m.region
	if r.Active && r.Complete() && (m.position >= r.End || m.position < r.Start) {
		m.log.WithFields(logrus.Fields{
			"position": m.position,
			"start":    r.Start,
			"end":      r.End,
		}).Debug("loop wrap")
		m.position = r.Start
		return Action{Seek: true, To: r.Start}
	}

	if ended && !r.Active && m.playing {
		m.playing = false
		m.log.Debug("playback ended")
		return Action{Stop: true}
	}

	return Action{}
}

// keepValid switches looping off when an edit leaves the region empty.
func (m *Machine) keepValid() {
	if m.region.Active && !m.region.Complete() {
		m.region.Active = false
	}
}

func sanitize(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

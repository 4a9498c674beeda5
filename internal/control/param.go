// Package control carries parameter changes from the control thread to the
// audio thread without locks, smoothing each change with a linear ramp.
package control

import "sync/atomic"

// target is an immutable ramp request published by the control thread.
type target struct {
	value   float64
	samples int
}

// Param is a single-writer, single-reader ramped parameter.
//
// The control thread calls RampTo, Set and Target. The audio thread calls
// Begin once per block and Next once per frame. The two sides share only an
// atomic pointer to an immutable target, so neither ever waits on the other.
type Param struct {
	pending atomic.Pointer[target]

	// audio-thread state
	seen      *target
	current   float64
	goal      float64
	step      float64
	remaining int
}

// NewParam creates a parameter that starts settled at initial.
func NewParam(initial float64) *Param {
	t := &target{value: initial}
	p := &Param{
		seen:    t,
		current: initial,
		goal:    initial,
	}
	p.pending.Store(t)
	return p
}

// RampTo publishes a new target reached linearly over samples frames.
// A non-positive sample count jumps straight to the value.
func (p *Param) RampTo(value float64, samples int) {
	p.pending.Store(&target{value: value, samples: samples})
}

// Set publishes a new value without a ramp.
func (p *Param) Set(value float64) {
	p.RampTo(value, 0)
}

// Target returns the most recently published value.
func (p *Param) Target() float64 {
	return p.pending.Load().value
}

// Begin picks up the newest published target. Audio thread only.
// A target published mid-ramp starts a new ramp from the current value.
func (p *Param) Begin() {
	t := p.pending.Load()
	if t == p.seen {
		return
	}
	p.seen = t
	p.goal = t.value

	if t.samples <= 0 || t.value == p.current {
		p.current = t.value
		p.remaining = 0
		p.step = 0
		return
	}

	p.remaining = t.samples
	p.step = (t.value - p.current) / float64(t.samples)
}

// Next advances the ramp by one frame and returns the value for it. Audio thread only.
func (p *Param) Next() float64 {
	if p.remaining > 0 {
		p.remaining--
		if p.remaining == 0 {
			p.current = p.goal
		} else {
			p.current += p.step
		}
	}
	return p.current
}

// Value returns the value of the most recent frame. Audio thread only.
func (p *Param) Value() float64 {
	return p.current
}

// Settled reports whether no ramp is in progress. Audio thread only.
func (p *Param) Settled() bool {
	return p.remaining == 0
}

// Package engine implements the real-time pitch-shifting DSP core.
package engine

import (
	"fmt"
	"math"

	"github.com/tphakala/tempoloop/internal/simdops"
)

// Line is a fixed-capacity circular delay buffer for one channel.
//
// The write cursor always points at the next slot to be overwritten.
// Reads are measured backward from the most recently written sample,
// so Read(0) returns the value passed to the last Write.
type Line[F simdops.Float] struct {
	data     []F
	capacity int
	cursor   int
}

// NewLine creates a delay line holding the last capacity samples.
func NewLine[F simdops.Float](capacity int) (*Line[F], error) {
	if capacity < minLineCapacity {
		return nil, fmt.Errorf("delay line capacity must be at least %d: %d", minLineCapacity, capacity)
	}

	return &Line[F]{
		data:     make([]F, capacity),
		capacity: capacity,
	}, nil
}

// Write stores one sample at the cursor and advances it, wrapping at capacity.
func (l *Line[F]) Write(sample F) {
	l.data[l.cursor] = sample
	l.cursor++
	if l.cursor >= l.capacity {
		l.cursor = 0
	}
}

// Read returns the sample delay samples before the newest one, linearly
// interpolating between the two nearest slots. delay must lie in [0, capacity).
func (l *Line[F]) Read(delay float64) F {
	pos := float64(l.cursor-1) - delay
	for pos < 0 {
		pos += float64(l.capacity)
	}

	base := math.Floor(pos)
	frac := pos - base
	i0 := int(base)
	if i0 >= l.capacity {
		i0 -= l.capacity
	}

	if frac == 0 {
		return l.data[i0]
	}

	i1 := i0 + 1
	if i1 >= l.capacity {
		i1 = 0
	}

	return F(float64(l.data[i0])*(1-frac) + float64(l.data[i1])*frac)
}

// Capacity returns the number of samples the line holds.
func (l *Line[F]) Capacity() int {
	return l.capacity
}

// Cursor returns the index of the next slot to be written.
func (l *Line[F]) Cursor() int {
	return l.cursor
}

// Reset clears the stored samples and rewinds the cursor.
func (l *Line[F]) Reset() {
	clear(l.data)
	l.cursor = 0
}

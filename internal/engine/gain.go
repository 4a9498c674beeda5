package engine

import "github.com/tphakala/tempoloop/internal/simdops"

// settler is implemented by modulators that can report a constant value.
type settler interface {
	Settled() bool
	Value() float64
}

// Gain scales a planar block by a per-sample level.
type Gain struct {
	level Modulator
	ops   *simdops.Ops[float64]
}

// NewGain creates a gain stage driven by level. Nil means unity gain.
func NewGain(level Modulator) *Gain {
	if level == nil {
		level = &Fixed{Value: unityGain}
	}
	return &Gain{level: level, ops: simdops.Float64Ops()}
}

// ProcessBlock applies the gain in place.
func (g *Gain) ProcessBlock(block [][]float64) {
	g.level.Begin()

	if s, ok := g.level.(settler); ok && s.Settled() {
		v := s.Value()
		if v == unityGain {
			return
		}
		for _, ch := range block {
			g.ops.Scale(ch, ch, v)
		}
		return
	}

	frames := 0
	if len(block) > 0 {
		frames = len(block[0])
	}
	for i := range frames {
		v := g.level.Next()
		for _, ch := range block {
			if i < len(ch) {
				ch[i] *= v
			}
		}
	}
}

// Reset implements the pipeline stage interface. Gain keeps no history.
func (g *Gain) Reset() {}

// Package simdops dispatches the few vector kernels the audio path needs to
// github.com/tphakala/simd, for either float width.
package simdops

import (
	"math"

	"github.com/tphakala/simd/cpu"
	"github.com/tphakala/simd/f32"
	"github.com/tphakala/simd/f64"
)

// Float is the sample type of generic DSP code.
type Float interface {
	float32 | float64
}

// Ops is a table of kernels for one sample type.
type Ops[F Float] struct {
	// DotProductUnsafe returns sum(a[i]*b[i]). len(a) must equal len(b).
	DotProductUnsafe func(a, b []F) F

	// Interleave2 writes a[0], b[0], a[1], b[1], ... into dst.
	Interleave2 func(dst, a, b []F)

	// Scale sets dst[i] = a[i] * s. dst and a may be the same slice.
	Scale func(dst, a []F, s F)
}

var (
	single = Ops[float32]{
		DotProductUnsafe: f32.DotProductUnsafe,
		Interleave2:      f32.Interleave2,
		Scale:            f32.Scale,
	}
	double = Ops[float64]{
		DotProductUnsafe: f64.DotProductUnsafe,
		Interleave2:      f64.Interleave2,
		Scale:            f64.Scale,
	}
)

// For returns the kernel table for F. Resolve it once, outside the
// per-sample loop.
func For[F Float]() *Ops[F] {
	var table any
	var zero F
	switch any(zero).(type) {
	case float32:
		table = &single
	default:
		table = &double
	}
	ops, ok := table.(*Ops[F])
	if !ok {
		panic("simdops: no kernels for sample type")
	}
	return ops
}

// Float64Ops returns the float64 table.
func Float64Ops() *Ops[float64] {
	return &double
}

// RMS returns the root-mean-square level of a.
func RMS[F Float](a []F) F {
	if len(a) == 0 {
		return 0
	}
	energy := For[F]().DotProductUnsafe(a, a)
	return F(math.Sqrt(float64(energy) / float64(len(a))))
}

// Info describes the instruction set picked by the simd package.
func Info() string {
	return cpu.Info()
}

// Package window maps window names onto gonum's dsp/window functions and
// builds the periodic (DFT-even) weights a frame-based FFT analyser expects.
package window

import (
	"fmt"
	"strings"

	gw "gonum.org/v1/gonum/dsp/window"
)

// Type selects a window shape.
type Type int

const (
	// Blackman is the classic α = 0.16 Blackman window.
	Blackman Type = iota

	// Hann is the raised cosine window.
	Hann

	// Hamming is the raised cosine window on a 0.08 pedestal.
	Hamming

	// BlackmanHarris is the four-term Blackman-Harris window.
	BlackmanHarris

	// FlatTop trades resolution for amplitude accuracy.
	FlatTop

	// Rectangular applies no weighting.
	Rectangular
)

var names = map[Type]string{
	Blackman:       "blackman",
	Hann:           "hann",
	Hamming:        "hamming",
	BlackmanHarris: "blackman-harris",
	FlatTop:        "flattop",
	Rectangular:    "rectangular",
}

var funcs = map[Type]func([]float64) []float64{
	Blackman:       gw.Blackman,
	Hann:           gw.Hann,
	Hamming:        gw.Hamming,
	BlackmanHarris: gw.BlackmanHarris,
	FlatTop:        gw.FlatTop,
	Rectangular:    gw.Rectangular,
}

// String returns the lowercase window name.
func (t Type) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("window(%d)", int(t))
}

// Parse maps a window name to its Type. Matching ignores case; the empty
// string selects Blackman.
func Parse(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "blackman":
		return Blackman, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman-harris", "blackmanharris":
		return BlackmanHarris, nil
	case "flattop", "flat-top":
		return FlatTop, nil
	case "rectangular", "rect", "none":
		return Rectangular, nil
	default:
		return Blackman, fmt.Errorf("unknown window %q", name)
	}
}

// New returns the periodic length-n weights of type t. Unknown types fall
// back to Blackman.
//
// gonum generates symmetric windows, so the weights are taken from a
// length n+1 window with its last point dropped.
func New(t Type, n int) gw.Values {
	if n < 1 {
		return gw.Values{}
	}
	fn, ok := funcs[t]
	if !ok {
		fn = gw.Blackman
	}
	return gw.NewValues(fn, n+1)[:n]
}

// Symmetric returns the symmetric length-n weights of type t, with both
// end points on the window edge, for FIR prototype design.
func Symmetric(t Type, n int) gw.Values {
	if n < 1 {
		return gw.Values{}
	}
	if n == 1 {
		return gw.Values{1}
	}
	fn, ok := funcs[t]
	if !ok {
		fn = gw.Blackman
	}
	return gw.NewValues(fn, n)
}

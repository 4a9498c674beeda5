// Package testutil holds signal generators and assertions shared by the
// engine, analysis and host tests.
package testutil

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/dsp/fourier"
)

// WindowTolerance is the accepted error of generated window coefficients.
const WindowTolerance = 1e-10

// Sine returns n samples of a unit-amplitude sine at freq Hz.
func Sine(freq, sampleRate float64, n int) []float64 {
	return SineAmp(freq, sampleRate, 1, n)
}

// SineAmp returns n samples of a sine at freq Hz with the given amplitude.
func SineAmp(freq, sampleRate, amp float64, n int) []float64 {
	out := make([]float64, n)
	w := 2 * math.Pi * freq / sampleRate
	for i := range out {
		out[i] = amp * math.Sin(w*float64(i))
	}
	return out
}

// Ramp returns 1, 2, ..., n. Every value is distinct, which makes delays
// easy to read off.
func Ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

// Copy returns a planar deep copy of channels.
func Copy(channels [][]float64) [][]float64 {
	out := make([][]float64, len(channels))
	for ch, c := range channels {
		out[ch] = append([]float64(nil), c...)
	}
	return out
}

// DominantFrequency returns the frequency of the strongest non-DC bin of a
// Hann-windowed FFT, refined by parabolic interpolation.
func DominantFrequency(samples []float64, sampleRate float64) float64 {
	n := len(samples)
	if n < 4 {
		return 0
	}

	windowed := make([]float64, n)
	for i, v := range samples {
		windowed[i] = v * (0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	coeffs := fourier.NewFFT(n).Coefficients(nil, windowed)

	mags := make([]float64, len(coeffs))
	peak := 1
	for k, c := range coeffs {
		mags[k] = math.Hypot(real(c), imag(c))
		if k > 0 && mags[k] > mags[peak] {
			peak = k
		}
	}

	bin := float64(peak)
	if peak < len(mags)-1 {
		a, b, c := mags[peak-1], mags[peak], mags[peak+1]
		if d := a - 2*b + c; d != 0 {
			bin += 0.5 * (a - c) / d
		}
	}
	return bin * sampleRate / float64(n)
}

// RMS returns the root-mean-square level of s.
func RMS(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	var energy float64
	for _, v := range s {
		energy += v * v
	}
	return math.Sqrt(energy / float64(len(s)))
}

// message prefixes an optional caller message to detail.
func message(detail string, msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return detail
	}
	format, ok := msgAndArgs[0].(string)
	if !ok {
		return detail
	}
	return fmt.Sprintf(format, msgAndArgs[1:]...) + ": " + detail
}

// AssertSymmetric checks s[i] == s[n-1-i] within tolerance.
func AssertSymmetric(t *testing.T, s []float64, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		if math.Abs(s[i]-s[j]) > tolerance {
			return assert.Fail(t, "not symmetric",
				message(fmt.Sprintf("s[%d]=%g, s[%d]=%g", i, s[i], j, s[j]), msgAndArgs))
		}
	}
	return true
}

// AssertNoNaNOrInf checks that every sample is finite.
func AssertNoNaNOrInf(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return assert.Fail(t, "non-finite sample", message(fmt.Sprintf("s[%d]=%g", i, v), msgAndArgs))
		}
	}
	return true
}

// AssertAllInRange checks that every sample lies in [minVal, maxVal].
func AssertAllInRange(t *testing.T, s []float64, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if v < minVal || v > maxVal {
			return assert.Fail(t, "sample out of range",
				message(fmt.Sprintf("s[%d]=%g outside [%g, %g]", i, v, minVal, maxVal), msgAndArgs))
		}
	}
	return true
}

// AssertAllZero checks for exact silence.
func AssertAllZero(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if v != 0 {
			return assert.Fail(t, "not silent", message(fmt.Sprintf("s[%d]=%g", i, v), msgAndArgs))
		}
	}
	return true
}

// AssertCenterIsMax checks that no sample exceeds the middle one.
func AssertCenterIsMax(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	if len(s) == 0 {
		return assert.Fail(t, "empty slice", msgAndArgs...)
	}
	c := len(s) / 2
	for i, v := range s {
		if v > s[c] {
			return assert.Fail(t, "center is not the maximum",
				message(fmt.Sprintf("s[%d]=%g > s[%d]=%g", i, v, c, s[c]), msgAndArgs))
		}
	}
	return true
}

// AssertRelativeError checks |actual-expected|/|expected| <= tolerance.
// A zero expectation falls back to an absolute comparison.
func AssertRelativeError(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if expected == 0 {
		return assert.InDelta(t, expected, actual, tolerance, msgAndArgs...)
	}
	rel := math.Abs(actual-expected) / math.Abs(expected)
	if rel > tolerance {
		return assert.Fail(t, "relative error too large",
			message(fmt.Sprintf("expected %g, got %g (error %.3e > %.3e)", expected, actual, rel, tolerance), msgAndArgs))
	}
	return true
}

// AssertInRange checks minVal <= value <= maxVal.
func AssertInRange(t *testing.T, value, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	if value < minVal || value > maxVal {
		return assert.Fail(t, "value out of range",
			message(fmt.Sprintf("%g outside [%g, %g]", value, minVal, maxVal), msgAndArgs))
	}
	return true
}

package tempoloop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/tempoloop/internal/testutil"
)

const testSampleRate = 48000.0

func TestPitchFactor(t *testing.T) {
	tests := []struct {
		semitones float64
		want      float64
	}{
		{12, 2.0},
		{-12, 0.5},
		{0, 1.0},
		{7, 1.4983070768766815},
		{-1, 0.9438743126816935},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, PitchFactor(tt.semitones), 1e-15, "semitones %v", tt.semitones)
	}
}

func TestShiftMono_UnityIsIdentity(t *testing.T) {
	input := testutil.Sine(440, testSampleRate, 10000)
	output, err := ShiftMono(input, 0)
	require.NoError(t, err)

	require.Len(t, output, len(input))
	for i := range input {
		require.InDelta(t, input[i], output[i], 1e-12, "sample %d", i)
	}
}

func TestShiftMono_Octaves(t *testing.T) {
	const (
		inputFreq = 440.0
		frames    = 48000
		analyze   = 32768
	)

	tests := []struct {
		name      string
		semitones float64
		want      float64
	}{
		{"octave up", 12, 880},
		{"octave down", -12, 220},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testutil.Sine(inputFreq, testSampleRate, frames)
			output, err := ShiftMono(input, tt.semitones)
			require.NoError(t, err)
			require.Len(t, output, frames)
			testutil.AssertNoNaNOrInf(t, output)

			got := testutil.DominantFrequency(output[frames-analyze:], testSampleRate)
			factor := PitchFactor(tt.semitones)
			spacing := 2 * math.Abs(1-factor) * testSampleRate / (DefaultBufferCapacity / 2)
			assert.InDelta(t, tt.want, got, spacing+2)
		})
	}
}

func TestShiftStereo_KeepsImage(t *testing.T) {
	sig := testutil.Sine(300, testSampleRate, 8000)
	left, right, err := ShiftStereo(sig, sig, 5)
	require.NoError(t, err)
	assert.Equal(t, left, right, "identical inputs stay identical")
}

func TestShiftChannels_Empty(t *testing.T) {
	out, err := ShiftChannels(nil, 3)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestShiftChannels_UnequalLengths(t *testing.T) {
	out, err := ShiftChannels([][]float64{make([]float64, 100), make([]float64, 40)}, 2)
	require.NoError(t, err)
	assert.Len(t, out[0], 100)
	assert.Len(t, out[1], 40)
}

func TestNewShifter(t *testing.T) {
	s, err := NewShifter(2, 30)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, s.Semitones(), 0, "clamped")
	assert.Equal(t, 2, s.Channels())
	assert.Equal(t, DefaultBufferCapacity/4, s.Latency())

	s.SetSemitones(math.NaN())
	assert.InDelta(t, 12.0, s.Semitones(), 0, "NaN ignored")
	s.SetSemitones(-40)
	assert.InDelta(t, -12.0, s.Semitones(), 0)

	_, err = NewShifter(0, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewShifter(1000, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestShifter_ChunkedMatchesOneShot(t *testing.T) {
	input := testutil.Sine(523.25, testSampleRate, 6000)

	whole, err := NewShifter(1, -5)
	require.NoError(t, err)
	want := make([]float64, len(input))
	whole.Process([][]float64{want}, [][]float64{input})

	chunked, err := NewShifter(1, -5)
	require.NoError(t, err)
	got := make([]float64, len(input))
	for start := 0; start < len(input); start += 333 {
		end := min(start+333, len(input))
		chunked.Process([][]float64{got[start:end]}, [][]float64{input[start:end]})
	}

	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-12, "sample %d", i)
	}

	// Reset starts a new stream.
	chunked.Reset()
	again := make([]float64, len(input))
	chunked.Process([][]float64{again}, [][]float64{input})
	assert.Equal(t, want, again)
}

func TestShifterFloat32(t *testing.T) {
	const frames = 48000
	s, err := NewShifterFloat32(1, 12)
	require.NoError(t, err)

	sig := testutil.Sine(440, testSampleRate, frames)
	in := make([]float32, frames)
	for i, v := range sig {
		in[i] = float32(v)
	}
	out := make([]float32, frames)
	s.Process([][]float32{out}, [][]float32{in})

	back := make([]float64, frames)
	for i, v := range out {
		back[i] = float64(v)
	}
	got := testutil.DominantFrequency(back[frames-32768:], testSampleRate)
	assert.InDelta(t, 880, got, 2*testSampleRate/2048+2)
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in      float64
		plain   string
		precise string
	}{
		{0, "0:00", "0:00.00"},
		{0.29, "0:00", "0:00.29"},
		{65.43, "1:05", "1:05.43"},
		{599.999, "9:59", "9:59.99"},
		{3600, "60:00", "60:00.00"},
		{-3, "0:00", "0:00.00"},
		{math.NaN(), "0:00", "0:00.00"},
		{math.Inf(1), "0:00", "0:00.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.plain, FormatTime(tt.in), "FormatTime(%v)", tt.in)
		assert.Equal(t, tt.precise, FormatTimePrecise(tt.in), "FormatTimePrecise(%v)", tt.in)
	}
}

func TestResampleMono(t *testing.T) {
	tests := []struct {
		name    string
		in, out float64
		quality Quality
	}{
		{"cd to session", 44100, 48000, QualityHigh},
		{"session to cd", 48000, 44100, QualityHigh},
		{"upsample quick", 22050, 48000, QualityQuick},
		{"very high", 44100, 96000, QualityVeryHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testutil.Sine(1000, tt.in, int(tt.in))
			output, err := ResampleMono(input, tt.in, tt.out, tt.quality)
			require.NoError(t, err)
			require.Len(t, output, int(tt.out))
			assert.InDelta(t, 1000.0, testutil.DominantFrequency(output, tt.out), 1)
			assert.InDelta(t, 1/math.Sqrt2, testutil.RMS(output[1000:len(output)-1000]), 0.03)
		})
	}
}

func TestResampleChannels_Errors(t *testing.T) {
	_, err := ResampleMono([]float64{1, 2}, 0, 48000, QualityHigh)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ResampleChannels([][]float64{{1}}, 44100, 48000, Quality(42))
	require.ErrorIs(t, err, ErrInvalidConfig)

	out, err := ResampleChannels(nil, 44100, 48000, QualityHigh)
	require.NoError(t, err)
	assert.Empty(t, out)
}

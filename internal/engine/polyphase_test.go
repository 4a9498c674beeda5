package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/tempoloop/internal/testutil"
)

func resampleAll(t *testing.T, r *Resampler[float64], input []float64) []float64 {
	t.Helper()
	body, err := r.Process(input)
	require.NoError(t, err)
	tail, err := r.Flush()
	require.NoError(t, err)
	return append(body, tail...)
}

// =============================================================================
// Construction
// =============================================================================

func TestNewResampler_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		in, out float64
		quality Quality
	}{
		{"zero input rate", 0, 48000, QualityHigh},
		{"negative output rate", 44100, -1, QualityHigh},
		{"NaN rate", math.NaN(), 48000, QualityHigh},
		{"infinite rate", math.Inf(1), 48000, QualityHigh},
		{"unknown quality", 44100, 48000, Quality(99)},
		{"negative quality", 44100, 48000, Quality(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResampler[float64](tt.in, tt.out, tt.quality)
			assert.ErrorIs(t, err, ErrInvalidResampler)
		})
	}
}

func TestNewResampler_DownsamplingLengthensFilter(t *testing.T) {
	up, err := NewResampler[float64](44100, 48000, QualityHigh)
	require.NoError(t, err)
	assert.Equal(t, 64, up.TapsPerPhase())
	assert.InDelta(t, 48000.0/44100.0, up.Ratio(), 1e-15)

	down, err := NewResampler[float64](48000, 8000, QualityHigh)
	require.NoError(t, err)
	assert.Equal(t, 384, down.TapsPerPhase())

	extreme, err := NewResampler[float64](192000, 1000, QualityVeryHigh)
	require.NoError(t, err)
	assert.Equal(t, maxTapsPerPhase, extreme.TapsPerPhase())
}

func TestQuality_String(t *testing.T) {
	assert.Equal(t, "quick", QualityQuick.String())
	assert.Equal(t, "high", QualityHigh.String())
	assert.Equal(t, "very-high", QualityVeryHigh.String())
	assert.Equal(t, "quality(7)", Quality(7).String())
}

// =============================================================================
// Signal behaviour
// =============================================================================

func TestResampler_OutputLength(t *testing.T) {
	tests := []struct {
		in, out float64
		frames  int
	}{
		{44100, 48000, 44100},
		{48000, 44100, 48000},
		{48000, 48000, 1000},
		{22050, 48000, 777},
		{96000, 44100, 12345},
		{44100, 48000, 1},
	}

	for _, tt := range tests {
		r, err := NewResampler[float64](tt.in, tt.out, QualityMedium)
		require.NoError(t, err)
		out := resampleAll(t, r, testutil.Sine(440, tt.in, tt.frames))

		want := int(math.Ceil(float64(tt.frames) * tt.out / tt.in))
		assert.Len(t, out, want, "%v -> %v", tt.in, tt.out)
		testutil.AssertNoNaNOrInf(t, out)
	}
}

func TestResampler_PreservesFrequencyAndTiming(t *testing.T) {
	const freq = 1000.0

	tests := []struct {
		name    string
		in, out float64
	}{
		{"cd to dat", 44100, 48000},
		{"dat to cd", 48000, 44100},
		{"double", 24000, 48000},
		{"unity", 48000, 48000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResampler[float64](tt.in, tt.out, QualityHigh)
			require.NoError(t, err)
			out := resampleAll(t, r, testutil.Sine(freq, tt.in, int(tt.in)))

			assert.InDelta(t, freq, testutil.DominantFrequency(out, tt.out), 1)

			// Output i is the input at time i/outRate: no delay, no gain change.
			edge := 2 * r.TapsPerPhase()
			for i := edge; i < len(out)-edge; i++ {
				want := math.Sin(2 * math.Pi * freq * float64(i) / tt.out)
				require.InDelta(t, want, out[i], 2e-3, "sample %d", i)
			}
		})
	}
}

func TestResampler_RejectsAliases(t *testing.T) {
	r, err := NewResampler[float64](48000, 8000, QualityHigh)
	require.NoError(t, err)

	// 10 kHz is above the 4 kHz Nyquist of the output.
	out := resampleAll(t, r, testutil.Sine(10000, 48000, 48000))
	mid := out[len(out)/4 : 3*len(out)/4]
	assert.Less(t, testutil.RMS(mid), 1e-3)
}

func TestResampler_ChunkingIndependent(t *testing.T) {
	input := testutil.Sine(440, 44100, 20000)

	whole, err := NewResampler[float64](44100, 48000, QualityMedium)
	require.NoError(t, err)
	want := resampleAll(t, whole, input)

	chunked, err := NewResampler[float64](44100, 48000, QualityMedium)
	require.NoError(t, err)
	var got []float64
	for _, size := range []int{1, 7, 100, 3000, 16892} {
		out, err := chunked.Process(input[:size])
		require.NoError(t, err)
		got = append(got, out...)
		input = input[size:]
	}
	require.Empty(t, input)
	tail, err := chunked.Flush()
	require.NoError(t, err)
	got = append(got, tail...)

	require.Len(t, got, len(want))
	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-12, "sample %d", i)
	}

	stats := chunked.Statistics()
	assert.Equal(t, int64(20000), stats["samplesIn"])
	assert.Equal(t, int64(len(want)), stats["samplesOut"])
}

func TestResampler_ResetMatchesFresh(t *testing.T) {
	input := testutil.Sine(1000, 44100, 4000)

	r, err := NewResampler[float64](44100, 48000, QualityHigh)
	require.NoError(t, err)
	_ = resampleAll(t, r, testutil.Sine(3000, 44100, 999))
	r.Reset()
	got := resampleAll(t, r, input)

	fresh, err := NewResampler[float64](44100, 48000, QualityHigh)
	require.NoError(t, err)
	want := resampleAll(t, fresh, input)

	assert.Equal(t, want, got)
}

func TestResampler_FlushEndsStream(t *testing.T) {
	r, err := NewResampler[float64](44100, 48000, QualityQuick)
	require.NoError(t, err)

	out, err := r.Process([]float64{})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = r.Flush()
	require.NoError(t, err)
	assert.Empty(t, out, "nothing in, nothing out")

	out, err = r.Flush()
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = r.Process([]float64{1})
	assert.ErrorIs(t, err, ErrInvalidResampler)
}

func TestResampler_Float32(t *testing.T) {
	r, err := NewResampler[float32](44100, 48000, QualityHigh)
	require.NoError(t, err)

	in64 := testutil.Sine(1000, 44100, 44100)
	in := make([]float32, len(in64))
	for i, v := range in64 {
		in[i] = float32(v)
	}
	body, err := r.Process(in)
	require.NoError(t, err)
	tail, err := r.Flush()
	require.NoError(t, err)

	out := make([]float64, 0, len(body)+len(tail))
	for _, v := range append(body, tail...) {
		out = append(out, float64(v))
	}
	require.Len(t, out, 48000)
	assert.InDelta(t, 1000.0, testutil.DominantFrequency(out, 48000), 1)
}

func TestResampleChannels(t *testing.T) {
	left := testutil.Sine(500, 44100, 4410)
	right := testutil.Sine(500, 44100, 4410)

	out, err := ResampleChannels([][]float64{left, right}, 44100, 48000, QualityMedium)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out[0], 4800)
	assert.Equal(t, out[0], out[1], "channels are converted identically")

	_, err = ResampleChannels([][]float64{left}, 44100, 0, QualityMedium)
	assert.ErrorIs(t, err, ErrInvalidResampler)
}

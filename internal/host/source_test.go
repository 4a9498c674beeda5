package host

import (
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/tempoloop/internal/testutil"
)

const (
	testRate  = 48000
	testBlock = 512
)

func sineTrack(freq float64, frames int) *Track {
	return &Track{
		Samples:    [][]float64{testutil.Sine(freq, testRate, frames)},
		SampleRate: testRate,
		BitDepth:   16,
	}
}

func newTestSource(t *testing.T, track *Track) *Source {
	t.Helper()
	s, err := NewSource(track, testRate, nil)
	require.NoError(t, err)
	return s
}

func stereoBlock(n int) [][]float64 {
	return [][]float64{make([]float64, n), make([]float64, n)}
}

func TestNewSource_Invalid(t *testing.T) {
	_, err := NewSource(nil, testRate, nil)
	require.ErrorIs(t, err, ErrInvalidWAV)

	_, err = NewSource(sineTrack(440, 10), 0, nil)
	require.Error(t, err)
}

func TestSource_PausedIsSilent(t *testing.T) {
	s := newTestSource(t, sineTrack(440, testRate))

	assert.False(t, s.Playing())
	assert.Zero(t, s.Read(stereoBlock(testBlock)))
	assert.Zero(t, s.Position())
	assert.True(t, s.PreservesPitch())

	sr, ch := s.Format()
	assert.Equal(t, testRate, sr)
	assert.Equal(t, 1, ch)
}

func TestSource_PlaysToEnd(t *testing.T) {
	const frames = testRate / 4
	s := newTestSource(t, sineTrack(440, frames))
	require.NoError(t, s.Play())

	block := stereoBlock(testBlock)
	require.Equal(t, testBlock, s.Read(block))
	assert.InDelta(t, float64(testBlock)/testRate, s.Position(), 64.0/testRate)

	for range 2 * frames / testBlock {
		if s.Read(block) < testBlock {
			break
		}
	}
	assert.True(t, s.Ended())
	assert.False(t, s.Playing())
	assert.InDelta(t, s.Duration(), s.Position(), 1e-12)
	assert.Zero(t, s.Read(block))

	// Playing again after the end starts over.
	require.NoError(t, s.Play())
	assert.False(t, s.Ended())
	assert.Zero(t, s.Position())
	assert.Equal(t, testBlock, s.Read(block))
}

func TestSource_Seek(t *testing.T) {
	s := newTestSource(t, sineTrack(440, 2*testRate))

	s.Seek(1.5)
	assert.InDelta(t, 1.5, s.Position(), 1e-12, "visible before the audio thread runs")

	s.Seek(10)
	assert.InDelta(t, 2.0, s.Position(), 1e-12)

	s.Seek(-1)
	assert.Zero(t, s.Position())

	s.Seek(math.NaN())
	assert.Zero(t, s.Position())

	s.Seek(1)
	require.NoError(t, s.Play())
	s.Read(stereoBlock(testBlock))
	assert.InDelta(t, 1+float64(testBlock)/testRate, s.Position(), 64.0/testRate)
}

func TestSource_RateConsumesFaster(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"half speed", 0.5},
		{"normal", 1.0},
		{"double speed", 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSource(t, sineTrack(440, 4*testRate))
			require.NoError(t, s.SetPlaybackRate(tt.rate))
			assert.InDelta(t, tt.rate, s.PlaybackRate(), 0)
			require.NoError(t, s.Play())

			block := stereoBlock(testBlock)
			const blocks = 40
			for range blocks {
				require.Equal(t, testBlock, s.Read(block))
			}

			want := tt.rate * blocks * testBlock / testRate
			assert.InDelta(t, want, s.Position(), 64.0/testRate)
		})
	}
}

func TestSource_PitchPreserved(t *testing.T) {
	const (
		inputFreq = 440.0
		outFrames = testRate
		analyze   = 32768
	)

	s := newTestSource(t, sineTrack(inputFreq, 2*testRate))
	require.NoError(t, s.SetPlaybackRate(0.5))
	require.NoError(t, s.Play())

	out := make([]float64, 0, outFrames)
	block := stereoBlock(testBlock)
	for len(out) < outFrames {
		n := s.Read(block)
		require.Equal(t, testBlock, n)
		out = append(out, block[0][:n]...)
	}

	got := testutil.DominantFrequency(out[len(out)-analyze:], testRate)
	// Half speed lowers the pitch an octave; the compensating shift raises
	// it again, with lines spaced 2*fs/W apart.
	spacing := 2 * testRate / 2048.0
	assert.InDelta(t, inputFreq, got, spacing+2)
	assert.Greater(t, math.Abs(got-inputFreq/2), 100.0, "the resampled pitch must be corrected")
}

func TestSource_ChannelMapping(t *testing.T) {
	track := &Track{
		Samples: [][]float64{
			testutil.Sine(440, testRate, testRate),
			make([]float64, testRate),
		},
		SampleRate: testRate,
	}

	t.Run("mono output", func(t *testing.T) {
		s := newTestSource(t, track)
		require.NoError(t, s.Play())
		block := [][]float64{make([]float64, 4096)}
		require.Equal(t, 4096, s.Read(block))
		testutil.AssertAllInRange(t, block[0], -0.51, 0.51, "left and right are averaged")
	})

	t.Run("extra output channels", func(t *testing.T) {
		s := newTestSource(t, track)
		require.NoError(t, s.Play())
		block := [][]float64{make([]float64, 4096), make([]float64, 4096), make([]float64, 4096)}
		block[2][0] = 9
		require.Equal(t, 4096, s.Read(block))
		testutil.AssertAllZero(t, block[1], "silent right channel")
		testutil.AssertAllZero(t, block[2], "third channel")
		assert.Greater(t, testutil.RMS(block[0][2048:]), 0.1)
	})
}

func TestSource_InvalidRate(t *testing.T) {
	s := newTestSource(t, sineTrack(440, 100))

	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, s.SetPlaybackRate(r), ErrInvalidRate)
	}
	assert.InDelta(t, 1.0, s.PlaybackRate(), 0)
}

func TestSource_Close(t *testing.T) {
	s := newTestSource(t, sineTrack(440, testRate))
	require.NoError(t, s.Play())
	require.NoError(t, s.Close())

	assert.False(t, s.Playing())
	assert.ErrorIs(t, s.Play(), ErrSourceClosed)
	assert.Zero(t, s.Read(stereoBlock(testBlock)))
}

func TestNewSource_ConvertsSampleRate(t *testing.T) {
	const (
		fileRate = 44100
		freq     = 1000.0
		analyze  = 32768
	)
	track := &Track{
		Samples:    [][]float64{testutil.Sine(freq, fileRate, fileRate), testutil.Sine(freq, fileRate, fileRate)},
		SampleRate: fileRate,
		BitDepth:   16,
	}
	s := newTestSource(t, track)

	sr, ch := s.Format()
	assert.Equal(t, fileRate, sr, "Format reports the file")
	assert.Equal(t, 2, ch)
	assert.InDelta(t, 1.0, s.Duration(), 1.0/testRate)

	require.NoError(t, s.Play())
	out := make([]float64, 0, testRate)
	block := stereoBlock(testBlock)
	for len(out) < 4096+analyze {
		n := s.Read(block)
		require.Equal(t, testBlock, n)
		out = append(out, block[0][:n]...)
	}

	// Played unconverted, the tone would come out at 1088 Hz.
	got := testutil.DominantFrequency(out[4096:4096+analyze], testRate)
	assert.InDelta(t, freq, got, 1)

	s.Seek(0.5)
	assert.InDelta(t, 0.5, s.Position(), 1e-12)
}

func TestSource_ReadDoesNotAllocate(t *testing.T) {
	s := newTestSource(t, sineTrack(440, 8*testRate))
	require.NoError(t, s.Play())
	block := stereoBlock(testBlock)
	require.Equal(t, testBlock, s.Read(block))

	allocs := testing.AllocsPerRun(50, func() {
		s.Read(block)
	})
	assert.Zero(t, allocs, "steady state")

	require.NoError(t, s.SetPlaybackRate(0.75))
	assert.Zero(t, mallocs(func() { s.Read(block) }), "rate change")

	// Each seek builds its cursor on the control side; the audio thread
	// only swaps it in, as on every loop wrap.
	var total uint64
	for i := range 20 {
		s.Seek(1 + float64(i)*0.25)
		total += mallocs(func() { s.Read(block) })
	}
	assert.Zero(t, total, "seek handover")
	assert.InDelta(t, 1+19*0.25+0.75*testBlock/testRate, s.Position(), 64.0/testRate)
}

// mallocs counts the heap allocations made by f.
func mallocs(f func()) uint64 {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	f()
	runtime.ReadMemStats(&after)
	return after.Mallocs - before.Mallocs
}

package host

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV encodes interleaved integer samples into a PCM WAV file.
func writeWAV(t *testing.T, path string, sampleRate, bitDepth, channels int, data []int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
}

func TestDecodeFile_Stereo16(t *testing.T) {
	const frames = 1000
	data := make([]int, frames*2)
	for i := range frames {
		data[i*2] = i * 30
		data[i*2+1] = -i * 30
	}
	path := filepath.Join(t.TempDir(), "take 1.wav")
	writeWAV(t, path, 44100, 16, 2, data)

	track, err := DecodeFile(path)
	require.NoError(t, err)

	assert.Equal(t, 44100, track.SampleRate)
	assert.Equal(t, 16, track.BitDepth)
	assert.Equal(t, 2, track.Channels())
	assert.Equal(t, frames, track.Frames())
	assert.InDelta(t, float64(frames)/44100, track.Duration(), 1e-12)

	assert.InDelta(t, 0.0, track.Samples[0][0], 0)
	assert.InDelta(t, 999*30/maxInt16, track.Samples[0][999], 1e-12)
	assert.InDelta(t, -999*30/maxInt16, track.Samples[1][999], 1e-12)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "take 1.wav", track.Meta.Name)
	assert.Equal(t, info.Size(), track.Meta.Size)
	assert.Equal(t, MIMETypeWAV, track.Meta.MIMEType)
}

func TestDecodeFile_Mono24(t *testing.T) {
	data := []int{0, 8388607, -8388607, 4194304}
	path := filepath.Join(t.TempDir(), "mono.wav")
	writeWAV(t, path, 48000, 24, 1, data)

	track, err := DecodeFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, track.Channels())
	assert.Equal(t, 24, track.BitDepth)

	want := []float64{0, 1, -1, 4194304 / maxInt24}
	for i, w := range want {
		assert.InDelta(t, w, track.Samples[0][i], 1e-9, "sample %d", i)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not a RIFF file")))
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestDecodeFile_Missing(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "nope.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSampleScale(t *testing.T) {
	tests := []struct {
		bitDepth int
		scale    float64
		offset   int
	}{
		{8, 1 / maxInt8, uint8Offset},
		{16, 1 / maxInt16, 0},
		{24, 1 / maxInt24, 0},
		{32, 1 / maxInt32, 0},
	}
	for _, tt := range tests {
		scale, offset, err := sampleScale(tt.bitDepth)
		require.NoError(t, err)
		assert.InDelta(t, tt.scale, scale, 0)
		assert.Equal(t, tt.offset, offset)
	}

	_, _, err := sampleScale(12)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDeinterleave(t *testing.T) {
	// The trailing partial frame is dropped and full scale negatives clamp.
	out := deinterleave([]int{-32768, 32767, 0, 16384, 5}, 2, 1/maxInt16, 0)

	require.Len(t, out, 2)
	assert.Equal(t, []float64{-1, 0}, out[0])
	assert.InDelta(t, 1.0, out[1][0], 0)
	assert.InDelta(t, 16384/maxInt16, out[1][1], 1e-12)

	// Unsigned 8-bit samples are centred on 128.
	mono := deinterleave([]int{128, 255, 1}, 1, 1/maxInt8, uint8Offset)
	assert.Equal(t, []float64{0, 1, -1}, mono[0])
}

func TestTrack_Empty(t *testing.T) {
	var tr Track
	assert.Zero(t, tr.Frames())
	assert.Zero(t, tr.Duration())
	assert.Zero(t, tr.Channels())
}

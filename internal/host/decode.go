// Package host is the reference host of the player: it decodes WAV files,
// plays them as a seekable source with native speed control and renders
// the graph to the system speaker.
package host

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"

	"github.com/tphakala/tempoloop"
)

// Decoding errors.
var (
	// ErrInvalidWAV is returned for input that is not a readable PCM WAV file.
	ErrInvalidWAV = errors.New("invalid WAV file")

	// ErrUnsupportedFormat is returned for WAV encodings the decoder cannot scale.
	ErrUnsupportedFormat = errors.New("unsupported WAV format")
)

// Track is a fully decoded file in planar float64 samples in [-1, 1].
type Track struct {
	Samples    [][]float64
	SampleRate int
	BitDepth   int
	Meta       tempoloop.Metadata
}

// Channels returns the channel count.
func (t *Track) Channels() int { return len(t.Samples) }

// Frames returns the length in frames.
func (t *Track) Frames() int {
	if len(t.Samples) == 0 {
		return 0
	}
	return len(t.Samples[0])
}

// Duration returns the length in seconds.
func (t *Track) Duration() float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return float64(t.Frames()) / float64(t.SampleRate)
}

// DecodeFile opens and decodes a WAV file. The metadata carries the file
// name, its size on disk and the WAV MIME type.
func DecodeFile(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat input file: %w", err)
	}

	track, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	track.Meta = tempoloop.Metadata{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: MIMETypeWAV,
	}
	return track, nil
}

// Decode reads a whole PCM WAV stream.
func Decode(r io.ReadSeeker) (*Track, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if decoder.WavAudioFormat == wavFormatFloat {
		return nil, fmt.Errorf("%w: IEEE float samples", ErrUnsupportedFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	format := decoder.Format()
	channels := format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	bitDepth := int(decoder.BitDepth)
	scale, offset, err := sampleScale(bitDepth)
	if err != nil {
		return nil, err
	}

	return &Track{
		Samples:    deinterleave(buf.Data, channels, scale, offset),
		SampleRate: format.SampleRate,
		BitDepth:   bitDepth,
	}, nil
}

// sampleScale returns the factor and offset that map integer samples of
// bitDepth onto [-1, 1].
func sampleScale(bitDepth int) (scale float64, offset int, err error) {
	switch bitDepth {
	case bitDepth8:
		return 1 / maxInt8, uint8Offset, nil
	case bitDepth16:
		return 1 / maxInt16, 0, nil
	case bitDepth24:
		return 1 / maxInt24, 0, nil
	case bitDepth32:
		return 1 / maxInt32, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}
}

// deinterleave splits interleaved integer samples into clamped planar floats.
// A trailing partial frame is dropped.
func deinterleave(data []int, channels int, scale float64, offset int) [][]float64 {
	frames := len(data) / channels
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, frames)
	}

	if channels == 1 {
		for i, v := range data[:frames] {
			out[0][i] = clampUnit(float64(v-offset) * scale)
		}
		return out
	}

	for i := range frames {
		base := i * channels
		for ch := range channels {
			out[ch][i] = clampUnit(float64(data[base+ch]-offset) * scale)
		}
	}
	return out
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

package pipeline

import (
	"github.com/tphakala/tempoloop/internal/simdops"
)

// Block is a pre-allocated planar frame buffer.
//
// All channel slices share one backing array. View reslices them without
// allocating, so a Block can be reused on the audio thread.
type Block struct {
	data     []float64
	channels [][]float64
	views    [][]float64
	frames   int
}

// NewBlock allocates a block of channels × frames samples.
func NewBlock(channels, frames int) *Block {
	channels = max(channels, 1)
	frames = max(frames, 0)

	b := &Block{
		data:     make([]float64, channels*frames),
		channels: make([][]float64, channels),
		views:    make([][]float64, channels),
		frames:   frames,
	}
	for ch := range b.channels {
		b.channels[ch] = b.data[ch*frames : (ch+1)*frames : (ch+1)*frames]
	}
	copy(b.views, b.channels)
	return b
}

// Channels returns the channel count.
func (b *Block) Channels() int { return len(b.channels) }

// Capacity returns the number of frames per channel.
func (b *Block) Capacity() int { return b.frames }

// Planar returns the full-length channel slices.
func (b *Block) Planar() [][]float64 { return b.channels }

// View returns channel slices of the first n frames (clamped to capacity).
// The returned slice header is reused by the next call.
func (b *Block) View(n int) [][]float64 {
	n = max(0, min(n, b.frames))
	for ch, c := range b.channels {
		b.views[ch] = c[:n]
	}
	return b.views
}

// Clear zeroes every sample.
func (b *Block) Clear() {
	clear(b.data)
}

// Deinterleave splits frames interleaved frames from src into the block.
// It returns the number of frames copied.
func (b *Block) Deinterleave(src []float64, frames int) int {
	numCh := len(b.channels)
	frames = min(frames, b.frames, len(src)/numCh)

	switch numCh {
	case monoChannels:
		copy(b.channels[0][:frames], src[:frames])
	case stereoChannels:
		left, right := b.channels[0], b.channels[1]
		for i := range frames {
			left[i] = src[i*2]
			right[i] = src[i*2+1]
		}
	default:
		for i := range frames {
			base := i * numCh
			for ch := range numCh {
				b.channels[ch][i] = src[base+ch]
			}
		}
	}
	return frames
}

// Interleave writes the first frames frames of the block into dst.
// It returns the number of frames written.
func (b *Block) Interleave(dst []float64, frames int) int {
	numCh := len(b.channels)
	frames = min(frames, b.frames, len(dst)/numCh)

	switch numCh {
	case monoChannels:
		copy(dst[:frames], b.channels[0][:frames])
	case stereoChannels:
		simdops.Float64Ops().Interleave2(dst[:frames*2], b.channels[0][:frames], b.channels[1][:frames])
	default:
		for i := range frames {
			base := i * numCh
			for ch := range numCh {
				dst[base+ch] = b.channels[ch][i]
			}
		}
	}
	return frames
}

package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/tphakala/tempoloop"
	"github.com/tphakala/tempoloop/internal/engine"
	"github.com/tphakala/tempoloop/internal/simdops"
)

type shiftOptions struct {
	semitones  float64
	capacity   int
	parallel   bool
	outputRate int // 0 keeps the input rate
	quality    engine.Quality
	log        *logrus.Logger
}

type shiftStats struct {
	semitones  float64
	sampleRate int
	outputRate int
	channels   int
	bitDepth   int
	frames     int64
	outFrames  int64
	latency    int
}

// wavInputInfo holds validated input file information.
type wavInputInfo struct {
	file        *os.File
	decoder     *wav.Decoder
	rate        int
	channels    int
	bitDepth    int
	totalFrames int64
	format      *audio.Format
}

// openWAVInput opens a PCM WAV file and reads its format.
func openWAVInput(path string) (*wavInputInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		_ = f.Close()
		return nil, fmt.Errorf("unsupported WAV format %d: only integer PCM is supported", decoder.WavAudioFormat)
	}

	format := decoder.Format()
	bitDepth := int(decoder.BitDepth)
	if _, err := sampleScale(bitDepth); err != nil {
		_ = f.Close()
		return nil, err
	}

	var total int64
	if d, err := decoder.Duration(); err == nil {
		total = int64(d.Seconds() * float64(format.SampleRate))
	}

	return &wavInputInfo{
		file:        f,
		decoder:     decoder,
		rate:        format.SampleRate,
		channels:    format.NumChannels,
		bitDepth:    bitDepth,
		totalFrames: total,
		format:      format,
	}, nil
}

// Close closes the input file.
func (w *wavInputInfo) Close() error {
	return w.file.Close()
}

// sampleScale returns the full-scale value of an integer sample.
func sampleScale(bitDepth int) (float64, error) {
	switch bitDepth {
	case bitsPerSample8:
		return maxInt8, nil
	case bitsPerSample16:
		return maxInt16, nil
	case bitsPerSample24:
		return maxInt24, nil
	case bitsPerSample32:
		return maxInt32, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
}

// sampleOffset is the zero level of the stored samples; 8-bit WAV is unsigned.
func sampleOffset(bitDepth int) int {
	if bitDepth == bitsPerSample8 {
		return maxInt8 + 1
	}
	return 0
}

// createChannelShifters creates one mono shifter per channel. All of them
// run the same sweep, so the channels stay phase aligned.
func createChannelShifters[F simdops.Float](numChannels, capacity int, semitones float64) ([]*engine.Shifter[F], error) {
	if numChannels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", numChannels)
	}
	factor := tempoloop.PitchFactor(semitones)

	shifters := make([]*engine.Shifter[F], numChannels)
	for ch := range numChannels {
		s, err := engine.NewShifter[F](engine.ShifterConfig{Capacity: capacity, Channels: 1})
		if err != nil {
			return nil, fmt.Errorf("failed to create shifter for channel %d: %w", ch, err)
		}
		s.SetPitchFactor(factor)
		shifters[ch] = s
	}
	return shifters, nil
}

// wavOutputWriter encodes interleaved integer samples to a WAV file.
type wavOutputWriter struct {
	file    *os.File
	encoder *wav.Encoder
	buf     audio.IntBuffer
	frames  int64
}

// createWAVOutput creates the output file and encoder.
func createWAVOutput(path string, sampleRate, bitDepth, channels int) (*wavOutputWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	return &wavOutputWriter{
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, bitDepth, channels, wavFormatPCM),
		buf: audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// WriteSamples writes interleaved samples.
func (w *wavOutputWriter) WriteSamples(samples []int) error {
	if len(samples) == 0 {
		return nil
	}
	w.buf.Data = samples
	w.frames += int64(len(samples) / w.buf.Format.NumChannels)
	return w.encoder.Write(&w.buf)
}

// Close finalises the header and closes the file.
func (w *wavOutputWriter) Close() error {
	if err := w.encoder.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to finalise WAV file: %w", err)
	}
	return w.file.Close()
}

// shiftBuffers holds the preallocated buffers of the processing loop.
type shiftBuffers[F simdops.Float] struct {
	intBuffer   *audio.IntBuffer
	channelBufs [][]F
	outputInts  []int
	scale       float64
	offset      int
}

func newShiftBuffers[F simdops.Float](channels, bitDepth int, format *audio.Format) *shiftBuffers[F] {
	scale, _ := sampleScale(bitDepth)

	channelBufs := make([][]F, channels)
	for ch := range channels {
		channelBufs[ch] = make([]F, bufferSize)
	}

	return &shiftBuffers[F]{
		intBuffer: &audio.IntBuffer{
			Data:   make([]int, bufferSize*channels),
			Format: format,
		},
		channelBufs: channelBufs,
		outputInts:  make([]int, bufferSize*channels),
		scale:       scale,
		offset:      sampleOffset(bitDepth),
	}
}

// progressTracker logs progress every progressInterval percent.
type progressTracker struct {
	totalFrames  int64
	lastProgress int
	log          *logrus.Logger
}

func newProgressTracker(totalFrames int64, log *logrus.Logger) *progressTracker {
	return &progressTracker{totalFrames: totalFrames, log: log}
}

func (p *progressTracker) reportIfNeeded(current int64) {
	if p.totalFrames == 0 || !p.log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	progress := int(float64(current) / float64(p.totalFrames) * percentScale)
	if progress >= p.lastProgress+progressInterval {
		p.log.Debugf("Progress: %d%%", progress)
		p.lastProgress = progress
	}
}

// shiftChannelData shifts frames of every channel buffer in place.
func shiftChannelData[F simdops.Float](shifters []*engine.Shifter[F], channelBufs [][]F, frames int, parallel bool) {
	if !parallel || len(shifters) == 1 {
		for ch, s := range shifters {
			buf := channelBufs[ch][:frames]
			s.Process([][]F{buf}, [][]F{buf})
		}
		return
	}

	var wg sync.WaitGroup
	for ch, s := range shifters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := channelBufs[ch][:frames]
			s.Process([][]F{buf}, [][]F{buf})
		}()
	}
	wg.Wait()
}

// rateConverter resamples every channel of the trimmed output to a new rate.
type rateConverter[F simdops.Float] struct {
	resamplers []*engine.Resampler[F]
	planar     [][]F
}

func newRateConverter[F simdops.Float](channels, inputRate, outputRate int, quality engine.Quality) (*rateConverter[F], error) {
	c := &rateConverter[F]{
		resamplers: make([]*engine.Resampler[F], channels),
		planar:     make([][]F, channels),
	}
	for ch := range channels {
		r, err := engine.NewResampler[F](float64(inputRate), float64(outputRate), quality)
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler for channel %d: %w", ch, err)
		}
		c.resamplers[ch] = r
	}
	return c, nil
}

// convert resamples frames [from, to) of each channel buffer.
func (c *rateConverter[F]) convert(channelBufs [][]F, from, to int) ([][]F, error) {
	for ch, r := range c.resamplers {
		out, err := r.Process(channelBufs[ch][from:to])
		if err != nil {
			return nil, err
		}
		c.planar[ch] = out
	}
	return c.planar, nil
}

// flush returns the resampler tails.
func (c *rateConverter[F]) flush() ([][]F, error) {
	for ch, r := range c.resamplers {
		out, err := r.Flush()
		if err != nil {
			return nil, err
		}
		c.planar[ch] = out
	}
	return c.planar, nil
}

// latencyTrimmer drops the first n frames of a stream.
type latencyTrimmer struct {
	remaining int
}

// skip returns how many of the next frames must be dropped.
func (t *latencyTrimmer) skip(frames int) int {
	n := min(t.remaining, frames)
	t.remaining -= n
	return n
}

func shiftWAV[F simdops.Float](inputPath, outputPath string, opts shiftOptions) (stats *shiftStats, err error) {
	input, err := openWAVInput(inputPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()

	opts.log.WithFields(logrus.Fields{
		"sample_rate": input.rate,
		"channels":    input.channels,
		"bit_depth":   input.bitDepth,
	}).Debug("input format")

	shifters, err := createChannelShifters[F](input.channels, opts.capacity, opts.semitones)
	if err != nil {
		return nil, err
	}
	latency := shifters[0].Latency()

	outRate := input.rate
	var conv *rateConverter[F]
	if opts.outputRate > 0 && opts.outputRate != input.rate {
		outRate = opts.outputRate
		if conv, err = newRateConverter[F](input.channels, input.rate, outRate, opts.quality); err != nil {
			return nil, err
		}
		opts.log.WithFields(logrus.Fields{
			"from":    input.rate,
			"to":      outRate,
			"quality": opts.quality.String(),
		}).Debug("converting sample rate")
	}

	output, err := createWAVOutput(outputPath, outRate, input.bitDepth, input.channels)
	if err != nil {
		return nil, err
	}
	// The header sizes are only written on close.
	defer func() {
		if closeErr := output.Close(); err == nil && closeErr != nil {
			stats, err = nil, closeErr
		}
	}()

	bufs := newShiftBuffers[F](input.channels, input.bitDepth, input.format)
	trim := &latencyTrimmer{remaining: latency}
	progress := newProgressTracker(input.totalFrames, opts.log)
	stats = &shiftStats{
		semitones:  opts.semitones,
		sampleRate: input.rate,
		outputRate: outRate,
		channels:   input.channels,
		bitDepth:   input.bitDepth,
		latency:    latency,
	}

	for {
		n, readErr := input.decoder.PCMBuffer(bufs.intBuffer)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("failed to read audio data: %w", readErr)
		}
		frames := n / input.channels
		if frames == 0 {
			break
		}
		stats.frames += int64(frames)

		deinterleaveInto(bufs.intBuffer.Data[:frames*input.channels], bufs.channelBufs, frames, bufs.offset, 1/bufs.scale)
		shiftChannelData(shifters, bufs.channelBufs, frames, opts.parallel)
		if err := writeShifted(output, bufs, trim, conv, frames); err != nil {
			return nil, err
		}
		progress.reportIfNeeded(stats.frames)

		bufs.intBuffer.Data = bufs.intBuffer.Data[:cap(bufs.intBuffer.Data)]
	}

	// Push the delayed tail out with silence.
	for remaining := latency; remaining > 0; {
		frames := min(remaining, bufferSize)
		for ch := range bufs.channelBufs {
			clear(bufs.channelBufs[ch][:frames])
		}
		shiftChannelData(shifters, bufs.channelBufs, frames, opts.parallel)
		if err := writeShifted(output, bufs, trim, conv, frames); err != nil {
			return nil, err
		}
		remaining -= frames
	}

	if conv != nil {
		tail, err := conv.flush()
		if err != nil {
			return nil, err
		}
		if err := writeFrames(output, bufs, tail, 0, len(tail[0])); err != nil {
			return nil, err
		}
	}
	stats.outFrames = output.frames

	return stats, nil
}

// writeShifted interleaves the shifted frames, minus any still to be
// trimmed, and writes them. A non-nil conv resamples them first.
func writeShifted[F simdops.Float](output *wavOutputWriter, bufs *shiftBuffers[F], trim *latencyTrimmer, conv *rateConverter[F], frames int) error {
	from := trim.skip(frames)
	if from == frames {
		return nil
	}
	if conv == nil {
		return writeFrames(output, bufs, bufs.channelBufs, from, frames)
	}
	planar, err := conv.convert(bufs.channelBufs, from, frames)
	if err != nil {
		return fmt.Errorf("failed to convert sample rate: %w", err)
	}
	return writeFrames(output, bufs, planar, 0, len(planar[0]))
}

// writeFrames interleaves frames [from, to) of planar and writes them.
func writeFrames[F simdops.Float](output *wavOutputWriter, bufs *shiftBuffers[F], planar [][]F, from, to int) error {
	need := (to - from) * len(planar)
	if need <= 0 {
		return nil
	}
	if len(bufs.outputInts) < need {
		bufs.outputInts = make([]int, need)
	}
	n := interleaveInto(planar, from, to, bufs.outputInts, bufs.offset, bufs.scale)
	if err := output.WriteSamples(bufs.outputInts[:n]); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return nil
}

// deinterleaveInto converts interleaved integer samples into per-channel
// buffers scaled to [-1, 1].
func deinterleaveInto[F simdops.Float](data []int, channelBufs [][]F, frames, offset int, invScale float64) {
	numChannels := len(channelBufs)
	if numChannels == 1 {
		buf := channelBufs[0]
		for i := range frames {
			buf[i] = F(float64(data[i]-offset) * invScale)
		}
		return
	}

	for i := range frames {
		base := i * numChannels
		for ch := range numChannels {
			channelBufs[ch][i] = F(float64(data[base+ch]-offset) * invScale)
		}
	}
}

// interleaveInto converts frames [from, to) of the channel buffers into
// clamped integer samples and returns the number of values written.
func interleaveInto[F simdops.Float](channelBufs [][]F, from, to int, dst []int, offset int, scale float64) int {
	numChannels := len(channelBufs)
	k := 0
	for i := from; i < to; i++ {
		for ch := range numChannels {
			s := max(-1, min(1, float64(channelBufs[ch][i])))
			dst[k] = int(math.Round(s*scale)) + offset
			k++
		}
	}
	return k
}

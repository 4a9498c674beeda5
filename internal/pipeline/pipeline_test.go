package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constSource yields a constant value on every channel, limited to total frames.
type constSource struct {
	value float64
	left  int
}

func (s *constSource) Read(dst [][]float64) int {
	if len(dst) == 0 {
		return 0
	}
	n := min(len(dst[0]), s.left)
	for _, ch := range dst {
		for i := range n {
			ch[i] = s.value
		}
	}
	s.left -= n
	return n
}

// recordingStage doubles every sample and counts calls.
type recordingStage struct {
	blocks int
	resets int
	frames int
}

func (s *recordingStage) ProcessBlock(block [][]float64) {
	s.blocks++
	if len(block) > 0 {
		s.frames += len(block[0])
	}
	for _, ch := range block {
		for i := range ch {
			ch[i] *= 2
		}
	}
}

func (s *recordingStage) Reset() { s.resets++ }

func newRunning(t *testing.T, stages ...Stage) (*Pipeline, *OfflineSink) {
	t.Helper()
	p := New(Config{SampleRate: 44100, Channels: 2})
	sink := &OfflineSink{}
	require.NoError(t, p.Init(context.Background(), sink, stages...))
	return p, sink
}

func TestPipeline_InitOpensSinkOnce(t *testing.T) {
	p := New(Config{SampleRate: 44100, Channels: 2})
	sink := &OfflineSink{}
	assert.Equal(t, Idle, p.State())

	require.NoError(t, p.Init(context.Background(), sink))
	require.NoError(t, p.Init(context.Background(), sink))
	require.NoError(t, p.Init(context.Background(), &OfflineSink{}), "a second sink is ignored once running")

	assert.Equal(t, Running, p.State())
	assert.Equal(t, 1, sink.Opens())
	sr, ch := sink.Format()
	assert.Equal(t, 44100, sr)
	assert.Equal(t, 2, ch)
}

func TestPipeline_InitUnavailable(t *testing.T) {
	p := New(Config{})
	hostErr := errors.New("no audio worklet support")
	sink := &OfflineSink{OpenErr: hostErr}

	err := p.Init(context.Background(), sink, &recordingStage{})
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, hostErr)
	assert.Equal(t, Idle, p.State(), "a failed init leaves nothing built")

	block := [][]float64{{1, 1}, {1, 1}}
	n, ok := p.Render(block)
	assert.Zero(t, n)
	assert.False(t, ok)
	assert.Equal(t, [][]float64{{0, 0}, {0, 0}}, block)

	// A later attempt with a working sink succeeds.
	require.NoError(t, p.Init(context.Background(), &OfflineSink{}))
	assert.Equal(t, Running, p.State())
}

func TestPipeline_InitNilSink(t *testing.T) {
	p := New(Config{})
	err := p.Init(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestPipeline_InitCanceledContext(t *testing.T) {
	p := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Init(ctx, &OfflineSink{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Idle, p.State())
}

func TestPipeline_InitResumesSuspended(t *testing.T) {
	p, sink := newRunning(t)

	require.NoError(t, p.Suspend())
	assert.Equal(t, Suspended, p.State())
	assert.True(t, sink.Suspended())

	require.NoError(t, p.Init(context.Background(), sink))
	assert.Equal(t, Running, p.State())
	assert.False(t, sink.Suspended())
	assert.Equal(t, 1, sink.Opens(), "resume instead of rebuilding")
}

func TestPipeline_RenderRunsStagesInOrder(t *testing.T) {
	first := &recordingStage{}
	second := &recordingStage{}
	p, sink := newRunning(t, first, second)

	p.SetSource(&constSource{value: 0.25, left: 1000})

	block := NewBlock(2, 8)
	n, ok := sink.Pull(block.Planar())
	assert.Equal(t, 8, n)
	assert.True(t, ok)

	for _, ch := range block.Planar() {
		for _, v := range ch {
			assert.InDelta(t, 1.0, v, 1e-15, "0.25 doubled twice")
		}
	}
	assert.Equal(t, 1, first.blocks)
	assert.Equal(t, 1, second.blocks)
}

func TestPipeline_ShortReadIsZeroFilled(t *testing.T) {
	p, sink := newRunning(t)
	p.SetSource(&constSource{value: 0.5, left: 3})

	block := NewBlock(2, 6)
	for _, ch := range block.Planar() {
		copy(ch, []float64{9, 9, 9, 9, 9, 9})
	}

	n, ok := sink.Pull(block.Planar())
	assert.Equal(t, 3, n)
	assert.True(t, ok)
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0, 0, 0}, block.Planar()[0])
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0, 0, 0}, block.Planar()[1])
}

func TestPipeline_NoSourceRendersSilence(t *testing.T) {
	stage := &recordingStage{}
	p, sink := newRunning(t, stage)

	block := [][]float64{{1, 2, 3}, {4, 5, 6}}
	n, ok := sink.Pull(block)
	assert.Zero(t, n)
	assert.False(t, ok)
	assert.Equal(t, [][]float64{{0, 0, 0}, {0, 0, 0}}, block)
	assert.Equal(t, 1, stage.blocks, "stages keep running so tails decay")

	p.SetSource(nil)
	_, ok = sink.Pull(block)
	assert.False(t, ok)
}

func TestPipeline_SourceSwapResetsStages(t *testing.T) {
	stage := &recordingStage{}
	p, sink := newRunning(t, stage)

	p.SetSource(&constSource{value: 0.1, left: 100})
	block := NewBlock(2, 16)
	sink.Pull(block.Planar())
	sink.Pull(block.Planar())
	assert.Equal(t, 1, stage.resets, "first source attaches with a flush")

	p.SetSource(&constSource{value: 0.2, left: 100})
	sink.Pull(block.Planar())
	assert.Equal(t, 2, stage.resets, "swap flushes history")
	assert.InDelta(t, 0.4, block.Planar()[0][0], 1e-15)

	sink.Pull(block.Planar())
	assert.Equal(t, 2, stage.resets, "no further flushes without a swap")
	assert.Equal(t, 1, sink.Opens(), "graph reused across loads")
}

func TestPipeline_SuspendResume(t *testing.T) {
	p, sink := newRunning(t)
	p.SetSource(&constSource{value: 1, left: 100})

	require.NoError(t, p.Suspend())
	block := NewBlock(2, 4)
	n, ok := sink.Pull(block.Planar())
	assert.Zero(t, n)
	assert.False(t, ok)

	require.NoError(t, p.Resume())
	n, ok = sink.Pull(block.Planar())
	assert.Equal(t, 4, n)
	assert.True(t, ok)

	// Suspend and Resume on the wrong state are no-ops.
	require.NoError(t, p.Resume())
	idle := New(Config{})
	require.NoError(t, idle.Suspend())
	require.NoError(t, idle.Resume())
}

func TestPipeline_Close(t *testing.T) {
	stage := &recordingStage{}
	p, sink := newRunning(t, stage)
	p.SetSource(&constSource{value: 1, left: 100})
	sink.Pull(NewBlock(2, 4).Planar())
	resets := stage.resets

	require.NoError(t, p.Close())
	assert.Equal(t, Closed, p.State())
	assert.Equal(t, resets+1, stage.resets, "stages are flushed on close")

	n, ok := sink.Pull(NewBlock(2, 4).Planar())
	assert.Zero(t, n)
	assert.False(t, ok)

	require.NoError(t, p.Close(), "close is idempotent")
	require.ErrorIs(t, p.Init(context.Background(), &OfflineSink{}), ErrClosed)
	require.ErrorIs(t, p.Resume(), ErrClosed)
}

func TestPipeline_CloseIdle(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.Close())
	assert.Equal(t, Closed, p.State())
}

func TestPipeline_Defaults(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, DefaultSampleRate, p.SampleRate())
	assert.Equal(t, DefaultChannels, p.Channels())

	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "suspended", Suspended.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestOfflineSink_NotOpen(t *testing.T) {
	var s OfflineSink
	block := [][]float64{{1}}
	n, ok := s.Pull(block)
	assert.Zero(t, n)
	assert.False(t, ok)
	assert.Zero(t, block[0][0])
	assert.Error(t, s.Suspend())
	assert.Error(t, s.Resume())
}

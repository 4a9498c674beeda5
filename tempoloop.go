package tempoloop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tphakala/tempoloop/internal/pipeline"
	"github.com/tphakala/tempoloop/internal/transport"
)

// Common errors returned by the player.
var (
	// ErrEngineUnavailable means the host cannot run the real-time pitch
	// shifter. Pitch control is disabled and nothing is played unshifted.
	ErrEngineUnavailable = errors.New("pitch engine unavailable")

	// ErrPlaybackFailed means the host refused to start playback. Calling
	// Play again retries.
	ErrPlaybackFailed = errors.New("could not start playback")

	// ErrNoSource indicates that no track is loaded.
	ErrNoSource = errors.New("no track loaded")

	// ErrInvalidConfig indicates invalid configuration parameters.
	ErrInvalidConfig = errors.New("invalid player configuration")

	// ErrClosed is returned by a closed player.
	ErrClosed = errors.New("player closed")
)

// Source is a decoded, seekable track provided by the host.
//
// Read runs on the audio thread. Every other method belongs to the control
// side; implementations hand changes to the audio thread without blocking it.
type Source interface {
	pipeline.Source

	// Format returns the native sample rate and channel count of the track.
	Format() (sampleRate, channels int)

	// Play starts or resumes playback. A play request after the end of the
	// track starts again from the beginning.
	Play() error

	// Pause stops playback and keeps the position.
	Pause()

	// Playing reports whether the source is producing audio.
	Playing() bool

	// Seek moves the play head to seconds.
	Seek(seconds float64)

	// Position returns the play head in seconds.
	Position() float64

	// Duration returns the track length in seconds.
	Duration() float64

	// Ended reports that playback reached the end of the track.
	Ended() bool

	// SetPlaybackRate changes the speed with the pitch preserved.
	SetPlaybackRate(rate float64) error

	// PreservesPitch reports whether rate changes keep the pitch.
	PreservesPitch() bool

	// Close releases the track.
	Close() error
}

// Sink is the audio output device that drives the graph.
type Sink = pipeline.Sink

// Renderer is what a Sink calls from its audio thread.
type Renderer = pipeline.Renderer

// Metadata describes the loaded file for display. The engine never
// interprets it.
type Metadata struct {
	Name     string
	Size     int64
	MIMEType string
}

// String formats the metadata as "name • 3.21 MB • audio/wav".
func (m Metadata) String() string {
	parts := make([]string, 0, 3)
	if m.Name != "" {
		parts = append(parts, m.Name)
	}
	parts = append(parts, fmt.Sprintf("%.2f MB", float64(m.Size)/bytesPerMegabyte))
	if m.MIMEType != "" {
		parts = append(parts, m.MIMEType)
	}
	return strings.Join(parts, metadataSep)
}

// State is the transport state of the player.
type State = transport.State

// Transport states.
const (
	Stopped = transport.Stopped
	Playing = transport.Playing
	Looping = transport.Looping
)

// LoopRegion is the A-B loop. Start and End are only meaningful when the
// matching Has flag is set.
type LoopRegion = transport.Region

// PlaybackState is a snapshot of what the control surface shows.
type PlaybackState struct {
	State          State
	Position       float64
	Duration       float64
	Playing        bool
	PlaybackRate   float64
	PitchSemitones int
	PitchFactor    float64
	Volume         float64
	PreservesPitch bool
}

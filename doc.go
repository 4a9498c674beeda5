// Package tempoloop is the playback engine of a practice player: it changes
// the pitch of a track without touching its speed, and loops an A-B region
// of it while the speed is changed separately by the host.
//
// # Overview
//
// A [Player] owns one audio graph for the whole session:
//
//	Source -> pitch shifter -> analyser -> volume -> Sink
//
// The [Source] decodes the track and applies the playback rate natively with
// the pitch preserved. The shifter moves the pitch by a whole number of
// semitones in [-12, 12], using two read taps that sweep a 4096-sample
// delay line and crossfade with a Hann window. The [Sink] is the audio
// device; it drives the graph from its own real-time thread.
//
// # Quick Start
//
//	p, err := tempoloop.NewPlayer(tempoloop.DefaultConfig(), sink)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	if err := p.Load(src, meta); err != nil {
//	    log.Fatal(err)
//	}
//	p.SetPitchSemitones(-2)       // down a whole tone
//	p.SetPlaybackRate(0.75)       // slower, same pitch
//	p.SetLoopStart(10)
//	p.SetLoopEnd(20)
//	p.SetLoopActive(true)
//
//	if err := p.Play(ctx); err != nil {
//	    log.Println(err)
//	}
//	go p.Run(ctx)                 // position updates and loop wrapping
//
// # Offline Processing
//
// For files and tests there is no need for a device:
//
//	shifted, err := tempoloop.ShiftMono(samples, 7)
//
// [NewShifter] returns a streaming shifter for chunked processing.
//
// # Errors
//
// Parameters outside their range are clamped, never rejected. If the sink
// cannot run real-time processing, Play returns [ErrEngineUnavailable] and
// nothing is played: the track is never heard at the wrong pitch. A host
// that refuses to start playback yields [ErrPlaybackFailed]; calling Play
// again retries. Neither is fatal.
//
// # Thread Safety
//
// Player methods may be called from any goroutine. The audio thread only
// reads atomically published values and never waits on the control side.
package tempoloop

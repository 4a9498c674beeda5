// Command tempoloop plays a WAV file with independent speed and pitch
// control and an A-B practice loop.
//
// Usage:
//
//	tempoloop song.wav
//	tempoloop -pitch -2 -rate 0.75 song.wav
//	tempoloop -loop-start 30 -loop-end 45.5 song.wav
//	tempoloop -config tempoloop.yaml -log tempoloop.log -v song.wav
//	tempoloop -info
//
// Keys: space play/pause, left/right seek 5s, up/down pitch, +/- speed,
// ,/. volume, a/b mark loop, l loop on/off, c clear loop, [ ] nudge loop
// start, { } nudge loop end, r back to start, q quit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/tempoloop"
	"github.com/tphakala/tempoloop/internal/host"
)

const (
	minRequiredArgs = 1
	unsetSeconds    = -1.0
	logFileMode     = 0o644
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// options are the command line settings applied after loading.
type options struct {
	pitch     int
	rate      float64
	volume    float64
	loopStart float64
	loopEnd   float64
}

func run() error {
	configPath := flag.String("config", "", "YAML engine configuration file")
	pitch := flag.Int("pitch", 0, "Initial pitch shift in semitones (-12..12)")
	rate := flag.Float64("rate", 1.0, "Initial playback rate (0.25..2)")
	volume := flag.Float64("volume", 1.0, "Initial volume (0..1)")
	loopStart := flag.Float64("loop-start", unsetSeconds, "Loop start in seconds")
	loopEnd := flag.Float64("loop-end", unsetSeconds, "Loop end in seconds")
	logPath := flag.String("log", "", "Write logs to this file (the terminal is used by the UI)")
	verbose := flag.Bool("v", false, "Verbose logging")
	info := flag.Bool("info", false, "Print CPU and SIMD information and exit")
	flag.Parse()

	if *info {
		printInfo(os.Stdout)
		return nil
	}

	args := flag.Args()
	if len(args) < minRequiredArgs {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input.wav\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s song.wav                          # Play\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pitch -2 -rate 0.75 song.wav     # Down a tone, slower\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -loop-start 30 -loop-end 45 a.wav # Practice a passage\n", os.Args[0])
		return errors.New("insufficient arguments")
	}

	cfg := tempoloop.DefaultConfig()
	if *configPath != "" {
		loaded, err := tempoloop.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger, closeLog, err := newLogger(*logPath, *verbose)
	if err != nil {
		return err
	}
	defer closeLog()
	cfg.Logger = logger

	track, err := host.DecodeFile(args[0])
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"file":        track.Meta.Name,
		"sample_rate": track.SampleRate,
		"channels":    track.Channels(),
		"bit_depth":   track.BitDepth,
		"duration":    track.Duration(),
	}).Info("decoded input")

	player, err := tempoloop.NewPlayer(cfg, host.NewSpeakerSink(host.DefaultSpeakerBuffer, logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := player.Close(); err != nil {
			logger.WithError(err).Warn("close failed")
		}
	}()

	src, err := host.NewSource(track, cfg.SampleRate, logger)
	if err != nil {
		return err
	}
	if err := player.Load(src, track.Meta); err != nil {
		return err
	}
	applyOptions(player, options{
		pitch:     *pitch,
		rate:      *rate,
		volume:    *volume,
		loopStart: *loopStart,
		loopEnd:   *loopEnd,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runUI(ctx, player, cfg.PollInterval)
}

// newLogger returns a logrus logger writing to path, or discarding output
// when path is empty. The returned func closes the file.
func newLogger(path string, verbose bool) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if path == "" {
		logger.SetOutput(io.Discard)
		return logger, func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(f)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, func() { _ = f.Close() }, nil
}

// applyOptions pushes the command line settings into the player. Values are
// clamped by the player like any other control input.
func applyOptions(p *tempoloop.Player, o options) {
	if o.pitch != 0 {
		_, _ = p.SetPitchSemitones(o.pitch)
	}
	if o.rate != 1 {
		_, _ = p.SetPlaybackRate(o.rate)
	}
	p.SetVolume(o.volume)

	if o.loopStart >= 0 {
		p.SetLoopStart(o.loopStart)
	}
	if o.loopEnd >= 0 {
		p.SetLoopEnd(o.loopEnd)
	}
	if o.loopStart >= 0 && o.loopEnd >= 0 {
		p.SetLoopActive(true)
		p.Seek(p.Loop().Start)
	}
}

// Command pitch-wav transposes a WAV file without changing its length.
//
// Usage:
//
//	pitch-wav -semitones 3 input.wav output.wav
//	pitch-wav -semitones -12 -capacity 8192 input.wav output.wav
//	pitch-wav -semitones 2 -fast input.wav output.wav           # float32 precision
//	pitch-wav -semitones 2 -parallel=false input.wav out.wav    # one goroutine
//	pitch-wav -semitones -1 -rate 48000 input.wav out.wav       # also convert to 48 kHz
//
// The output is aligned with the input: the shifter delay is trimmed from
// the head and flushed from the tail.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/tempoloop"
	"github.com/tphakala/tempoloop/internal/engine"
)

const (
	// Frames per processing chunk.
	bufferSize = 65536

	// Sample format constants
	bitsPerSample8  = 8
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	maxInt8  = 127.0
	maxInt16 = 32767.0
	maxInt24 = 8388607.0
	maxInt32 = 2147483647.0

	// go-audio/wav format tag for PCM
	wavFormatPCM = 1

	progressInterval = 10 // Log progress every N%
	percentScale     = 100
	minRequiredArgs  = 2
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	semitones := flag.Float64("semitones", 0, "Pitch shift in semitones (-12..12, fractions allowed)")
	capacity := flag.Int("capacity", tempoloop.DefaultBufferCapacity, "Shifter delay buffer in samples (even, larger is smoother but later)")
	fast := flag.Bool("fast", false, "Use float32 precision")
	parallel := flag.Bool("parallel", true, "Shift channels concurrently")
	rate := flag.Int("rate", 0, "Output sample rate in Hz (0 keeps the input rate)")
	quality := flag.String("quality", "high", "Sample rate conversion quality: quick, low, medium, high, very-high")
	verbose := flag.Bool("v", false, "Verbose output")
	cpuprofile := flag.String("cpuprofile", "", "Write CPU profile to file")
	flag.Parse()

	args := flag.Args()
	if len(args) < minRequiredArgs {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input.wav output.wav\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -semitones 3 in.wav out.wav    # Up a minor third\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -semitones -12 in.wav out.wav  # Down an octave\n", os.Args[0])
		return errors.New("insufficient arguments")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		}()
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	if *rate < 0 {
		return fmt.Errorf("invalid output rate %d", *rate)
	}
	q, err := parseQuality(*quality)
	if err != nil {
		return err
	}

	opts := shiftOptions{
		semitones:  *semitones,
		capacity:   *capacity,
		parallel:   *parallel,
		outputRate: *rate,
		quality:    q,
		log:        logger,
	}
	inputPath, outputPath := args[0], args[1]

	logger.WithFields(logrus.Fields{
		"input":     inputPath,
		"output":    outputPath,
		"semitones": opts.semitones,
		"capacity":  opts.capacity,
		"float32":   *fast,
		"parallel":  opts.parallel,
		"rate":      opts.outputRate,
	}).Debug("starting")

	start := time.Now()
	var stats *shiftStats
	if *fast {
		stats, err = shiftWAV[float32](inputPath, outputPath, opts)
	} else {
		stats, err = shiftWAV[float64](inputPath, outputPath, opts)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("Shifted %s -> %s\n", filepath.Base(inputPath), filepath.Base(outputPath))
	fmt.Printf("  %+.2f semitones (x%.4f), %d Hz, %d channels, %d-bit\n",
		stats.semitones, tempoloop.PitchFactor(stats.semitones), stats.sampleRate, stats.channels, stats.bitDepth)
	fmt.Printf("  %d frames, latency %d frames trimmed\n", stats.frames, stats.latency)
	if stats.outputRate != stats.sampleRate {
		fmt.Printf("  Resampled to %d Hz: %d frames\n", stats.outputRate, stats.outFrames)
	}
	fmt.Printf("  Duration: %.2fs, Speed: %.1fx realtime\n",
		elapsed.Seconds(),
		float64(stats.frames)/float64(stats.sampleRate)/elapsed.Seconds())

	return nil
}

// parseQuality maps a -quality flag value to a conversion quality.
func parseQuality(name string) (engine.Quality, error) {
	for q := engine.QualityQuick; q <= engine.QualityVeryHigh; q++ {
		if q.String() == name {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown quality %q", name)
}

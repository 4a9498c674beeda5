package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nsf/termbox-go"

	"github.com/tphakala/tempoloop"
)

const (
	seekStep   = 5.0
	rateStep   = 0.05
	volumeStep = 0.1
	pitchStep  = 1

	meterWidth = 40
	meterFloor = -60.0 // dBFS shown as an empty meter
)

// player is the part of *tempoloop.Player the terminal UI drives.
type player interface {
	TogglePlay(ctx context.Context) error
	Seek(seconds float64) float64
	Reset() float64
	State() tempoloop.PlaybackState
	Poll() tempoloop.PlaybackState
	Loop() tempoloop.LoopRegion
	Metadata() tempoloop.Metadata
	PitchAvailable() bool
	Err() error
	Analyser() tempoloop.Analyser

	SetPitchSemitones(n int) (float64, error)
	SetPlaybackRate(r float64) (float64, error)
	SetVolume(v float64) float64

	MarkLoopStart() tempoloop.LoopRegion
	MarkLoopEnd() tempoloop.LoopRegion
	ToggleLoopActive() bool
	ClearLoop()
	NudgeLoopStart(delta float64) float64
	NudgeLoopEnd(delta float64) float64
}

// ui holds what the screen shows besides the player state.
type ui struct {
	p       player
	message string
}

func newUI(p player) *ui {
	return &ui{p: p}
}

// handleKey applies one key press and reports whether the user asked to quit.
func (u *ui) handleKey(ctx context.Context, ev termbox.Event) bool {
	u.message = ""

	switch ev.Key {
	case termbox.KeyEsc, termbox.KeyCtrlC:
		return true
	case termbox.KeySpace:
		u.report(u.p.TogglePlay(ctx))
		return false
	case termbox.KeyArrowLeft:
		u.p.Seek(u.p.State().Position - seekStep)
		return false
	case termbox.KeyArrowRight:
		u.p.Seek(u.p.State().Position + seekStep)
		return false
	case termbox.KeyArrowUp:
		u.shiftPitch(pitchStep)
		return false
	case termbox.KeyArrowDown:
		u.shiftPitch(-pitchStep)
		return false
	}

	switch ev.Ch {
	case 'q', 'Q':
		return true
	case '+', '=':
		u.changeRate(rateStep)
	case '-', '_':
		u.changeRate(-rateStep)
	case '.', '>':
		st := u.p.State()
		u.p.SetVolume(st.Volume + volumeStep)
	case ',', '<':
		st := u.p.State()
		u.p.SetVolume(st.Volume - volumeStep)
	case 'a', 'A':
		u.p.MarkLoopStart()
	case 'b', 'B':
		r := u.p.MarkLoopEnd()
		if r.Active {
			u.message = "loop on"
		}
	case 'l', 'L':
		if !u.p.ToggleLoopActive() {
			if r := u.p.Loop(); !r.Complete() {
				u.message = "set both loop points first"
			}
		}
	case 'c', 'C':
		u.p.ClearLoop()
	case '[':
		u.p.NudgeLoopStart(-tempoloop.NudgeStep)
	case ']':
		u.p.NudgeLoopStart(tempoloop.NudgeStep)
	case '{':
		u.p.NudgeLoopEnd(-tempoloop.NudgeStep)
	case '}':
		u.p.NudgeLoopEnd(tempoloop.NudgeStep)
	case 'r', 'R':
		u.p.Reset()
	case '0':
		u.report(errOnly(u.p.SetPitchSemitones(0)))
	}
	return false
}

func (u *ui) shiftPitch(delta int) {
	st := u.p.State()
	u.report(errOnly(u.p.SetPitchSemitones(st.PitchSemitones + delta)))
}

func (u *ui) changeRate(delta float64) {
	st := u.p.State()
	// Keep the displayed rate on the 0.05 grid.
	next := math.Round((st.PlaybackRate+delta)*100) / 100
	u.report(errOnly(u.p.SetPlaybackRate(next)))
}

func (u *ui) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, tempoloop.ErrEngineUnavailable):
		u.message = "pitch engine unavailable: pitch control disabled"
	case errors.Is(err, tempoloop.ErrPlaybackFailed):
		u.message = "playback could not start, press space to retry"
	case errors.Is(err, tempoloop.ErrNoSource):
		u.message = "no track loaded"
	default:
		u.message = err.Error()
	}
}

func errOnly(_ float64, err error) error { return err }

// statusLines renders the player state as text, one entry per screen row.
func statusLines(meta tempoloop.Metadata, st tempoloop.PlaybackState, loop tempoloop.LoopRegion, level float64, pitchOK bool, message string) []string {
	lines := []string{
		meta.String(),
		"",
		fmt.Sprintf("%-8s %s / %s", st.State, tempoloop.FormatTimePrecise(st.Position), tempoloop.FormatTime(st.Duration)),
		progressBar(st.Position, st.Duration, meterWidth),
		"",
		fmt.Sprintf("speed  %.2fx", st.PlaybackRate),
	}

	if pitchOK {
		lines = append(lines, fmt.Sprintf("pitch  %+d st (x%.3f)", st.PitchSemitones, st.PitchFactor))
	} else {
		lines = append(lines, "pitch  unavailable")
	}

	lines = append(lines,
		fmt.Sprintf("volume %3.0f%%", st.Volume*100),
		"loop   "+formatLoop(loop),
		"level  "+levelMeter(level, meterWidth),
	)

	if message != "" {
		lines = append(lines, "", message)
	}
	return lines
}

func formatLoop(r tempoloop.LoopRegion) string {
	point := func(has bool, v float64) string {
		if !has {
			return "--:--.--"
		}
		return tempoloop.FormatTimePrecise(v)
	}

	state := "off"
	if r.Active {
		state = "on"
	}
	return fmt.Sprintf("A %s  B %s  [%s]", point(r.HasStart, r.Start), point(r.HasEnd, r.End), state)
}

func progressBar(pos, dur float64, width int) string {
	filled := 0
	if dur > 0 {
		filled = int(math.Round(pos / dur * float64(width)))
	}
	filled = max(0, min(width, filled))
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

// levelMeter maps an RMS level onto a bar spanning meterFloor..0 dBFS.
func levelMeter(rms float64, width int) string {
	filled := 0
	if rms > 0 {
		db := 20 * math.Log10(rms)
		filled = int(math.Round((db - meterFloor) / -meterFloor * float64(width)))
	}
	filled = max(0, min(width, filled))
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}

const helpLine = "space play/pause  ←/→ seek  ↑/↓ pitch  +/- speed  ,/. volume  a/b loop  l toggle  c clear  [ ] { } nudge  r restart  q quit"

func (u *ui) draw(st tempoloop.PlaybackState) {
	_ = termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)

	lines := statusLines(u.p.Metadata(), st, u.p.Loop(), u.p.Analyser().Level(), u.p.PitchAvailable(), u.message)
	if u.message == "" {
		if err := u.p.Err(); err != nil {
			u.report(err)
			lines = append(lines, "", u.message)
		}
	}

	row := 0
	for _, line := range lines {
		printLine(0, row, termbox.ColorDefault, line)
		row++
	}

	_, h := termbox.Size()
	printLine(0, max(row+1, h-1), termbox.ColorCyan, helpLine)
	_ = termbox.Flush()
}

func printLine(x, y int, fg termbox.Attribute, text string) {
	for _, r := range text {
		termbox.SetCell(x, y, r, fg, termbox.ColorDefault)
		x++
	}
}

// runUI owns the terminal until the user quits or ctx is cancelled.
func runUI(ctx context.Context, p player, interval time.Duration) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("failed to initialise terminal: %w", err)
	}
	defer termbox.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan termbox.Event)
	go func() {
		for {
			ev := termbox.PollEvent()
			if ev.Type == termbox.EventInterrupt {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	defer termbox.Interrupt()

	u := newUI(p)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	u.draw(p.Poll())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev.Type {
			case termbox.EventKey:
				if u.handleKey(ctx, ev) {
					return nil
				}
			case termbox.EventError:
				return fmt.Errorf("terminal error: %w", ev.Err)
			}
			u.draw(p.State())
		case <-ticker.C:
			u.draw(p.Poll())
		}
	}
}

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmynk/rngenius/internal/roulette"
)

// terminalFeedback renders a spin on a terminal line. Sounds and vibration
// become the terminal bell.
type terminalFeedback struct {
	w io.Writer
}

func newTerminalFeedback(w io.Writer) *terminalFeedback {
	return &terminalFeedback{w: w}
}

func (f *terminalFeedback) Countdown(n int) {
	if n == 0 {
		fmt.Fprint(f.w, "GO!\n")
		return
	}
	fmt.Fprintf(f.w, "%d... ", n)
}

func (f *terminalFeedback) Play(roulette.Sound) {
	fmt.Fprint(f.w, "\a")
}

func (f *terminalFeedback) Frame(frame roulette.Frame) {
	names := make([]string, len(frame.Visible))
	for i, o := range frame.Visible {
		names[i] = o.Name
	}
	if frame.Settled {
		names[1] = "[" + names[1] + "]"
	} else {
		names[1] = "> " + names[1] + " <"
	}
	fmt.Fprintf(f.w, "\r\033[K%s", strings.Join(names, "   "))
}

func (f *terminalFeedback) Vibrate([]time.Duration) {
	fmt.Fprint(f.w, "\a")
}

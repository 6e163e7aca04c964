package roulette

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mmynk/rngenius/internal/metrics"
	"github.com/mmynk/rngenius/internal/models"
)

// Timing of a spin.
const (
	DefaultCountdown  = 3
	CountdownInterval = time.Second
	StepInterval      = 100 * time.Millisecond
	SettleDelay       = time.Second
)

// SettlePattern is the double pulse played when the roll lands: wait, buzz,
// pause, buzz.
var SettlePattern = []time.Duration{0, 500 * time.Millisecond, 100 * time.Millisecond, 500 * time.Millisecond}

// Sound is a cue played during the countdown.
type Sound int

const (
	// SoundTick plays on each countdown number.
	SoundTick Sound = iota
	// SoundConfirm plays on "GO".
	SoundConfirm
)

func (s Sound) String() string {
	switch s {
	case SoundTick:
		return "tick"
	case SoundConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// Frame is what a view renders while rolling.
type Frame struct {
	Visible [3]models.Option
	Spins   int
	Settled bool
}

// Feedback receives the sensory events of a spin. Calls arrive in order on
// the runner's goroutine.
type Feedback interface {
	// Countdown shows n; 0 is "GO".
	Countdown(n int)
	Play(sound Sound)
	Frame(frame Frame)
	Vibrate(pattern []time.Duration)
}

// NopFeedback ignores every event.
type NopFeedback struct{}

func (NopFeedback) Countdown(int)           {}
func (NopFeedback) Play(Sound)              {}
func (NopFeedback) Frame(Frame)             {}
func (NopFeedback) Vibrate([]time.Duration) {}

// Runner drives a Machine on a clock.
type Runner struct {
	clock     clockwork.Clock
	feedback  Feedback
	metrics   *metrics.Metrics
	countdown int
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock the runner waits on.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Runner) { r.clock = clock }
}

// WithFeedback sets the receiver of countdown, sound, frame and haptic events.
func WithFeedback(fb Feedback) Option {
	return func(r *Runner) { r.feedback = fb }
}

// WithMetrics counts every roll step on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithCountdown sets the first countdown number.
func WithCountdown(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.countdown = n
		}
	}
}

// NewRunner creates a runner on the real clock with no feedback.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		clock:     clockwork.NewRealClock(),
		feedback:  NopFeedback{},
		countdown: DefaultCountdown,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run plays a full spin and calls onComplete with the landed option once it
// has settled. It returns early with ctx.Err() when ctx is cancelled, in
// which case onComplete is not called.
func (r *Runner) Run(ctx context.Context, options []models.Option, target int, onComplete func(models.Option)) error {
	m, err := NewMachine(options, target)
	if err != nil {
		return err
	}

	for n := r.countdown; n > 0; n-- {
		r.feedback.Countdown(n)
		r.feedback.Play(SoundTick)
		if err := r.wait(ctx, CountdownInterval); err != nil {
			return err
		}
	}
	r.feedback.Countdown(0)
	r.feedback.Play(SoundConfirm)
	if err := r.wait(ctx, CountdownInterval); err != nil {
		return err
	}

	r.feedback.Frame(Frame{Visible: m.Visible()})
	for !m.Settled() {
		if err := r.wait(ctx, StepInterval); err != nil {
			return err
		}
		m.Step()
		r.metrics.ObserveSpin()
		r.feedback.Frame(Frame{Visible: m.Visible(), Spins: m.Spins(), Settled: m.Settled()})
	}

	r.feedback.Vibrate(SettlePattern)
	if err := r.wait(ctx, SettleDelay); err != nil {
		return err
	}

	slog.Debug("Roulette settled", "option", m.Current().Name, "spins", m.Spins())
	if onComplete != nil {
		onComplete(m.Current())
	}
	return nil
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(d):
		return nil
	}
}

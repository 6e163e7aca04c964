// Package roulette plays the spin that lands on a server-chosen option: a
// countdown, a cyclic roll through the options and a settle on the target.
package roulette

import (
	"errors"
	"fmt"

	"github.com/mmynk/rngenius/internal/models"
)

// MinSpins is the number of steps the roll takes before it may settle.
const MinSpins = 30

var (
	ErrNoOptions     = errors.New("roulette needs at least one option")
	ErrInvalidTarget = errors.New("roulette target is out of range")
)

// Machine is the stepping state of a roll. It has no notion of time.
type Machine struct {
	options []models.Option
	target  int
	index   int
	spins   int
	settled bool
}

// NewMachine starts a roll on options[0] that will settle on options[target].
func NewMachine(options []models.Option, target int) (*Machine, error) {
	if len(options) == 0 {
		return nil, ErrNoOptions
	}
	if target < 0 || target >= len(options) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidTarget, target, len(options))
	}
	return &Machine{options: options, target: target}, nil
}

// Step advances the pointer by one option and counts a spin. It reports
// whether the roll has settled; a settled machine no longer moves.
func (m *Machine) Step() bool {
	if m.settled {
		return true
	}
	m.spins++
	m.index = (m.index + 1) % len(m.options)
	if m.spins >= MinSpins && m.index == m.target {
		m.settled = true
	}
	return m.settled
}

// Settled reports whether the roll landed on the target.
func (m *Machine) Settled() bool { return m.settled }

// Spins returns the number of steps taken.
func (m *Machine) Spins() int { return m.spins }

// Index returns the pointer position.
func (m *Machine) Index() int { return m.index }

// Current returns the option under the pointer.
func (m *Machine) Current() models.Option { return m.options[m.index] }

// Visible returns the previous, current and next options around the pointer.
func (m *Machine) Visible() [3]models.Option {
	n := len(m.options)
	return [3]models.Option{
		m.options[(m.index-1+n)%n],
		m.options[m.index],
		m.options[(m.index+1)%n],
	}
}

// Package power tracks whether the screen is on and debounces touch toggles
package power

import (
	"time"

	"github.com/sirupsen/logrus"
)

type State int64

const (
	SCREEN_OFF State = iota
	SCREEN_ON
)

func (s State) String() string {
	if s == SCREEN_ON {
		return "ON"
	}
	return "OFF"
}

// ParseState accepts "on" and "off".
func ParseState(s string) (State, bool) {
	switch s {
	case "on", "ON":
		return SCREEN_ON, true
	case "off", "OFF":
		return SCREEN_OFF, true
	}
	return SCREEN_OFF, false
}

// Machine is the ON/OFF state machine. A touch toggles the state only when the debounce
// interval elapsed since the last accepted touch; swallowed touches do not restart the
// interval.
type Machine struct {
	state     State
	debounce  time.Duration
	lastTouch time.Time
	touched   bool
}

func NewMachine(initial State, debounce time.Duration) *Machine {
	return &Machine{
		state:    initial,
		debounce: debounce,
	}
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) IsOn() bool {
	return m.state == SCREEN_ON
}

// LastTouch returns the time of the last accepted touch, zero if none.
func (m *Machine) LastTouch() time.Time {
	return m.lastTouch
}

// Touch feeds one touch event and reports whether it caused a transition.
func (m *Machine) Touch(now time.Time) (State, bool) {
	if m.touched && now.Sub(m.lastTouch) < m.debounce {
		logrus.Debugf("Touch swallowed, %v since last accepted touch", now.Sub(m.lastTouch))
		return m.state, false
	}

	m.touched = true
	m.lastTouch = now
	if m.state == SCREEN_ON {
		m.state = SCREEN_OFF
	} else {
		m.state = SCREEN_ON
	}
	logrus.Infof("Screen touched, turning %s", m.state)
	return m.state, true
}

// Set forces a state without touching the debounce bookkeeping.
func (m *Machine) Set(state State) {
	m.state = state
}

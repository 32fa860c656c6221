// Package clock abstracts monotonic time so that loop deadlines can be advanced in tests
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Fake is a manually driven clock. Sleep advances the current time instead of blocking.
type Fake struct {
	lock  sync.Mutex
	now   time.Time
	slept time.Duration
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.Advance(d)
	f.lock.Lock()
	f.slept += d
	f.lock.Unlock()
}

func (f *Fake) Advance(d time.Duration) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.now = f.now.Add(d)
}

// Slept returns the total duration passed to Sleep.
func (f *Fake) Slept() time.Duration {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.slept
}

package device

import (
	"bufio"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// TouchLatch records presses coming from a reader goroutine until the control loop
// polls them.
type TouchLatch struct {
	pressed atomic.Bool
}

func (l *TouchLatch) Press() {
	l.pressed.Store(true)
}

// Touched reports whether at least one press happened since the previous call.
func (l *TouchLatch) Touched() bool {
	return l.pressed.Swap(false)
}

// LineTouch turns every line read from r into a press. Used in simulation mode with stdin.
// The reader goroutine ends with r, Close does not wait for it.
type LineTouch struct {
	TouchLatch
}

func NewLineTouch(r io.Reader) *LineTouch {
	d := &LineTouch{}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			logrus.Debugf("Simulated touch")
			d.Press()
		}
	}()
	return d
}

func (d *LineTouch) Close() error {
	return nil
}

// NoTouch never reports a touch.
type NoTouch struct{}

func (NoTouch) Touched() bool {
	return false
}

func (NoTouch) Close() error {
	return nil
}

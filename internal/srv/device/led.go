package device

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

type Notification int64

const (
	TOUCH_NOTIFICATION Notification = iota
	SHOWN_NOTIFICATION
	RESTART_NOTIFICATION
)

// BlinkPattern returns the alternating on/off durations of a notification, starting with on.
func BlinkPattern(n Notification) []time.Duration {
	switch n {
	case TOUCH_NOTIFICATION:
		return []time.Duration{100 * time.Millisecond}
	case SHOWN_NOTIFICATION:
		return []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}
	case RESTART_NOTIFICATION:
		return []time.Duration{time.Second}
	}
	return nil
}

// Led is the status LED. Patterns are played by a dedicated goroutine; a notification
// arriving while another one plays is dropped.
type Led struct {
	pin      gpio.PinIO
	askBlink chan Notification
	askDone  chan bool
	done     chan bool
}

func NewLed(name string) (*Led, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find led pin %s", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to setup led pin %s: %w", name, err)
	}

	d := &Led{
		pin:      pin,
		askBlink: make(chan Notification, 1),
		askDone:  make(chan bool),
		done:     make(chan bool),
	}
	go func() {
		for loop := true; loop; {
			select {
			case n := <-d.askBlink:
				d.play(BlinkPattern(n))
			case <-d.askDone:
				loop = false
			}
		}
		d.pin.Out(gpio.Low)
		d.done <- true
	}()
	return d, nil
}

func (d *Led) play(pattern []time.Duration) {
	level := gpio.High
	for _, duration := range pattern {
		if err := d.pin.Out(level); err != nil {
			logrus.Debugf("Led error: %v", err)
			return
		}
		time.Sleep(duration)
		level = !level
	}
	d.pin.Out(gpio.Low)
}

func (d *Led) Notify(n Notification) {
	select {
	case d.askBlink <- n:
	default:
	}
}

func (d *Led) Close() error {
	d.askDone <- true
	<-d.done
	return nil
}

// NoLed drops notifications.
type NoLed struct{}

func (NoLed) Notify(Notification) {}

func (NoLed) Close() error {
	return nil
}

package device

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

const buttonCheckPeriod = 5 * time.Millisecond

// ButtonTouch is a push button wired between a GPIO and ground, used as touch input.
type ButtonTouch struct {
	TouchLatch
	pin       gpio.PinIO
	isPressed bool

	checkTicker *time.Ticker
	askDone     chan bool
	done        chan bool
}

func NewButtonTouch(name string) (*ButtonTouch, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find %s button", name)
	}

	// Set it as input, with an internal pull up resistor:
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to setup %s button: %w", name, err)
	}

	d := &ButtonTouch{
		pin:         pin,
		checkTicker: time.NewTicker(buttonCheckPeriod),
		askDone:     make(chan bool),
		done:        make(chan bool),
	}

	go func() {
		for loop := true; loop; {
			select {
			case <-d.checkTicker.C:
				d.refresh()
			case <-d.askDone:
				loop = false
			}
		}
		d.done <- true
	}()

	logrus.Infof("Using button %s as touch input", name)
	return d, nil
}

func (d *ButtonTouch) refresh() {
	wasPressed := d.isPressed
	d.isPressed = bool(!d.pin.Read())
	if d.isPressed && !wasPressed {
		d.Press()
	}
}

func (d *ButtonTouch) Close() error {
	d.checkTicker.Stop()
	d.askDone <- true
	<-d.done
	return nil
}

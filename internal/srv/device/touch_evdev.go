package device

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/holoplot/go-evdev"
	"github.com/sirupsen/logrus"
)

var ErrNoTouchDevice = errors.New("no input device reporting BTN_TOUCH")

// EvdevTouch reads a Linux input device and latches BTN_TOUCH presses.
type EvdevTouch struct {
	TouchLatch
	device *evdev.InputDevice
	done   chan bool
}

// NewEvdevTouch opens path, or the first device able to report BTN_TOUCH when path is empty.
func NewEvdevTouch(path string) (*EvdevTouch, error) {
	var err error
	if path == "" {
		path, err = findTouchDevice()
		if err != nil {
			return nil, err
		}
	}

	device, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	name, _ := device.Name()
	logrus.Infof("Using touch input device: %s (%s)", path, name)

	d := &EvdevTouch{device: device, done: make(chan bool)}
	go d.readLoop()
	return d, nil
}

func findTouchDevice() (string, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return "", fmt.Errorf("unable to list input devices: %w", err)
	}
	for _, p := range paths {
		device, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}
		capable := slices.Contains(device.CapableEvents(evdev.EV_KEY), evdev.BTN_TOUCH)
		device.Close()
		if capable {
			return p.Path, nil
		}
	}
	return "", ErrNoTouchDevice
}

func (d *EvdevTouch) readLoop() {
	defer close(d.done)
	for {
		ev, err := d.device.ReadOne()
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return
			}
			logrus.Warnf("Touch read error: %v", err)
			return
		}
		if ev.Type == evdev.EV_KEY && ev.Code == evdev.BTN_TOUCH && ev.Value == 1 {
			d.Press()
		}
	}
}

func (d *EvdevTouch) Close() error {
	err := d.device.Close()
	<-d.done
	return err
}

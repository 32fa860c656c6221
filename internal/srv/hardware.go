package srv

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/jypelle/bildkadro/internal/presenter"
	"github.com/jypelle/bildkadro/internal/srv/config"
	"github.com/jypelle/bildkadro/internal/srv/device"
	"github.com/sirupsen/logrus"
)

type TouchSensor interface {
	Touched() bool
	Close() error
}

type Notifier interface {
	Notify(n device.Notification)
}

// Hardware groups the physical devices the control loop drives.
type Hardware struct {
	Surface   presenter.Surface
	Backlight presenter.Backlight
	Touch     TouchSensor
	Notifier  Notifier

	closers []io.Closer
}

// AddCloser registers a device to close with the hardware.
func (h *Hardware) AddCloser(c io.Closer) {
	h.closers = append(h.closers, c)
}

func (h *Hardware) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			logrus.Warnf("Unable to close device: %v", err)
		}
	}
	h.closers = nil
}

// OpenHardware opens the devices selected in param.yaml. Simulation devices are built by
// the caller.
func OpenHardware(sc *config.ServerConfig) (*Hardware, error) {
	h := &Hardware{}
	if err := h.openDisplay(sc.DisplayParam); err != nil {
		h.Close()
		return nil, err
	}
	if err := h.openTouch(sc.TouchParam); err != nil {
		h.Close()
		return nil, err
	}
	if err := h.openLed(sc.LedParam); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (h *Hardware) openDisplay(param config.DisplayParam) error {
	var oled *device.OLEDSurface

	switch param.Driver {
	case "fbdev":
		sysfsDir := filepath.Join("/sys/class/graphics", filepath.Base(param.Framebuffer))
		surface, err := device.NewFramebufferSurface(param.Framebuffer, sysfsDir, param.Width, param.Height)
		if err != nil {
			return err
		}
		h.Surface = surface
		h.AddCloser(surface)
	case "oled":
		surface, err := device.NewOLEDSurface(param.I2cBus)
		if err != nil {
			return err
		}
		oled = surface
		h.Surface = surface
		h.AddCloser(surface)
	default:
		return fmt.Errorf("unknown display driver %q", param.Driver)
	}

	switch param.BacklightParam.Driver {
	case "sysfs":
		backlight, err := device.NewSysfsBacklight(param.BacklightParam.SysfsPath)
		if err != nil {
			return err
		}
		h.Backlight = backlight
	case "pwm":
		backlight, err := device.NewPWMBacklight(param.BacklightParam.PwmPin, param.BacklightParam.PwmFrequency)
		if err != nil {
			return err
		}
		h.Backlight = backlight
	case "contrast":
		if oled == nil {
			return fmt.Errorf("contrast backlight requires the oled display driver")
		}
		h.Backlight = oled
	case "none", "":
		h.Backlight = device.NoBacklight{}
	default:
		return fmt.Errorf("unknown backlight driver %q", param.BacklightParam.Driver)
	}
	return nil
}

func (h *Hardware) openTouch(param config.TouchParam) error {
	var touch TouchSensor
	var err error

	switch param.Driver {
	case "evdev":
		touch, err = device.NewEvdevTouch(param.EvdevDevice)
	case "gt1151":
		touch, err = device.NewGT1151Touch(param.I2cBus, param.I2cAddress)
	case "button":
		touch, err = device.NewButtonTouch(param.ButtonPin)
	case "none", "":
		touch = device.NoTouch{}
	default:
		err = fmt.Errorf("unknown touch driver %q", param.Driver)
	}
	if err != nil {
		return err
	}
	h.Touch = touch
	h.AddCloser(touch)
	return nil
}

func (h *Hardware) openLed(param config.LedParam) error {
	if !param.Enabled {
		h.Notifier = device.NoLed{}
		return nil
	}
	led, err := device.NewLed(param.Pin)
	if err != nil {
		return err
	}
	h.Notifier = led
	h.AddCloser(led)
	return nil
}

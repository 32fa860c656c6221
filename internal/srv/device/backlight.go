package device

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

func clampLevel(level float64) float64 {
	return math.Max(0, math.Min(1, level))
}

// SysfsBacklight drives /sys/class/backlight/<name>.
type SysfsBacklight struct {
	brightnessFilename string
	maxBrightness      int
}

func NewSysfsBacklight(dir string) (*SysfsBacklight, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("unable to read max brightness: %w", err)
	}
	maxBrightness, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || maxBrightness <= 0 {
		return nil, fmt.Errorf("invalid max brightness %q", strings.TrimSpace(string(raw)))
	}
	logrus.Debugf("Backlight %s, max brightness %d", dir, maxBrightness)
	return &SysfsBacklight{
		brightnessFilename: filepath.Join(dir, "brightness"),
		maxBrightness:      maxBrightness,
	}, nil
}

func (d *SysfsBacklight) SetBrightness(level float64) error {
	value := int(math.Round(clampLevel(level) * float64(d.maxBrightness)))
	return os.WriteFile(d.brightnessFilename, []byte(strconv.Itoa(value)), 0644)
}

// PWMBacklight drives the backlight enable line with a PWM duty cycle.
type PWMBacklight struct {
	pin       gpio.PinIO
	frequency physic.Frequency
}

func NewPWMBacklight(name string, frequencyHz int64) (*PWMBacklight, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find backlight pin %s", name)
	}
	return &PWMBacklight{
		pin:       pin,
		frequency: physic.Frequency(frequencyHz) * physic.Hertz,
	}, nil
}

func (d *PWMBacklight) SetBrightness(level float64) error {
	level = clampLevel(level)
	switch level {
	case 0:
		return d.pin.Out(gpio.Low)
	case 1:
		return d.pin.Out(gpio.High)
	}
	return d.pin.PWM(gpio.Duty(level*float64(gpio.DutyMax)), d.frequency)
}

// NoBacklight ignores brightness changes.
type NoBacklight struct{}

func (NoBacklight) SetBrightness(float64) error {
	return nil
}

package device

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
)

// OLEDSurface is a ssd1306 monochrome panel on I²C. Its contrast doubles as backlight.
type OLEDSurface struct {
	oledLock    sync.Mutex
	oledDisplay *ssd1306.Dev
	i2cBus      i2c.BusCloser
	halted      bool
}

func NewOLEDSurface(busName string) (*OLEDSurface, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}

	// Open a handle to the I²C bus, the first available one when busName is empty
	i2cBus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("unable to open i2c bus: %w", err)
	}

	oledDisplay, err := ssd1306.NewI2C(i2cBus, &ssd1306.DefaultOpts)
	if err != nil {
		i2cBus.Close()
		return nil, fmt.Errorf("unable to initialize oled display: %w", err)
	}
	logrus.Infof("Using oled display %s", oledDisplay.Bounds().Size())

	return &OLEDSurface{oledDisplay: oledDisplay, i2cBus: i2cBus}, nil
}

func (d *OLEDSurface) Bounds() image.Rectangle {
	return d.oledDisplay.Bounds()
}

func (d *OLEDSurface) Compose(img image.Image) error {
	d.oledLock.Lock()
	defer d.oledLock.Unlock()
	return d.oledDisplay.Draw(d.oledDisplay.Bounds(), img, img.Bounds().Min)
}

func (d *OLEDSurface) Release() error {
	d.oledLock.Lock()
	defer d.oledLock.Unlock()
	return d.oledDisplay.Draw(d.oledDisplay.Bounds(), image.NewUniform(color.Black), image.Point{})
}

// SetBrightness maps the level to the panel contrast. Level 0 halts the panel.
func (d *OLEDSurface) SetBrightness(level float64) error {
	d.oledLock.Lock()
	defer d.oledLock.Unlock()

	level = clampLevel(level)
	if level == 0 {
		d.halted = true
		return d.oledDisplay.Halt()
	}
	d.halted = false
	// SetContrast also wakes a halted panel
	return d.oledDisplay.SetContrast(byte(level * 255))
}

func (d *OLEDSurface) Close() error {
	d.oledLock.Lock()
	defer d.oledLock.Unlock()
	return d.i2cBus.Close()
}

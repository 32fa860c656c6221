// Package presenter owns the image shown on screen and the fade ramps around it
package presenter

import (
	"fmt"
	"image"
	"time"

	"github.com/jypelle/bildkadro/internal/catalog"
	"github.com/sirupsen/logrus"
)

// Surface is the display group: at most one composed image at a time.
type Surface interface {
	Compose(img image.Image) error
	Release() error
	Bounds() image.Rectangle
}

// Backlight is the physical brightness control, level in [0, 1].
type Backlight interface {
	SetBrightness(level float64) error
}

type Loader interface {
	Load(path string) (image.Image, error)
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type Config struct {
	Steps     int
	StepDelay time.Duration
	Floor     float64
}

type composition struct {
	name string
	img  image.Image
	// transient compositions (blank and status screens) are released without a ramp
	transient bool
}

type Controller struct {
	surface   Surface
	backlight Backlight
	loader    Loader
	sleeper   Sleeper
	cfg       Config

	current *composition
	level   float64
}

func NewController(surface Surface, backlight Backlight, loader Loader, sleeper Sleeper, cfg Config) *Controller {
	if cfg.Floor < 0 {
		cfg.Floor = 0
	}
	if cfg.Floor >= 1 {
		cfg.Floor = 0.9
	}
	return &Controller{
		surface:   surface,
		backlight: backlight,
		loader:    loader,
		sleeper:   sleeper,
		cfg:       cfg,
		level:     1,
	}
}

// Current returns the name of the composed image, if any.
func (c *Controller) Current() (string, bool) {
	if c.current == nil {
		return "", false
	}
	return c.current.name, true
}

func (c *Controller) Bounds() image.Rectangle {
	return c.surface.Bounds()
}

func (c *Controller) Brightness() float64 {
	return c.level
}

// RampLevels returns the brightness written at each step of a fade in, or of a fade out
// when up is false. Fade in goes from just above the floor to 1, fade out mirrors it.
func RampLevels(steps int, floor float64, up bool) []float64 {
	if steps < 1 {
		steps = 1
	}
	levels := make([]float64, steps)
	for i := 1; i <= steps; i++ {
		delta := (1 - floor) * float64(i) / float64(steps)
		if up {
			levels[i-1] = floor + delta
		} else {
			levels[i-1] = 1 - delta
		}
	}
	return levels
}

func (c *Controller) setBrightness(level float64) {
	c.level = level
	if err := c.backlight.SetBrightness(level); err != nil {
		logrus.Warnf("Unable to set brightness to %.2f: %v", level, err)
	}
}

func (c *Controller) ramp(up bool) {
	for _, level := range RampLevels(c.cfg.Steps, c.cfg.Floor, up) {
		c.setBrightness(level)
		c.sleeper.Sleep(c.cfg.StepDelay)
	}
}

func (c *Controller) compose(name string, img image.Image, transient bool) error {
	if err := c.surface.Compose(img); err != nil {
		if releaseErr := c.surface.Release(); releaseErr != nil {
			logrus.Warnf("Unable to release surface: %v", releaseErr)
		}
		c.current = nil
		return fmt.Errorf("unable to compose %s: %w", name, err)
	}
	c.current = &composition{name: name, img: img, transient: transient}
	return nil
}

func (c *Controller) release() {
	if c.current == nil {
		return
	}
	if err := c.surface.Release(); err != nil {
		logrus.Warnf("Unable to release %s: %v", c.current.name, err)
	}
	c.current = nil
}

// Show loads entry, composes it in place of the previous image and fades it in.
// On error nothing stays composed.
func (c *Controller) Show(entry catalog.Entry) error {
	c.Clear()

	img, err := c.loader.Load(entry.Path)
	if err != nil {
		return fmt.Errorf("unable to load %s: %w", entry.Path, err)
	}
	if err := c.compose(entry.Name(), img, false); err != nil {
		return err
	}

	logrus.Infof("Showing %s", entry.Path)
	c.ramp(true)
	return nil
}

// Clear fades the composed image out to the floor and releases it.
func (c *Controller) Clear() {
	if c.current == nil {
		return
	}
	defer c.release()
	if c.current.transient {
		return
	}
	c.ramp(false)
}

// ShowTransient replaces the composed image with img at full brightness, without ramp.
func (c *Controller) ShowTransient(name string, img image.Image) error {
	c.release()
	if err := c.compose(name, img, true); err != nil {
		return err
	}
	if c.level != 1 {
		c.setBrightness(1)
	}
	return nil
}

// Off zeroes the brightness with a single write and releases the composed image.
// When blank is given it becomes the composed image so the framebuffer stays defined.
func (c *Controller) Off(blank image.Image) error {
	c.setBrightness(0)
	c.release()
	if blank != nil {
		return c.compose("blank", blank, true)
	}
	return nil
}

// Release drops the composed image without any ramp.
func (c *Controller) Release() {
	c.release()
}

// On restores full brightness with a single write.
func (c *Controller) On() {
	c.setBrightness(1)
}

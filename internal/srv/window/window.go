// Package window renders the frame in a desktop window when running in simulation mode.
package window

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

// Surface keeps the composed image and the brightness level; the platform specific part
// only has to paint Frame.
type Surface struct {
	lock   sync.RWMutex
	bounds image.Rectangle
	img    image.Image
	level  float64

	invalidate func()
}

func newSurface(width, height int) *Surface {
	return &Surface{
		bounds:     image.Rect(0, 0, width, height),
		level:      1,
		invalidate: func() {},
	}
}

func (s *Surface) Bounds() image.Rectangle {
	return s.bounds
}

func (s *Surface) Compose(img image.Image) error {
	s.lock.Lock()
	s.img = img
	s.lock.Unlock()
	s.invalidate()
	return nil
}

func (s *Surface) Release() error {
	s.lock.Lock()
	s.img = nil
	s.lock.Unlock()
	s.invalidate()
	return nil
}

func (s *Surface) SetBrightness(level float64) error {
	s.lock.Lock()
	s.level = level
	s.lock.Unlock()
	s.invalidate()
	return nil
}

// Frame returns what a physical panel would show: the image dimmed by the backlight level.
func (s *Surface) Frame() image.Image {
	s.lock.RLock()
	img, level := s.img, s.level
	s.lock.RUnlock()

	frame := image.NewRGBA(s.bounds)
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if img == nil || level <= 0 {
		return frame
	}
	draw.Draw(frame, frame.Bounds(), img, img.Bounds().Min, draw.Src)
	if level < 1 {
		shade := image.NewUniform(color.Alpha{A: uint8((1 - level) * 255)})
		draw.DrawMask(frame, frame.Bounds(), image.NewUniform(color.Black), image.Point{}, shade, image.Point{}, draw.Over)
	}
	return frame
}

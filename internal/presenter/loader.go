package presenter

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/bmp"
)

// FileLoader decodes bitmaps from storage and letterboxes them to the surface size.
type FileLoader struct {
	bounds image.Rectangle
}

func NewFileLoader(bounds image.Rectangle) *FileLoader {
	return &FileLoader{bounds: bounds}
}

func (l *FileLoader) Load(path string) (image.Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image %s", path)
	}
	return Fit(img, l.bounds), nil
}

// Fit scales img to fit inside bounds keeping its aspect ratio, centred on black.
// An empty bounds, an empty image or an image already at size is returned as is.
func Fit(img image.Image, bounds image.Rectangle) image.Image {
	if bounds.Empty() || img.Bounds().Empty() || img.Bounds().Size() == bounds.Size() {
		return img
	}

	src := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	scaledW, scaledH := w, src.Dy()*w/src.Dx()
	if scaledH > h {
		scaledW, scaledH = src.Dx()*h/src.Dy(), h
	}
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}

	scaled := transform.Resize(img, scaledW, scaledH, transform.Linear)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)
	offset := image.Pt((w-scaledW)/2, (h-scaledH)/2)
	draw.Draw(dst, scaled.Bounds().Add(offset), scaled, image.Point{}, draw.Src)
	return dst
}

// Black returns an opaque black frame of the given size.
func Black(bounds image.Rectangle) image.Image {
	if bounds.Empty() {
		bounds = image.Rect(0, 0, 1, 1)
	}
	img := image.NewRGBA(bounds)
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)
	return img
}

package srv

import (
	"image"
	"image/color"

	"github.com/hajimehoshi/bitmapfont/v2"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	glyphWidth = 6
	lineHeight = 16
)

var col = color.RGBA{255, 255, 255, 255}
var uniformImage = image.NewUniform(col)

func AddLabel(img *image.RGBA, x, y int, label string) {

	point := fixed.Point26_6{X: fixed.Int26_6((x + 4) * 64), Y: fixed.Int26_6(y * 64)}

	d := &font.Drawer{
		Dst:  img,
		Src:  uniformImage,
		Face: bitmapfont.Face,
		Dot:  point,
	}
	d.DrawString(label)
}

func AddCenteredLabel(img *image.RGBA, y int, label string) {
	AddLabel(img, img.Bounds().Min.X+(img.Bounds().Dx()-len(label)*glyphWidth)/2, y, label)
}

// statusImage renders lines of text centered on a black screen.
func statusImage(bounds image.Rectangle, lines ...string) *image.RGBA {
	img := image.NewRGBA(bounds)
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)

	top := bounds.Min.Y + (bounds.Dy()-len(lines)*lineHeight)/2
	for i, line := range lines {
		AddCenteredLabel(img, top+(i+1)*lineHeight-3, line)
	}
	return img
}

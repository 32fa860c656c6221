package device

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// FramebufferSurface writes frames to a Linux framebuffer device such as /dev/fb0.
// 16 bits (RGB565) and 32 bits (XRGB8888) pixel formats are supported.
type FramebufferSurface struct {
	lock         sync.Mutex
	file         *os.File
	bounds       image.Rectangle
	bitsPerPixel int
	stride       int
	frame        []byte
}

// NewFramebufferSurface opens device. Geometry comes from sysfsDir
// (/sys/class/graphics/fbN) when available, otherwise from width and height at 32 bits.
func NewFramebufferSurface(device string, sysfsDir string, width, height int) (*FramebufferSurface, error) {
	bitsPerPixel := 32
	if bpp, err := readSysfsInt(filepath.Join(sysfsDir, "bits_per_pixel")); err == nil {
		bitsPerPixel = bpp
	}
	if w, h, err := readVirtualSize(filepath.Join(sysfsDir, "virtual_size")); err == nil {
		width, height = w, h
	}
	if bitsPerPixel != 16 && bitsPerPixel != 32 {
		return nil, fmt.Errorf("unsupported framebuffer depth: %d bits", bitsPerPixel)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid framebuffer size %dx%d", width, height)
	}

	stride := width * bitsPerPixel / 8
	if s, err := readSysfsInt(filepath.Join(sysfsDir, "stride")); err == nil && s >= stride {
		stride = s
	}

	file, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", device, err)
	}
	logrus.Infof("Using framebuffer %s: %dx%d, %d bits", device, width, height, bitsPerPixel)

	return &FramebufferSurface{
		file:         file,
		bounds:       image.Rect(0, 0, width, height),
		bitsPerPixel: bitsPerPixel,
		stride:       stride,
		frame:        make([]byte, stride*height),
	}, nil
}

func readSysfsInt(filename string) (int, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

func readVirtualSize(filename string) (int, int, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return 0, 0, err
	}
	w, h, ok := strings.Cut(strings.TrimSpace(string(raw)), ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid virtual size %q", raw)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, err
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, err
	}
	return width, height, nil
}

func (d *FramebufferSurface) Bounds() image.Rectangle {
	return d.bounds
}

func (d *FramebufferSurface) Compose(img image.Image) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	rgba := image.NewRGBA(d.bounds)
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if img.Bounds().Size() == d.bounds.Size() {
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	encodeFrame(d.frame, rgba, d.bitsPerPixel, d.stride)
	return d.flush()
}

// Release blanks the framebuffer.
func (d *FramebufferSurface) Release() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	clear(d.frame)
	return d.flush()
}

func (d *FramebufferSurface) flush() error {
	_, err := d.file.WriteAt(d.frame, 0)
	return err
}

func (d *FramebufferSurface) Close() error {
	return d.file.Close()
}

// encodeFrame converts rgba to the framebuffer pixel format.
func encodeFrame(dst []byte, rgba *image.RGBA, bitsPerPixel int, stride int) {
	b := rgba.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := dst[y*stride:]
		src := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl := src[x*4], src[x*4+1], src[x*4+2]
			switch bitsPerPixel {
			case 16:
				v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(bl>>3)
				row[x*2] = byte(v)
				row[x*2+1] = byte(v >> 8)
			case 32:
				row[x*4] = bl
				row[x*4+1] = g
				row[x*4+2] = r
				row[x*4+3] = 0xFF
			}
		}
	}
}

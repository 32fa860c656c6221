package device

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 1))
	rgba.Set(0, 0, color.RGBA{R: 0xFF, A: 0xFF})
	rgba.Set(1, 0, color.RGBA{B: 0xFF, A: 0xFF})

	frame32 := make([]byte, 8)
	encodeFrame(frame32, rgba, 32, 8)
	want32 := []byte{0, 0, 0xFF, 0xFF, 0xFF, 0, 0, 0xFF}
	if string(frame32) != string(want32) {
		t.Errorf("32 bits frame = %v, want %v", frame32, want32)
	}

	frame16 := make([]byte, 4)
	encodeFrame(frame16, rgba, 16, 4)
	want16 := []byte{0x00, 0xF8, 0x1F, 0x00}
	if string(frame16) != string(want16) {
		t.Errorf("16 bits frame = %v, want %v", frame16, want16)
	}
}

func TestFramebufferSurface(t *testing.T) {
	dir := t.TempDir()
	sysfs := filepath.Join(dir, "fb0")
	if err := os.Mkdir(sysfs, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(sysfs, "bits_per_pixel"), []byte("16\n"), 0644)
	os.WriteFile(filepath.Join(sysfs, "virtual_size"), []byte("4,2\n"), 0644)

	device := filepath.Join(dir, "fb")
	if err := os.WriteFile(device, nil, 0644); err != nil {
		t.Fatal(err)
	}

	surface, err := NewFramebufferSurface(device, sysfs, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer surface.Close()

	if surface.Bounds() != image.Rect(0, 0, 4, 2) {
		t.Fatalf("Bounds() = %v", surface.Bounds())
	}

	white := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := range white.Pix {
		white.Pix[i] = 0xFF
	}
	if err := surface.Compose(white); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(device)
	if len(raw) != 16 || raw[0] != 0xFF || raw[1] != 0xFF {
		t.Fatalf("frame after compose = %v", raw)
	}

	if err := surface.Release(); err != nil {
		t.Fatal(err)
	}
	raw, _ = os.ReadFile(device)
	for _, b := range raw {
		if b != 0 {
			t.Fatalf("frame after release = %v", raw)
		}
	}
}

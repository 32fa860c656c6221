package device

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSysfsBacklight(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "max_brightness"), []byte("255\n"), 0644); err != nil {
		t.Fatal(err)
	}

	backlight, err := NewSysfsBacklight(dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		level float64
		want  string
	}{
		{0, "0"},
		{0.2, "51"},
		{1, "255"},
		{1.5, "255"},
		{-1, "0"},
	}
	for _, tt := range tests {
		if err := backlight.SetBrightness(tt.level); err != nil {
			t.Fatal(err)
		}
		raw, err := os.ReadFile(filepath.Join(dir, "brightness"))
		if err != nil {
			t.Fatal(err)
		}
		if string(raw) != tt.want {
			t.Errorf("level %v wrote %q, want %q", tt.level, raw, tt.want)
		}
	}
}

func TestSysfsBacklight_InvalidMax(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "max_brightness"), []byte("zero"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSysfsBacklight(dir); err == nil {
		t.Fatal("expected an error")
	}
}

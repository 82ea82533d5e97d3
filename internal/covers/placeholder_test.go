package covers

import (
	"bytes"
	"image/jpeg"
	"testing"
)

func TestPlaceholder(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{"default size", 0, PlaceholderSize},
		{"custom size", 120, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Placeholder(42, tt.size)
			if err != nil {
				t.Fatalf("Placeholder failed: %v", err)
			}
			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("placeholder is not a JPEG: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.want || b.Dy() != tt.want {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.want, tt.want)
			}

			// Corners are background, the disc is near black
			r, g, b, _ := img.At(1, 1).RGBA()
			if r>>8 > 60 || g>>8 > 60 || b>>8 > 60 {
				t.Errorf("corner pixel too bright: %d %d %d", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestPlaceholder_StablePerRelease(t *testing.T) {
	first, err := Placeholder(1234, 64)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Placeholder(1234, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same release should get the same placeholder")
	}

	// Find a release with a different label colour
	other := int64(1235)
	for labelColor(other) == labelColor(1234) {
		other++
	}
	third, err := Placeholder(other, 64)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(first, third) {
		t.Error("different label colours should render differently")
	}
}

func TestLabelColorInRange(t *testing.T) {
	for id := int64(0); id < 200; id++ {
		if c := labelColor(id); c < 0 || c >= len(labelColors) {
			t.Fatalf("labelColor(%d) = %d out of range", id, c)
		}
	}
}

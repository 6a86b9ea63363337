package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.Set(1, 1, color.RGBA{R: 255, A: 255})

	got, err := Decode(encodePNG(t, src))
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds() != src.Bounds() {
		t.Errorf("bounds: got %v", got.Bounds())
	}
	if got.RGBAAt(1, 1).R != 255 {
		t.Error("expected pixel to survive decode")
	}
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds().Dx() != 8 {
		t.Errorf("bounds: got %v", got.Bounds())
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrEmptyBuffer) {
		t.Errorf("expected ErrEmptyBuffer, got %v", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte("definitely not pixels")); err == nil {
		t.Error("expected decode error")
	}
}

func TestFitToTile(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	got := FitToTile(src, 16, 16)
	if got.Bounds().Dx() != 16 || got.Bounds().Dy() != 16 {
		t.Errorf("expected 16x16, got %v", got.Bounds())
	}

	// Matching size passes through untouched.
	if same := FitToTile(src, 8, 8); same != src {
		t.Error("expected identity for matching size")
	}
}

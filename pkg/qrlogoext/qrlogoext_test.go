package qrlogoext

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// TestEncodePNGGlobeMark renders a card without a logo and checks the size
// and that the centre carries the mark colour.
func TestEncodePNGGlobeMark(t *testing.T) {
	t.Parallel()

	mark := color.RGBA{R: 200, A: 255}
	var buf bytes.Buffer
	if err := EncodePNG(&buf, []byte("https://example.org/?region=SM"), nil, Options{SizePx: 400, Mark: mark}); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() < 400 || b.Dx() != b.Dy() {
		t.Fatalf("bounds = %v", b)
	}
	// A point inside the upper-left globe quadrant, clear of the grid lines.
	x, y := b.Dx()/2-b.Dx()/40, b.Dy()/2-b.Dy()/12
	if got := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA); got != mark {
		t.Errorf("centre pixel = %v, want %v", got, mark)
	}
}

// TestEncodePNGLogo places a PNG logo in the centre box and falls back to
// the globe for undecodable bytes.
func TestEncodePNGLogo(t *testing.T) {
	t.Parallel()

	green := color.RGBA{G: 255, A: 255}
	logo := image.NewRGBA(image.Rect(0, 0, 8, 8))
	fillRect(logo, 0, 0, 8, 8, green)
	var lb bytes.Buffer
	if err := png.Encode(&lb, logo); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := EncodePNG(&buf, []byte("SM"), lb.Bytes(), Options{SizePx: 300}); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if got := color.RGBAModel.Convert(img.At(b.Dx()/2, b.Dy()/2)).(color.RGBA); got != green {
		t.Errorf("centre pixel = %v, want logo colour", got)
	}

	buf.Reset()
	if err := EncodePNG(&buf, []byte("SM"), []byte("not a png"), Options{}); err != nil {
		t.Fatalf("bad logo should fall back: %v", err)
	}
}

// TestFitRect keeps the aspect ratio inside the box.
func TestFitRect(t *testing.T) {
	t.Parallel()

	tests := []struct{ w, h, mw, mh, ww, wh int }{
		{100, 50, 40, 40, 40, 20},
		{10, 40, 40, 40, 10, 40},
		{0, 0, 7, 9, 7, 9},
	}
	for _, tc := range tests {
		if w, h := fitRect(tc.w, tc.h, tc.mw, tc.mh); w != tc.ww || h != tc.wh {
			t.Errorf("fitRect(%d,%d,%d,%d) = %d,%d", tc.w, tc.h, tc.mw, tc.mh, w, h)
		}
	}
}

// Package qrlogoext renders QR share cards: a high-redundancy QR code with a
// cleared centre box holding either a PNG logo or a drawn globe mark.
package qrlogoext

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	qrcode "github.com/skip2/go-qrcode"
)

// Options controls the card. Zero values pick the defaults.
type Options struct {
	SizePx int // output edge length, default 720

	Fg   color.RGBA // modules, default black
	Bg   color.RGBA // background and quiet zone, default map sea blue
	Mark color.RGBA // globe mark, default Fg

	// CentreFrac is the centre box edge as a fraction of the image,
	// clamped to 0.20..0.34 so the code stays readable at ECC level H.
	CentreFrac float64
	// LogoPadding is the margin around a PNG logo inside the box.
	LogoPadding int
}

// SeaBlue is the default card background.
var SeaBlue = color.RGBA{R: 0x9C, G: 0xC9, B: 0xE6, A: 0xFF}

func (o *Options) defaults() {
	if o.SizePx <= 0 {
		o.SizePx = 720
	}
	if o.LogoPadding < 0 {
		o.LogoPadding = 0
	}
	if o.CentreFrac <= 0 {
		o.CentreFrac = 0.28
	}
	o.CentreFrac = math.Min(math.Max(o.CentreFrac, 0.20), 0.34)
	if (o.Fg == color.RGBA{}) {
		o.Fg = color.RGBA{A: 0xFF}
	}
	if (o.Bg == color.RGBA{}) {
		o.Bg = SeaBlue
	}
	if (o.Mark == color.RGBA{}) {
		o.Mark = o.Fg
	}
}

// EncodePNG writes a card encoding data. A logo that fails to decode falls
// back to the globe mark.
func EncodePNG(w io.Writer, data []byte, logoPNG []byte, opt Options) error {
	opt.defaults()

	qr, err := qrcode.New(string(data), qrcode.Highest)
	if err != nil {
		return err
	}
	qr.ForegroundColor = opt.Fg
	qr.BackgroundColor = opt.Bg

	src := qr.Image(opt.SizePx)
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	edge := min(b.Dx(), b.Dy())
	box := int(opt.CentreFrac*float64(edge)) &^ 1
	cx, cy := b.Dx()/2, b.Dy()/2
	fillRect(dst, cx-box/2, cy-box/2, box, box, opt.Bg)

	logo, ok := decodeLogo(logoPNG)
	inner := box - 2*opt.LogoPadding
	if ok && inner > 0 {
		lw, lh := fitRect(logo.Bounds().Dx(), logo.Bounds().Dy(), inner, inner)
		scaled := scaleNearest(logo, lw, lh)
		r := image.Rect(cx-lw/2, cy-lh/2, cx-lw/2+lw, cy-lh/2+lh)
		draw.Draw(dst, r, scaled, image.Point{}, draw.Over)
	} else {
		drawGlobe(dst, cx, cy, box/2, opt.Mark, opt.Bg)
	}

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, dst)
}

func decodeLogo(data []byte) (image.Image, bool) {
	if len(data) == 0 {
		return nil, false
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	return img, true
}

// drawGlobe paints a disc with an equator, two parallels and two meridians
// cut out in the background colour.
func drawGlobe(dst *image.RGBA, cx, cy, half int, fg, bg color.RGBA) {
	r := int(0.9 * float64(half))
	if r <= 0 {
		return
	}
	line := max(r/12, 1)
	fillEllipse(dst, cx, cy, r, r, fg)

	// meridians
	strokeEllipse(dst, cx, cy, r/2, r, line, bg)
	fillRect(dst, cx-line/2, cy-r, max(line, 1), 2*r, bg)
	// equator and parallels
	fillRect(dst, cx-r, cy-line/2, 2*r, line, bg)
	for _, lat := range []float64{-0.5, 0.5} {
		y := cy + int(lat*float64(r))
		hw := int(math.Sqrt(1-lat*lat) * float64(r))
		fillRect(dst, cx-hw, y-line/2, 2*hw, line, bg)
	}
	// rim
	strokeEllipse(dst, cx, cy, r, r, line, fg)
}

func fitRect(w, h, maxW, maxH int) (int, int) {
	if w == 0 || h == 0 {
		return maxW, maxH
	}
	s := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	return max(int(float64(w)*s), 1), max(int(float64(h)*s), 1)
}

func scaleNearest(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := 0; x < w; x++ {
			dst.Set(x, y, src.At(sb.Min.X+x*sb.Dx()/w, sy))
		}
	}
	return dst
}

func fillRect(img *image.RGBA, x, y, w, h int, col color.RGBA) {
	r := image.Rect(x, y, x+w, y+h).Intersect(img.Bounds())
	draw.Draw(img, r, &image.Uniform{C: col}, image.Point{}, draw.Src)
}

func insideEllipse(dx, dy, a, b int) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	fx, fy := float64(dx)/float64(a), float64(dy)/float64(b)
	return fx*fx+fy*fy <= 1
}

func fillEllipse(img *image.RGBA, cx, cy, a, b int, col color.RGBA) {
	bounds := img.Bounds()
	for y := max(cy-b, bounds.Min.Y); y <= min(cy+b, bounds.Max.Y-1); y++ {
		for x := max(cx-a, bounds.Min.X); x <= min(cx+a, bounds.Max.X-1); x++ {
			if insideEllipse(x-cx, y-cy, a, b) {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

// strokeEllipse paints the band between the ellipse (a, b) and the one
// shrunk by width.
func strokeEllipse(img *image.RGBA, cx, cy, a, b, width int, col color.RGBA) {
	bounds := img.Bounds()
	for y := max(cy-b, bounds.Min.Y); y <= min(cy+b, bounds.Max.Y-1); y++ {
		for x := max(cx-a, bounds.Min.X); x <= min(cx+a, bounds.Max.X-1); x++ {
			dx, dy := x-cx, y-cy
			if insideEllipse(dx, dy, a, b) && !insideEllipse(dx, dy, a-width, b-width) {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

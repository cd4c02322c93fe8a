package capture

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

var (
	markerFill    = color.RGBA{R: 0xFF, A: 0xFF}
	markerOutline = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

// MarkerSize returns the pointer marker diameter for an image width:
// width/80 clamped to [8,24].
func MarkerSize(width int) int {
	s := width / 80
	if s < 8 {
		return 8
	}
	if s > 24 {
		return 24
	}
	return s
}

// toRGBA returns img as a mutable *image.RGBA with bounds starting at 0,0.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// OverlayPointer draws the pointer marker at the absolute desktop position
// (px,py), translated into the frame's local coordinates. Positions outside
// the frame are clipped. The returned image may share memory with raw.Image.
func OverlayPointer(raw RawImage, px, py int) image.Image {
	dst := toRGBA(raw.Image)
	cx := px - raw.Origin.X
	cy := py - raw.Origin.Y
	size := MarkerSize(dst.Bounds().Dx())
	r := size / 2

	r2 := r * r
	inner := (r - 1) * (r - 1)
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if !(image.Point{X: x, Y: y}).In(dst.Rect) {
				continue
			}
			d := (x-cx)*(x-cx) + (y-cy)*(y-cy)
			switch {
			case d > r2:
			case d >= inner:
				dst.SetRGBA(x, y, markerOutline)
			default:
				dst.SetRGBA(x, y, markerFill)
			}
		}
	}
	return dst
}

// ScaledSize returns the dimensions after limiting width to maxWidth while
// keeping the aspect ratio. maxWidth <= 0 disables scaling.
func ScaledSize(w, h, maxWidth int) (int, int) {
	if maxWidth <= 0 || w <= maxWidth {
		return w, h
	}
	nh := int(float64(h) / float64(w) * float64(maxWidth))
	if nh < 1 {
		nh = 1
	}
	return maxWidth, nh
}

// Downscale shrinks img to at most maxWidth pixels wide, preserving aspect
// ratio. Images already narrow enough are returned unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), maxWidth)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// ApproxBiLinear keeps per-frame cost low at streaming rates
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

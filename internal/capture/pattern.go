package capture

import (
	"image"
	"image/color"
	"sync/atomic"
)

// PatternSource produces a moving test pattern. It stands in for a real
// screen grabber on headless hosts and in tests.
type PatternSource struct {
	Width  int
	Height int
	Origin image.Point
	tick   atomic.Uint32
}

// NewPatternSource creates a pattern source of the given size
func NewPatternSource(width, height int) *PatternSource {
	return &PatternSource{Width: width, Height: height}
}

// Capture renders the next pattern frame
func (p *PatternSource) Capture() (RawImage, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return RawImage{}, ErrNoDisplay
	}
	t := int(p.tick.Add(1))
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	bar := (t * 8) % p.Width
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := color.RGBA{R: uint8(x * 255 / p.Width), G: uint8(y * 255 / p.Height), B: 0x40, A: 0xFF}
			if x >= bar && x < bar+8 {
				c = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return RawImage{Image: img, Origin: p.Origin}, nil
}

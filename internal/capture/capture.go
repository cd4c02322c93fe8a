// Package capture provides the frame source and encoder used by the screen
// stream, plus the image steps applied in between (pointer marker, downscale).
package capture

import (
	"image"

	"github.com/pkg/errors"
)

// ErrNoDisplay is returned by sources that cannot find any display
var ErrNoDisplay = errors.New("capture: no display available")

// RawImage is one captured frame. Origin is the virtual-desktop coordinate of
// the image's top-left pixel; with several monitors it is the top-left of the
// union of all display bounds and may be negative.
type RawImage struct {
	Image  image.Image
	Origin image.Point
}

// FrameSource captures the full virtual display extent
type FrameSource interface {
	Capture() (RawImage, error)
}

// Encoder compresses a frame. quality is in [0,1].
type Encoder interface {
	Encode(img image.Image, quality float32) ([]byte, error)
}

// VirtualBounds returns the union of display rectangles
func VirtualBounds(displays []image.Rectangle) image.Rectangle {
	var u image.Rectangle
	for i, r := range displays {
		if i == 0 {
			u = r
			continue
		}
		u = u.Union(r)
	}
	return u
}

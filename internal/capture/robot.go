//go:build robotgo

package capture

import (
	"image"

	"github.com/go-vgo/robotgo"
	"github.com/pkg/errors"
)

func init() {
	newRobotSource = func() FrameSource { return &RobotSource{} }
}

// RobotSource grabs the whole virtual desktop through robotgo
type RobotSource struct{}

// Capture grabs the union of all display bounds
func (RobotSource) Capture() (RawImage, error) {
	n := robotgo.DisplaysNum()
	if n <= 0 {
		return RawImage{}, ErrNoDisplay
	}
	rects := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		x, y, w, h := robotgo.GetDisplayBounds(i)
		rects = append(rects, image.Rect(x, y, x+w, y+h))
	}
	vb := VirtualBounds(rects)

	bit := robotgo.CaptureScreen(vb.Min.X, vb.Min.Y, vb.Dx(), vb.Dy())
	if bit == nil {
		return RawImage{}, errors.New("capture: robotgo returned no bitmap")
	}
	defer robotgo.FreeBitmap(bit)

	return RawImage{Image: robotgo.ToImage(bit), Origin: vb.Min}, nil
}

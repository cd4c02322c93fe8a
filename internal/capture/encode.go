package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"

	"github.com/pkg/errors"
)

// JPEGEncoder encodes frames as baseline JPEG
type JPEGEncoder struct{}

// Encode maps quality [0,1] onto the JPEG 1..100 scale
func (JPEGEncoder) Encode(img image.Image, quality float32) ([]byte, error) {
	if img == nil {
		return nil, errors.New("capture: nil image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
		return nil, errors.Wrap(err, "jpeg encode failed")
	}
	return buf.Bytes(), nil
}

func jpegQuality(q float32) int {
	if q != q { // NaN
		q = 0
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	n := int(math.Round(float64(q) * 100))
	if n < 1 {
		n = 1
	}
	return n
}

package tray

import (
	"encoding/binary"
	"image/color"
	"strings"

	"gyrodesk/internal/status"
)

var (
	colorIdle      = color.RGBA{0x9E, 0x9E, 0x9E, 0xFF}
	colorConnected = color.RGBA{0x2E, 0xB8, 0x4B, 0xFF}
	colorError     = color.RGBA{0xE0, 0x3A, 0x3A, 0xFF}
)

func stateColor(s string) color.RGBA {
	switch {
	case status.IsConnected(s):
		return colorConnected
	case strings.HasPrefix(s, "error:"):
		return colorError
	}
	return colorIdle
}

const (
	iconSize      = 16
	icoHeaderSize = 6 + 16
	dibHeaderSize = 40
	pixelBytes    = iconSize * iconSize * 4
	maskBytes     = iconSize * 4 // 1bpp rows padded to 32 bits
)

// Icon renders a 16x16 32-bit ICO with a filled disc of color c on a
// transparent background.
func Icon(c color.RGBA) []byte {
	imageSize := dibHeaderSize + pixelBytes + maskBytes
	icon := make([]byte, icoHeaderSize+imageSize)

	// ICONDIR
	binary.LittleEndian.PutUint16(icon[2:], 1) // type: icon
	binary.LittleEndian.PutUint16(icon[4:], 1) // count
	// ICONDIRENTRY
	icon[6] = iconSize
	icon[7] = iconSize
	binary.LittleEndian.PutUint16(icon[10:], 1)  // planes
	binary.LittleEndian.PutUint16(icon[12:], 32) // bpp
	binary.LittleEndian.PutUint32(icon[14:], uint32(imageSize))
	binary.LittleEndian.PutUint32(icon[18:], icoHeaderSize)

	// BITMAPINFOHEADER, height doubled for the AND mask
	dib := icon[icoHeaderSize:]
	binary.LittleEndian.PutUint32(dib[0:], dibHeaderSize)
	binary.LittleEndian.PutUint32(dib[4:], iconSize)
	binary.LittleEndian.PutUint32(dib[8:], iconSize*2)
	binary.LittleEndian.PutUint16(dib[12:], 1)
	binary.LittleEndian.PutUint16(dib[14:], 32)
	binary.LittleEndian.PutUint32(dib[20:], pixelBytes)

	// BGRA rows, bottom-up
	px := dib[dibHeaderSize:]
	const r2 = 7 * 7
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := 2*x+1-iconSize, 2*y+1-iconSize
			if dx*dx+dy*dy > 4*r2 {
				continue
			}
			off := ((iconSize-1-y)*iconSize + x) * 4
			px[off] = c.B
			px[off+1] = c.G
			px[off+2] = c.R
			px[off+3] = c.A
		}
	}
	return icon
}

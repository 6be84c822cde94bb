package matrix

import "image/color"

// MaxChannel is the largest channel intensity
const MaxChannel = 255

// Pixel is one RGB value with 8 bits per channel.
type Pixel struct {
	R, G, B uint8
}

// Black is the zero pixel
var Black = Pixel{}

// RGBA implements color.Color
func (p Pixel) RGBA() (r, g, b, a uint32) {
	r = uint32(p.R) * 0x101
	g = uint32(p.G) * 0x101
	b = uint32(p.B) * 0x101
	return r, g, b, 0xFFFF
}

// PixelModel converts any color to a Pixel, dropping alpha after
// premultiplication (transparent areas render black).
var PixelModel = color.ModelFunc(func(c color.Color) color.Color {
	if p, ok := c.(Pixel); ok {
		return p
	}
	r, g, b, _ := c.RGBA()
	return Pixel{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
})

// FromColor converts a color.Color to a Pixel
func FromColor(c color.Color) Pixel {
	return PixelModel.Convert(c).(Pixel)
}

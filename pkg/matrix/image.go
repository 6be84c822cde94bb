package matrix

import (
	"errors"
	"fmt"
	"image"
)

// ErrImageTooSmall is returned when a source image cannot cover the panel.
var ErrImageTooSmall = errors.New("image smaller than panel")

// Image is a decoded source picture, usually wider than the panel.
type Image struct {
	Width  int
	Height int
	// Pix holds Height rows of Width pixels
	Pix []Pixel
}

// NewImage allocates a black image
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]Pixel, width*height),
	}
}

// FromImage converts any image.Image, anchored at its bounds minimum.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	img := NewImage(b.Dx(), b.Dy())
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			img.Pix[y*img.Width+x] = FromColor(src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return img
}

// At returns the pixel at column x, row y
func (m *Image) At(x, y int) Pixel {
	return m.Pix[y*m.Width+x]
}

// Set stores the pixel at column x, row y
func (m *Image) Set(x, y int, p Pixel) {
	m.Pix[y*m.Width+x] = p
}

// Fits checks that the image covers a panel of rows by cols.
func (m *Image) Fits(rows, cols int) error {
	if m.Width < cols || m.Height < rows {
		return fmt.Errorf("%w: image is %dx%d, panel needs at least %dx%d",
			ErrImageTooSmall, m.Width, m.Height, cols, rows)
	}
	if len(m.Pix) != m.Width*m.Height {
		return fmt.Errorf("image has %d pixels, want %d", len(m.Pix), m.Width*m.Height)
	}
	return nil
}

// Package matrix holds the pixel data shown on a panel: source images and the
// fixed-size frame buffer the render loop reads.
package matrix

import "fmt"

// FrameBuffer is exactly what the panel shows: a rows×cols grid that never
// changes size, plus the scroll cursor into the source image.
type FrameBuffer struct {
	rows   int
	cols   int
	pix    []Pixel
	cursor int
}

// NewFrameBuffer creates a black frame buffer
func NewFrameBuffer(rows, cols int) *FrameBuffer {
	return &FrameBuffer{
		rows: rows,
		cols: cols,
		pix:  make([]Pixel, rows*cols),
	}
}

// Rows returns the number of pixel rows
func (f *FrameBuffer) Rows() int { return f.rows }

// Cols returns the number of pixel columns
func (f *FrameBuffer) Cols() int { return f.cols }

// Cursor returns the source column shown at the left edge on the next advance
func (f *FrameBuffer) Cursor() int { return f.cursor }

// At returns the pixel at row, col
func (f *FrameBuffer) At(row, col int) Pixel {
	return f.pix[row*f.cols+col]
}

// SetPixel stores a pixel, rejecting coordinates off the panel
func (f *FrameBuffer) SetPixel(row, col int, p Pixel) error {
	if row < 0 || row >= f.rows || col < 0 || col >= f.cols {
		return fmt.Errorf("pixel coordinates out of bounds: (%d, %d)", row, col)
	}
	f.pix[row*f.cols+col] = p
	return nil
}

// Fill sets every pixel to p
func (f *FrameBuffer) Fill(p Pixel) {
	for i := range f.pix {
		f.pix[i] = p
	}
}

// Clear blacks out the frame
func (f *FrameBuffer) Clear() {
	f.Fill(Black)
}

// Load copies the top-left corner of src into the frame without scrolling.
func (f *FrameBuffer) Load(src *Image) {
	for row := 0; row < f.rows; row++ {
		copy(f.pix[row*f.cols:(row+1)*f.cols], src.Pix[row*src.Width:row*src.Width+f.cols])
	}
}

// AdvanceFromSource shows the window of src starting at the scroll cursor,
// wrapping horizontally, then moves the cursor one column right. Rows never
// scroll. src must pass Fits for this frame's size.
func (f *FrameBuffer) AdvanceFromSource(src *Image) {
	if f.cursor >= src.Width {
		f.cursor = 0
	}
	for row := 0; row < f.rows; row++ {
		line := src.Pix[row*src.Width : (row+1)*src.Width]
		for col := 0; col < f.cols; col++ {
			f.pix[row*f.cols+col] = line[(f.cursor+col)%src.Width]
		}
	}
	f.cursor++
	if f.cursor >= src.Width {
		f.cursor = 0
	}
}

// Snapshot copies the frame into dst, growing it as needed, and returns it.
func (f *FrameBuffer) Snapshot(dst []Pixel) []Pixel {
	if cap(dst) < len(f.pix) {
		dst = make([]Pixel, len(f.pix))
	}
	dst = dst[:len(f.pix)]
	copy(dst, f.pix)
	return dst
}

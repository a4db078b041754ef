package models

// Image is a single 2D slice of a microstructure volume. Pixels are stored
// row-major with their channels interleaved, so the value of channel c at
// (x, y) lives at Pix[(y*Width+x)*Channels+c].
type Image struct {
	// Width and Height are the slice dimensions in pixels
	Width  int
	Height int

	// Channels is the number of values per pixel (1 for grey, 3 for RGB)
	Channels int

	// Pix holds the raw pixel values
	Pix []uint16
}

// NewImage allocates a zeroed image of the given shape.
func NewImage(width, height, channels int) Image {
	return Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint16, width*height*channels),
	}
}

// Pixel returns the colour tuple at (x, y). The returned slice aliases Pix.
func (m Image) Pixel(x, y int) []uint16 {
	off := (y*m.Width + x) * m.Channels
	return m.Pix[off : off+m.Channels]
}

// SetPixel copies a colour tuple into (x, y).
func (m Image) SetPixel(x, y int, c ...uint16) {
	copy(m.Pixel(x, y), c)
}

// Len returns the number of pixels in the slice.
func (m Image) Len() int {
	return m.Width * m.Height
}

package volumeio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"grainmetrics/internal/models"
)

// rasterReader wraps a 2D image decoder.
type rasterReader struct {
	decode func(io.Reader) (image.Image, error)
}

var (
	pngReader  = rasterReader{decode: png.Decode}
	jpegReader = rasterReader{decode: jpeg.Decode}
)

// ReadSlice implements Reader.
func (r rasterReader) ReadSlice(in io.Reader) (models.Image, error) {
	img, err := r.decode(in)
	if err != nil {
		return models.Image{}, err
	}
	return FromImage(img), nil
}

// ReadVolume implements Reader.
func (r rasterReader) ReadVolume(in io.Reader) (models.Volume, error) {
	img, err := r.ReadSlice(in)
	if err != nil {
		return models.Volume{}, err
	}
	return models.VolumeFromSlices([]models.Image{img})
}

// FromImage converts a decoded image to a pixel grid. Grey images keep one
// channel, colour images keep three, and an alpha channel is kept only when
// the image is not opaque. 8-bit sources keep their 0-255 range.
func FromImage(img image.Image) models.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		out := models.NewImage(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*w+x] = uint16(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return out
	case *image.Gray16:
		out := models.NewImage(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*w+x] = src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			}
		}
		return out
	}

	wide := false
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		wide = true
	}
	channels := 3
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		channels = 4
	}

	out := models.NewImage(w, h, channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			px := []uint16{c.R, c.G, c.B, c.A}
			if !wide {
				for i := range px {
					px[i] >>= 8
				}
			}
			out.SetPixel(x, y, px[:channels]...)
		}
	}
	return out
}

// ToImage converts a pixel grid to an image.Image suitable for encoding.
// Values above 255 select a 16-bit image type.
func ToImage(m models.Image) (image.Image, error) {
	wide := false
	for _, p := range m.Pix {
		if p > 255 {
			wide = true
			break
		}
	}
	rect := image.Rect(0, 0, m.Width, m.Height)

	switch m.Channels {
	case 1:
		if wide {
			img := image.NewGray16(rect)
			for y := 0; y < m.Height; y++ {
				for x := 0; x < m.Width; x++ {
					img.SetGray16(x, y, color.Gray16{Y: m.Pixel(x, y)[0]})
				}
			}
			return img, nil
		}
		img := image.NewGray(rect)
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				img.SetGray(x, y, color.Gray{Y: uint8(m.Pixel(x, y)[0])})
			}
		}
		return img, nil
	case 3, 4:
		if wide {
			img := image.NewNRGBA64(rect)
			for y := 0; y < m.Height; y++ {
				for x := 0; x < m.Width; x++ {
					p := m.Pixel(x, y)
					c := color.NRGBA64{R: p[0], G: p[1], B: p[2], A: 0xffff}
					if m.Channels == 4 {
						c.A = p[3]
					}
					img.SetNRGBA64(x, y, c)
				}
			}
			return img, nil
		}
		img := image.NewNRGBA(rect)
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				p := m.Pixel(x, y)
				c := color.NRGBA{R: uint8(p[0]), G: uint8(p[1]), B: uint8(p[2]), A: 0xff}
				if m.Channels == 4 {
					c.A = uint8(p[3])
				}
				img.SetNRGBA(x, y, c)
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %d channels as an image", ErrUnsupportedFormat, m.Channels)
	}
}

// WritePNG encodes a pixel grid as PNG.
func WritePNG(w io.Writer, m models.Image) error {
	img, err := ToImage(m)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

package grain

import "grainmetrics/internal/models"

var (
	red   = []uint16{255, 0, 0}
	green = []uint16{0, 255, 0}
	blue  = []uint16{0, 0, 255}
)

// rgbImage builds a 3-channel image from rows of colours.
func rgbImage(rows ...[][]uint16) models.Image {
	img := models.NewImage(len(rows[0]), len(rows), 3)
	for y, row := range rows {
		for x, c := range row {
			img.SetPixel(x, y, c...)
		}
	}
	return img
}

// repeat returns n copies of c.
func repeat(c []uint16, n int) [][]uint16 {
	out := make([][]uint16, n)
	for i := range out {
		out[i] = c
	}
	return out
}

func concat(parts ...[][]uint16) [][]uint16 {
	var out [][]uint16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// redGreen is the 4x4 slice split into a left red and right green block.
func redGreen() models.Image {
	row := concat(repeat(red, 2), repeat(green, 2))
	return rgbImage(row, row, row, row)
}

// redBlueGreen separates red and green with a one pixel wide blue strip.
func redBlueGreen() models.Image {
	row := concat(repeat(red, 2), repeat(blue, 1), repeat(green, 1))
	return rgbImage(row, row, row, row)
}

package models

import (
	"fmt"
	"math"
)

// Axis names one of the three volume axes. Slicing along an axis fixes the
// coordinate on that axis.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

// Volume is a 3D voxel grid such as a generated microstructure.
type Volume struct {
	// Data holds voxel values in z, y, x, channel order
	Data []float64

	// Width, Height and Depth are the voxel counts along x, y and z
	Width  int
	Height int
	Depth  int

	// Channels is the number of values per voxel
	Channels int

	// Spacing is the physical voxel size along each axis
	Spacing struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zeroed volume with unit spacing.
func NewVolume(width, height, depth, channels int) Volume {
	v := Volume{
		Data:     make([]float64, width*height*depth*channels),
		Width:    width,
		Height:   height,
		Depth:    depth,
		Channels: channels,
	}
	v.Spacing.X, v.Spacing.Y, v.Spacing.Z = 1, 1, 1
	return v
}

// Index returns the offset of channel 0 of voxel (x, y, z) in Data.
func (v Volume) Index(x, y, z int) int {
	return ((z*v.Height+y)*v.Width + x) * v.Channels
}

// Validate checks that the dimensions agree with the data length.
func (v Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 || v.Channels <= 0 {
		return fmt.Errorf("volume dimensions must be positive, got %dx%dx%d with %d channels",
			v.Width, v.Height, v.Depth, v.Channels)
	}
	if want := v.Width * v.Height * v.Depth * v.Channels; len(v.Data) != want {
		return fmt.Errorf("volume data has %d values, expected %d", len(v.Data), want)
	}
	return nil
}

// Slice returns the z-th XY plane as an Image, clamping values to the
// uint16 range.
func (v Volume) Slice(z int) Image {
	img := NewImage(v.Width, v.Height, v.Channels)
	start := v.Index(0, 0, z)
	for i := range img.Pix {
		img.Pix[i] = ClampUint16(v.Data[start+i])
	}
	return img
}

// Slices returns every XY plane in depth order.
func (v Volume) Slices() []Image {
	out := make([]Image, v.Depth)
	for z := range out {
		out[z] = v.Slice(z)
	}
	return out
}

// VolumeFromSlices stacks equally sized images along z.
func VolumeFromSlices(slices []Image) (Volume, error) {
	if len(slices) == 0 {
		return Volume{}, fmt.Errorf("no slices to stack")
	}
	first := slices[0]
	vol := NewVolume(first.Width, first.Height, len(slices), first.Channels)
	for z, s := range slices {
		if s.Width != first.Width || s.Height != first.Height || s.Channels != first.Channels {
			return Volume{}, fmt.Errorf("slice %d is %dx%dx%d, expected %dx%dx%d",
				z, s.Width, s.Height, s.Channels, first.Width, first.Height, first.Channels)
		}
		start := vol.Index(0, 0, z)
		for i, p := range s.Pix {
			vol.Data[start+i] = float64(p)
		}
	}
	return vol, nil
}

// ClampUint16 rounds v to the nearest integer inside [0, 65535].
func ClampUint16(v float64) uint16 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 65535:
		return 65535
	default:
		return uint16(v + 0.5)
	}
}

// Package slicing cuts evenly spaced 2D slices out of a 3D volume and saves
// them as PNG stacks for the grain metrics.
//
// Axis names follow models.Axis: origin_anisotropic_slices_x holds planes of
// constant x (height by depth). Tools that named directories by array axis
// instead stored z planes under the _x suffix and x planes under _z.
package slicing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"grainmetrics/internal/models"
	"grainmetrics/pkg/volumeio"
)

var (
	// ErrInvalidAxis reports an axis other than x, y or z.
	ErrInvalidAxis = errors.New("slicing: invalid axis")
	// ErrSinglePlane reports a volume of depth 1, which is already a slice.
	ErrSinglePlane = errors.New("slicing: volume has a single plane")
	// ErrTooManySlices reports more slices requested than planes exist.
	ErrTooManySlices = errors.New("slicing: more slices than planes")
)

// Output directory names, relative to the output root.
const (
	IsotropicDir       = "origin_isotropic_slices"
	AnisotropicDirBase = "origin_anisotropic_slices_"
)

// Slicer extracts planes from a volume.
type Slicer struct {
	vol models.Volume
}

// NewSlicer wraps a volume after checking its shape.
func NewSlicer(vol models.Volume) (*Slicer, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	if vol.Depth < 2 {
		return nil, fmt.Errorf("%w: %dx%d", ErrSinglePlane, vol.Width, vol.Height)
	}
	return &Slicer{vol: vol}, nil
}

// Size returns the number of planes along axis.
func (s *Slicer) Size(axis models.Axis) (int, error) {
	switch axis {
	case models.AxisX:
		return s.vol.Width, nil
	case models.AxisY:
		return s.vol.Height, nil
	case models.AxisZ:
		return s.vol.Depth, nil
	default:
		return 0, fmt.Errorf("%w: %q (must be x, y, or z)", ErrInvalidAxis, axis)
	}
}

// Extract returns the plane at position along axis. A z plane is
// Width x Height; y and x planes have one row per depth step, with Width
// and Height columns respectively.
func (s *Slicer) Extract(axis models.Axis, position int) (models.Image, error) {
	size, err := s.Size(axis)
	if err != nil {
		return models.Image{}, err
	}
	if position < 0 || position >= size {
		return models.Image{}, fmt.Errorf("position %d outside [0, %d) along %s", position, size, axis)
	}

	v := s.vol
	var img models.Image
	switch axis {
	case models.AxisZ:
		return v.Slice(position), nil
	case models.AxisY:
		img = models.NewImage(v.Width, v.Depth, v.Channels)
		for z := 0; z < v.Depth; z++ {
			for x := 0; x < v.Width; x++ {
				copyVoxel(img, x, z, v, v.Index(x, position, z))
			}
		}
	case models.AxisX:
		img = models.NewImage(v.Height, v.Depth, v.Channels)
		for z := 0; z < v.Depth; z++ {
			for y := 0; y < v.Height; y++ {
				copyVoxel(img, y, z, v, v.Index(position, y, z))
			}
		}
	}
	return img, nil
}

func copyVoxel(img models.Image, x, y int, v models.Volume, src int) {
	px := img.Pixel(x, y)
	for c := range px {
		px[c] = models.ClampUint16(v.Data[src+c])
	}
}

// Indices returns n distinct positions spread evenly over [0, size-1],
// truncated to integers. n may not exceed size.
func Indices(n, size int) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("slice count must be positive, got %d", n)
	}
	if size <= 0 {
		return nil, fmt.Errorf("axis size must be positive, got %d", size)
	}
	if n > size {
		return nil, fmt.Errorf("%w: %d requested, axis has %d", ErrTooManySlices, n, size)
	}
	if n == 1 {
		return []int{0}, nil
	}
	pos := floats.Span(make([]float64, n), 0, float64(size-1))
	out := make([]int, n)
	for i, p := range pos {
		out[i] = int(p)
	}
	return out, nil
}

// SaveStack writes n evenly spaced planes along axis to dir as
// slice_000.png, slice_001.png, ... and returns the written paths.
func (s *Slicer) SaveStack(axis models.Axis, n int, dir string) ([]string, error) {
	size, err := s.Size(axis)
	if err != nil {
		return nil, err
	}
	positions, err := Indices(n, size)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(positions))
	for i, pos := range positions {
		img, err := s.Extract(axis, pos)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("slice_%03d.png", i))
		if err := volumeio.WritePNGFile(path, img); err != nil {
			return nil, fmt.Errorf("failed to save %s slice %d: %w", axis, pos, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// SaveIsotropic writes n z planes under outputDir/origin_isotropic_slices.
// One direction is enough when the microstructure is statistically the
// same along every axis.
func (s *Slicer) SaveIsotropic(outputDir string, n int) ([]string, error) {
	return s.SaveStack(models.AxisZ, n, filepath.Join(outputDir, IsotropicDir))
}

// SaveAnisotropic writes n planes along each axis under
// outputDir/origin_anisotropic_slices_{x,y,z}.
func (s *Slicer) SaveAnisotropic(outputDir string, n int) (map[models.Axis][]string, error) {
	out := make(map[models.Axis][]string, 3)
	for _, axis := range []models.Axis{models.AxisX, models.AxisY, models.AxisZ} {
		paths, err := s.SaveStack(axis, n, filepath.Join(outputDir, AnisotropicDirBase+string(axis)))
		if err != nil {
			return nil, err
		}
		out[axis] = paths
	}
	return out, nil
}

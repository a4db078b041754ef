package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeFromSlicesRoundTrip(t *testing.T) {
	a := NewImage(2, 2, 3)
	b := NewImage(2, 2, 3)
	a.SetPixel(1, 0, 255, 0, 0)
	b.SetPixel(0, 1, 0, 0, 1000)

	vol, err := VolumeFromSlices([]Image{a, b})
	require.NoError(t, err)
	require.NoError(t, vol.Validate())
	assert.Equal(t, 2, vol.Depth)
	assert.Equal(t, 255.0, vol.Data[vol.Index(1, 0, 0)])
	assert.Equal(t, 1000.0, vol.Data[vol.Index(0, 1, 1)+2])

	slices := vol.Slices()
	require.Len(t, slices, 2)
	assert.Equal(t, a, slices[0])
	assert.Equal(t, b, slices[1])
}

func TestVolumeFromSlicesShapeMismatch(t *testing.T) {
	_, err := VolumeFromSlices([]Image{NewImage(2, 2, 3), NewImage(2, 3, 3)})
	assert.ErrorContains(t, err, "slice 1")

	_, err = VolumeFromSlices(nil)
	assert.Error(t, err)
}

func TestVolumeValidate(t *testing.T) {
	v := NewVolume(2, 2, 2, 1)
	require.NoError(t, v.Validate())

	v.Data = v.Data[:7]
	assert.Error(t, v.Validate())
	assert.Error(t, NewVolume(0, 2, 2, 1).Validate())
}

func TestClampUint16(t *testing.T) {
	cases := []struct {
		in   float64
		want uint16
	}{
		{-3, 0},
		{0.4, 0},
		{0.5, 1},
		{254.6, 255},
		{70000, 65535},
		{math.NaN(), 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClampUint16(c.in), "ClampUint16(%v)", c.in)
	}
}

func TestImagePixelAliases(t *testing.T) {
	img := NewImage(3, 2, 2)
	img.SetPixel(2, 1, 7, 9)
	assert.Equal(t, []uint16{7, 9}, img.Pixel(2, 1))
	assert.Equal(t, uint16(7), img.Pix[(1*3+2)*2])

	img.Pixel(0, 0)[1] = 4
	assert.Equal(t, uint16(4), img.Pix[1])
}

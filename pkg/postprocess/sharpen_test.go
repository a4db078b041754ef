package postprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grainmetrics/internal/models"
)

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(1)
	require.Len(t, k, 9)

	sum := 0.0
	for i, w := range k {
		sum += w
		assert.InDelta(t, w, k[len(k)-1-i], 1e-15)
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, k[4], k[3])
}

func TestReflect(t *testing.T) {
	cases := []struct{ i, n, want int }{
		{-1, 4, 0}, {-2, 4, 1}, {4, 4, 3}, {5, 4, 2}, {2, 4, 2}, {-5, 4, 3}, {9, 4, 1}, {3, 1, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, reflect(c.i, c.n), "reflect(%d, %d)", c.i, c.n)
	}
}

func TestSharpenConstantVolume(t *testing.T) {
	vol := models.NewVolume(5, 4, 3, 3)
	for i := range vol.Data {
		vol.Data[i] = float64(i % 3 * 50)
	}

	out, err := Sharpen(vol, Params{Alpha: 1.5, Sigma: 1, Workers: 3})
	require.NoError(t, err)
	for i := range vol.Data {
		assert.InDelta(t, vol.Data[i], out.Data[i], 1e-9)
	}
}

func TestSharpenIncreasesContrast(t *testing.T) {
	vol := models.NewVolume(8, 1, 1, 1)
	for x := 4; x < 8; x++ {
		vol.Data[x] = 100
	}

	out, err := Sharpen(vol, Params{Alpha: 1, Sigma: 1})
	require.NoError(t, err)

	// Overshoot on both sides of the step, mass preserved overall.
	assert.Less(t, out.Data[3], 0.0)
	assert.Greater(t, out.Data[4], 100.0)
	sumIn, sumOut := 0.0, 0.0
	for i := range vol.Data {
		sumIn += vol.Data[i]
		sumOut += out.Data[i]
	}
	assert.InDelta(t, sumIn, sumOut, 1e-9)
}

func TestGaussianBlurRejectsSigma(t *testing.T) {
	vol := models.NewVolume(2, 2, 2, 1)
	_, err := GaussianBlur(vol, 0, 1)
	assert.Error(t, err)
	_, err = GaussianBlur(vol, math.NaN(), 1)
	assert.Error(t, err)
}

func TestToGray(t *testing.T) {
	vol := models.NewVolume(2, 1, 1, 3)
	copy(vol.Data, []float64{255, 0, 0, 10, 10, 10})

	grey, err := ToGray(vol)
	require.NoError(t, err)
	assert.Equal(t, 1, grey.Channels)
	assert.InDelta(t, 255*0.2989, grey.Data[0], 1e-9)
	assert.InDelta(t, 10*(0.2989+0.5870+0.1140), grey.Data[1], 1e-9)

	same, err := ToGray(grey)
	require.NoError(t, err)
	assert.Equal(t, grey.Data, same.Data)

	_, err = ToGray(models.NewVolume(1, 1, 1, 2))
	assert.Error(t, err)
}

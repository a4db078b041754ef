// Package postprocess applies volume filters to generated microstructures
// before export.
package postprocess

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"grainmetrics/internal/models"
)

// Params controls Sharpen.
type Params struct {
	// Alpha scales the detail added back: v + Alpha*(v - blur(v))
	Alpha float64

	// Sigma is the Gaussian standard deviation in voxels
	Sigma float64

	// Workers bounds the goroutines per blur pass (default: all CPUs)
	Workers int
}

// truncate is the kernel half-width in standard deviations.
const truncate = 4.0

// Sharpen applies an unsharp mask to every channel of vol. The blur runs
// along x, y and z only; channels are never mixed.
func Sharpen(vol models.Volume, p Params) (models.Volume, error) {
	blurred, err := GaussianBlur(vol, p.Sigma, p.Workers)
	if err != nil {
		return models.Volume{}, err
	}
	out := blurred
	out.Data = make([]float64, len(vol.Data))
	for i, v := range vol.Data {
		out.Data[i] = v + p.Alpha*(v-blurred.Data[i])
	}
	return out, nil
}

// GaussianBlur smooths vol with a separable Gaussian of standard deviation
// sigma, reflecting at the borders.
func GaussianBlur(vol models.Volume, sigma float64, workers int) (models.Volume, error) {
	if err := vol.Validate(); err != nil {
		return models.Volume{}, err
	}
	if sigma <= 0 || math.IsNaN(sigma) {
		return models.Volume{}, fmt.Errorf("sigma must be positive, got %g", sigma)
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	kernel := gaussianKernel(sigma)
	src := make([]float64, len(vol.Data))
	copy(src, vol.Data)
	dst := make([]float64, len(src))

	// Strides of x, y and z in Data.
	c := vol.Channels
	passes := []struct{ n, stride int }{
		{vol.Width, c},
		{vol.Height, vol.Width * c},
		{vol.Depth, vol.Width * vol.Height * c},
	}
	for _, pass := range passes {
		convolveAxis(src, dst, vol, pass.n, pass.stride, kernel, workers)
		src, dst = dst, src
	}

	out := vol
	out.Data = src
	return out, nil
}

// convolveAxis filters every line of n samples spaced stride apart. Lines
// are distributed over workers by their starting offset.
func convolveAxis(src, dst []float64, vol models.Volume, n, stride int, kernel []float64, workers int) {
	var starts []int
	total := len(src)
	for i := 0; i < total; i++ {
		// i starts a line when its coordinate along this axis is zero.
		if (i/stride)%n == 0 {
			starts = append(starts, i)
		}
	}

	radius := len(kernel) / 2
	perWorker := (len(starts) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * perWorker
		if lo >= len(starts) {
			break
		}
		hi := lo + perWorker
		if hi > len(starts) {
			hi = len(starts)
		}

		wg.Add(1)
		go func(lines []int) {
			defer wg.Done()
			for _, start := range lines {
				for i := 0; i < n; i++ {
					sum := 0.0
					for k, weight := range kernel {
						j := reflect(i+k-radius, n)
						sum += weight * src[start+j*stride]
					}
					dst[start+i*stride] = sum
				}
			}
		}(starts[lo:hi])
	}
	wg.Wait()
}

// gaussianKernel returns normalised weights over [-r, r] with
// r = int(truncate*sigma + 0.5).
func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// reflect maps an out-of-range index back into [0, n) by mirroring about
// the edges, repeating the edge sample (d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// Luma weights used when collapsing RGB to grey.
var grayWeights = [3]float64{0.2989, 0.5870, 0.1140}

// ToGray collapses an RGB or RGBA volume to one channel. Single channel
// volumes are returned as a copy.
func ToGray(vol models.Volume) (models.Volume, error) {
	if err := vol.Validate(); err != nil {
		return models.Volume{}, err
	}
	out := vol
	switch vol.Channels {
	case 1:
		out.Data = append([]float64(nil), vol.Data...)
		return out, nil
	case 3, 4:
	default:
		return models.Volume{}, fmt.Errorf("cannot convert %d channels to grey", vol.Channels)
	}

	voxels := vol.Width * vol.Height * vol.Depth
	out.Channels = 1
	out.Data = make([]float64, voxels)
	for i := 0; i < voxels; i++ {
		px := vol.Data[i*vol.Channels:]
		out.Data[i] = grayWeights[0]*px[0] + grayWeights[1]*px[1] + grayWeights[2]*px[2]
	}
	return out, nil
}

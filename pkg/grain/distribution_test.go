package grain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grainmetrics/internal/models"
)

// fixedBuilder returns a canned adjacency per call, keyed by the first label
// of the grid.
type fixedBuilder struct {
	byFirst map[ID]Adjacency
	calls   atomic.Int32
}

func (b *fixedBuilder) Build(_ context.Context, grid Grid) (Adjacency, error) {
	b.calls.Add(1)
	return b.byFirst[grid.IDs[0]], nil
}

func greyImage(w, h int, v uint16) models.Image {
	img := models.NewImage(w, h, 1)
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestNeighborDistributionPoolsInSliceOrder(t *testing.T) {
	builder := &fixedBuilder{byFirst: map[ID]Adjacency{
		1: {10: set(11), 11: set(10)},
		2: {20: set(21, 22)},
	}}
	agg := &Aggregator{Builder: builder, Workers: 2}

	got, err := agg.NeighborDistribution(context.Background(), []models.Image{
		greyImage(2, 2, 1),
		greyImage(2, 2, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2}, got)
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestNeighborDistributionRealSlices(t *testing.T) {
	agg := &Aggregator{Workers: 3}
	slices := []models.Image{redGreen(), redBlueGreen(), redGreen()}

	got, err := agg.NeighborDistribution(context.Background(), slices)
	require.NoError(t, err)

	// Grain order within a slice is ascending ID: blue < green < red.
	assert.Equal(t, []int{1, 1, 2, 1, 1, 1, 1}, got)

	agg.Builder = DilationBuilder{Workers: 2}
	again, err := agg.NeighborDistribution(context.Background(), slices)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestEmptyVolume(t *testing.T) {
	agg := &Aggregator{}

	counts, err := agg.NeighborDistribution(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, counts)

	areas, err := agg.GrainAreas(context.Background(), []models.Image{})
	require.NoError(t, err)
	assert.Empty(t, areas)

	assert.Empty(t, GrainSizes(nil))
}

func TestNeighborDistributionReportsSlice(t *testing.T) {
	agg := &Aggregator{Workers: 2}
	bad := models.Image{Width: 2, Height: 2, Channels: 3, Pix: make([]uint16, 3)}

	_, err := agg.NeighborDistribution(context.Background(), []models.Image{redGreen(), bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidShape))
	assert.Contains(t, err.Error(), "slice 1")
}

func TestNeighborDistributionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := &Aggregator{}
	_, err := agg.NeighborDistribution(ctx, []models.Image{redGreen(), redGreen()})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestGrainSizes(t *testing.T) {
	a := models.Image{Width: 2, Height: 1, Channels: 1, Pix: []uint16{3, 4}}
	b := models.Image{Width: 1, Height: 1, Channels: 3, Pix: []uint16{5, 6, 7}}
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, GrainSizes([]models.Image{a, b}))
}

func TestGrainAreas(t *testing.T) {
	agg := &Aggregator{}
	got, err := agg.GrainAreas(context.Background(), []models.Image{redBlueGreen(), redGreen()})
	require.NoError(t, err)
	// blue, green, red then green, red
	assert.Equal(t, []int{4, 4, 8, 8, 8}, got)

	// Component labelling splits the two red regions apart.
	row := concat(repeat(red, 1), repeat(blue, 1), repeat(red, 2))
	agg = &Aggregator{Labeler: ComponentLabeler{}}
	got, err = agg.GrainAreas(context.Background(), []models.Image{rgbImage(row, row)})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 4}, got)
}

func TestAnalyze(t *testing.T) {
	agg := &Aggregator{Workers: 2}
	slices := []models.Image{redGreen(), redBlueGreen()}

	d, err := agg.Analyze(context.Background(), slices)
	require.NoError(t, err)
	// green, red then blue, green, red
	assert.Equal(t, []int{1, 1, 2, 1, 1}, d.Neighbors)
	assert.Equal(t, []int{8, 8, 4, 4, 8}, d.Areas)
	// red-green, then red-blue and blue-green
	assert.Equal(t, 3, d.Contacts)

	neighbors, err := agg.NeighborDistribution(context.Background(), slices)
	require.NoError(t, err)
	assert.Equal(t, neighbors, d.Neighbors)

	empty, err := agg.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Neighbors)
	assert.Zero(t, empty.Contacts)
}

func TestAggregatorConcurrentUseLeavesFieldsUnset(t *testing.T) {
	agg := &Aggregator{}
	slices := []models.Image{redGreen(), redBlueGreen(), redGreen()}

	var wg sync.WaitGroup
	results := make([][]int, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = agg.NeighborDistribution(context.Background(), slices)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []int{1, 1, 2, 1, 1, 1, 1}, results[i])
	}
	assert.Zero(t, agg.Workers)
	assert.Nil(t, agg.Labeler)
	assert.Nil(t, agg.Builder)
	assert.Nil(t, agg.Logger)
}

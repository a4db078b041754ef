package grain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"grainmetrics/internal/models"
)

// Aggregator turns the slices of one volume into pooled per-grain
// statistics. Slices are labelled independently: a grain crossing several
// slices is counted once per slice.
type Aggregator struct {
	// Labeler defaults to ColorLabeler
	Labeler Labeler

	// Builder defaults to a Conn4 ScanBuilder
	Builder Builder

	// Workers bounds how many slices are processed concurrently (default 1)
	Workers int

	Logger *slog.Logger
}

// withDefaults returns a copy of a with unset fields filled in. The
// receiver is never written.
func (a *Aggregator) withDefaults() Aggregator {
	cfg := *a
	if cfg.Labeler == nil {
		cfg.Labeler = ColorLabeler{}
	}
	if cfg.Builder == nil {
		cfg.Builder = ScanBuilder{Connectivity: Conn4}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Distribution holds the per-grain measures of one volume, pooled over its
// slices. Neighbors and Areas are aligned: entry i of each describes the
// same grain.
type Distribution struct {
	Neighbors []int
	Areas     []int

	// Contacts is the number of distinct touching grain pairs, summed over
	// slices: the edge count of each slice's region adjacency graph.
	Contacts int
}

// sliceResult is the Distribution of a single slice.
type sliceResult struct {
	neighbors []int
	areas     []int
	contacts  int
}

// Analyze labels every slice, builds its adjacency, and pools neighbour
// counts, grain areas and contacts in slice order and, within a slice,
// ascending grain order. An empty volume yields an empty Distribution.
func (a *Aggregator) Analyze(ctx context.Context, slices []models.Image) (Distribution, error) {
	cfg := a.withDefaults()
	perSlice, err := forEachSlice(ctx, cfg, slices, func(ctx context.Context, img models.Image) (sliceResult, error) {
		grid, err := cfg.Labeler.Label(img)
		if err != nil {
			return sliceResult{}, err
		}
		adj, err := cfg.Builder.Build(ctx, grid)
		if err != nil {
			return sliceResult{}, err
		}
		return sliceResult{
			neighbors: adj.Counts(),
			areas:     areas(grid),
			contacts:  adj.Graph().Edges().Len(),
		}, nil
	})
	if err != nil {
		return Distribution{}, err
	}

	var d Distribution
	neighbors := make([][]int, len(perSlice))
	grainAreas := make([][]int, len(perSlice))
	for i, r := range perSlice {
		neighbors[i], grainAreas[i] = r.neighbors, r.areas
		d.Contacts += r.contacts
	}
	d.Neighbors = flatten(neighbors)
	d.Areas = flatten(grainAreas)
	return d, nil
}

// NeighborDistribution returns the neighbour count of every grain of every
// slice, in slice order and, within a slice, ascending grain order. An empty
// volume yields an empty distribution.
func (a *Aggregator) NeighborDistribution(ctx context.Context, slices []models.Image) ([]int, error) {
	cfg := a.withDefaults()
	perSlice, err := forEachSlice(ctx, cfg, slices, func(ctx context.Context, img models.Image) ([]int, error) {
		grid, err := cfg.Labeler.Label(img)
		if err != nil {
			return nil, err
		}
		adj, err := cfg.Builder.Build(ctx, grid)
		if err != nil {
			return nil, err
		}
		return adj.Counts(), nil
	})
	if err != nil {
		return nil, err
	}
	return flatten(perSlice), nil
}

// GrainAreas returns the pixel count of every grain of every slice, in the
// same order as NeighborDistribution.
func (a *Aggregator) GrainAreas(ctx context.Context, slices []models.Image) ([]int, error) {
	cfg := a.withDefaults()
	perSlice, err := forEachSlice(ctx, cfg, slices, func(_ context.Context, img models.Image) ([]int, error) {
		grid, err := cfg.Labeler.Label(img)
		if err != nil {
			return nil, err
		}
		return areas(grid), nil
	})
	if err != nil {
		return nil, err
	}
	return flatten(perSlice), nil
}

// areas counts the pixels of each grain in ascending grain order.
func areas(grid Grid) []int {
	count := make(map[ID]int)
	for _, id := range grid.IDs {
		count[id]++
	}
	ids := Distinct(grid)
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = count[id]
	}
	return out
}

// forEachSlice runs fn over every slice on at most cfg.Workers goroutines
// and returns the results in slice order.
func forEachSlice[T any](ctx context.Context, cfg Aggregator, slices []models.Image,
	fn func(context.Context, models.Image) (T, error)) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]T, len(slices))
	var (
		firstErr error
		once     sync.Once
	)
	sem := make(chan struct{}, cfg.Workers)
	var wg sync.WaitGroup

dispatch:
	for i := range slices {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := fn(ctx, slices[i])
			if err != nil {
				once.Do(func() {
					firstErr = fmt.Errorf("slice %d: %w", i, err)
					cancel()
				})
				return
			}
			results[i] = res
			cfg.Logger.Debug("slice processed", "slice", i)
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func flatten(perSlice [][]int) []int {
	n := 0
	for _, s := range perSlice {
		n += len(s)
	}
	out := make([]int, 0, n)
	for _, s := range perSlice {
		out = append(out, s...)
	}
	return out
}

// GrainSizes returns every pixel value of every slice, channels included,
// flattened in slice order. This is the intensity distribution compared as
// "grain size" between volumes.
func GrainSizes(slices []models.Image) []float64 {
	n := 0
	for _, s := range slices {
		n += len(s.Pix)
	}
	out := make([]float64, 0, n)
	for _, s := range slices {
		for _, p := range s.Pix {
			out = append(out, float64(p))
		}
	}
	return out
}

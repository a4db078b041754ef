package grain

import (
	"context"
	"fmt"
	"sync"
)

// DilationBuilder finds neighbours by dilating each grain's occupancy mask
// one step and testing it against every other grain's mask. Cost is
// O(K²·H·W) for K grains, so set MaxGrains when slices may be finely
// segmented.
type DilationBuilder struct {
	// Connectivity selects the structuring element: a cross for Conn4,
	// a 3x3 square for Conn8.
	Connectivity Connectivity

	// Workers bounds how many grains are dilated concurrently (default 1)
	Workers int

	// MaxGrains rejects slices with more distinct grains; 0 means no limit
	MaxGrains int
}

// Build implements Builder.
func (b DilationBuilder) Build(ctx context.Context, grid Grid) (Adjacency, error) {
	if err := validateGrid(grid); err != nil {
		return nil, err
	}
	ids := Distinct(grid)
	if err := checkGrainLimit(len(ids), b.MaxGrains); err != nil {
		return nil, err
	}

	masks := make(map[ID][]bool, len(ids))
	for _, id := range ids {
		masks[id] = make([]bool, len(grid.IDs))
	}
	for i, id := range grid.IDs {
		masks[id][i] = true
	}

	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	offsets := b.Connectivity.offsets()
	found := make([][]ID, len(ids))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, id := range ids {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, id ID) {
			defer wg.Done()
			defer func() { <-sem }()

			dilated := dilate(masks[id], grid.Width, grid.Height, offsets)
			for _, other := range ids {
				if ctx.Err() != nil {
					return
				}
				if other != id && intersects(dilated, masks[other]) {
					found[i] = append(found[i], other)
				}
			}
		}(i, id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	adj := newAdjacency(ids)
	for i, id := range ids {
		for _, other := range found[i] {
			adj[id][other] = struct{}{}
		}
	}
	// Dilation-intersection is symmetric for a symmetric structuring
	// element; this keeps the guarantee explicit.
	adj.Symmetrize()
	return adj, nil
}

// dilate grows mask by one step: a cell is set if it or any neighbour
// given by offsets is set.
func dilate(mask []bool, w, h int, offsets [][2]int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !mask[idx] {
				continue
			}
			out[idx] = true
			for _, d := range offsets {
				nx, ny := x+d[0], y+d[1]
				if nx >= 0 && nx < w && ny >= 0 && ny < h {
					out[ny*w+nx] = true
				}
			}
		}
	}
	return out
}

func intersects(a, b []bool) bool {
	for i := range a {
		if a[i] && b[i] {
			return true
		}
	}
	return false
}

func validateGrid(grid Grid) error {
	if grid.Width <= 0 || grid.Height <= 0 || len(grid.IDs) != grid.Width*grid.Height {
		return fmt.Errorf("%w: %d labels for a %dx%d grid", ErrInvalidShape, len(grid.IDs), grid.Width, grid.Height)
	}
	return nil
}

func checkGrainLimit(n, limit int) error {
	if limit > 0 && n > limit {
		return fmt.Errorf("%w: %d distinct grains, limit is %d", ErrTooManyGrains, n, limit)
	}
	return nil
}

package grain

import "context"

// ScanBuilder finds neighbours in a single raster pass: every pixel is
// compared with its forward neighbours and differing labels are linked both
// ways. Cost is O(H·W) regardless of the number of grains.
type ScanBuilder struct {
	Connectivity Connectivity

	// MaxGrains rejects slices with more distinct grains; 0 means no limit
	MaxGrains int
}

// Build implements Builder.
func (b ScanBuilder) Build(ctx context.Context, grid Grid) (Adjacency, error) {
	if err := validateGrid(grid); err != nil {
		return nil, err
	}
	ids := Distinct(grid)
	if err := checkGrainLimit(len(ids), b.MaxGrains); err != nil {
		return nil, err
	}

	adj := newAdjacency(ids)
	w, h := grid.Width, grid.Height
	forward := b.Connectivity.forward()
	for y := 0; y < h; y++ {
		if y%64 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for x := 0; x < w; x++ {
			g := grid.IDs[y*w+x]
			for _, d := range forward {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= w || ny >= h {
					continue
				}
				if other := grid.IDs[ny*w+nx]; other != g {
					adj.link(g, other)
				}
			}
		}
	}
	return adj, nil
}

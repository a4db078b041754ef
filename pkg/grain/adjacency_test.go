package grain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// builders returns every Builder under test for a connectivity.
func builders(c Connectivity) map[string]Builder {
	return map[string]Builder{
		"scan":             ScanBuilder{Connectivity: c},
		"dilation":         DilationBuilder{Connectivity: c},
		"dilation-workers": DilationBuilder{Connectivity: c, Workers: 4},
	}
}

func set(ids ...ID) map[ID]struct{} {
	s := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func TestTwoGrainAdjacency(t *testing.T) {
	grid, err := ColorLabeler{}.Label(redGreen())
	require.NoError(t, err)
	redID, greenID := ColorID(red), ColorID(green)

	want := Adjacency{
		redID:   set(greenID),
		greenID: set(redID),
	}
	for name, b := range builders(Conn4) {
		t.Run(name, func(t *testing.T) {
			got, err := b.Build(context.Background(), grid)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("adjacency mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSeparatedGrainsAreNotNeighbors(t *testing.T) {
	grid, err := ColorLabeler{}.Label(redBlueGreen())
	require.NoError(t, err)
	redID, greenID, blueID := ColorID(red), ColorID(green), ColorID(blue)

	want := Adjacency{
		redID:   set(blueID),
		greenID: set(blueID),
		blueID:  set(redID, greenID),
	}
	for name, b := range builders(Conn4) {
		t.Run(name, func(t *testing.T) {
			got, err := b.Build(context.Background(), grid)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("adjacency mismatch (-want +got):\n%s", diff)
			}
			assert.NotContains(t, got[redID], greenID)
			assert.NotContains(t, got[greenID], redID)
		})
	}
}

func TestSingleGrain(t *testing.T) {
	img := rgbImage(repeat(red, 3), repeat(red, 3))
	grid, err := ColorLabeler{}.Label(img)
	require.NoError(t, err)

	for name, b := range builders(Conn8) {
		t.Run(name, func(t *testing.T) {
			got, err := b.Build(context.Background(), grid)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Empty(t, got[ColorID(red)])
			assert.Equal(t, []int{0}, got.Counts())
		})
	}
}

func TestDiagonalContactDependsOnConnectivity(t *testing.T) {
	grid := Grid{Width: 2, Height: 2, IDs: []ID{1, 2, 3, 1}}

	for _, c := range []Connectivity{Conn4, Conn8} {
		for name, b := range builders(c) {
			t.Run(fmt.Sprintf("%s/conn%s", name, c), func(t *testing.T) {
				got, err := b.Build(context.Background(), grid)
				require.NoError(t, err)
				_, touching := got[2][3]
				assert.Equal(t, c == Conn8, touching)
				assert.Equal(t, set(2, 3), got[1])
			})
		}
	}
}

// randomGrid returns a grid with blocky regions so grains have several
// neighbours of varying size.
func randomGrid(rng *rand.Rand, w, h, labels int) Grid {
	grid := Grid{Width: w, Height: h, IDs: make([]ID, w*h)}
	for i := range grid.IDs {
		x, y := i%w, i/w
		if x > 0 && rng.Intn(3) > 0 {
			grid.IDs[i] = grid.IDs[i-1]
			continue
		}
		if y > 0 && rng.Intn(2) > 0 {
			grid.IDs[i] = grid.IDs[i-w]
			continue
		}
		grid.IDs[i] = ID(rng.Intn(labels)) * 1_000_003
	}
	return grid
}

func TestScanMatchesDilation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		grid := randomGrid(rng, 3+rng.Intn(20), 3+rng.Intn(20), 2+rng.Intn(12))
		for _, c := range []Connectivity{Conn4, Conn8} {
			scan, err := ScanBuilder{Connectivity: c}.Build(context.Background(), grid)
			require.NoError(t, err)
			dil, err := DilationBuilder{Connectivity: c, Workers: 3}.Build(context.Background(), grid)
			require.NoError(t, err)
			if diff := cmp.Diff(dil, scan); diff != "" {
				t.Fatalf("trial %d conn%s: scan and dilation disagree (-dilation +scan):\n%s", trial, c, diff)
			}
		}
	}
}

func TestAdjacencyInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	grid := randomGrid(rng, 30, 30, 20)

	for name, b := range builders(Conn4) {
		t.Run(name, func(t *testing.T) {
			adj, err := b.Build(context.Background(), grid)
			require.NoError(t, err)
			assert.True(t, adj.Symmetric())
			assert.Equal(t, Distinct(grid), adj.Grains())
			for g, neighbors := range adj {
				assert.NotContains(t, neighbors, g, "grain %d lists itself", g)
			}

			// Node degrees of the region adjacency graph are the counts.
			graph := adj.Graph()
			for _, g := range adj.Grains() {
				assert.Equal(t, len(adj[g]), graph.From(int64(g)).Len())
			}
		})
	}
}

func TestSymmetrize(t *testing.T) {
	adj := Adjacency{1: set(2), 2: set(), 3: set(1)}
	assert.False(t, adj.Symmetric())

	adj.Symmetrize()
	assert.True(t, adj.Symmetric())
	assert.Equal(t, []ID{2, 3}, adj.Neighbors(1))
	assert.Equal(t, []int{2, 1, 1}, adj.Counts())
}

func TestMaxGrains(t *testing.T) {
	grid, err := ColorLabeler{}.Label(redBlueGreen())
	require.NoError(t, err)

	for name, b := range map[string]Builder{
		"scan":     ScanBuilder{MaxGrains: 2},
		"dilation": DilationBuilder{MaxGrains: 2},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build(context.Background(), grid)
			assert.True(t, errors.Is(err, ErrTooManyGrains), "got %v", err)
		})
	}

	_, err = ScanBuilder{MaxGrains: 3}.Build(context.Background(), grid)
	assert.NoError(t, err)
}

func TestBuildCancelled(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	grid := randomGrid(rng, 16, 16, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, b := range builders(Conn4) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build(ctx, grid)
			assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
		})
	}
}

func TestBuildInvalidGrid(t *testing.T) {
	grid := Grid{Width: 3, Height: 3, IDs: make([]ID, 8)}
	for name, b := range builders(Conn4) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build(context.Background(), grid)
			assert.True(t, errors.Is(err, ErrInvalidShape), "got %v", err)
		})
	}
}

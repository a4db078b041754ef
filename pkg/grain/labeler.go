package grain

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/campoy/unique"

	"grainmetrics/internal/models"
)

// ID identifies a grain within one slice. IDs are sparse; enumerate them with
// Distinct rather than assuming a dense range.
type ID uint64

// Grid holds one grain ID per pixel in row-major order.
type Grid struct {
	Width  int
	Height int
	IDs    []ID
}

// At returns the grain at (x, y).
func (g Grid) At(x, y int) ID {
	return g.IDs[y*g.Width+x]
}

// Connectivity selects which pixels count as touching.
type Connectivity int

const (
	// Conn4 links the four edge-sharing neighbours. This matches a one-step
	// binary dilation with the cross-shaped structuring element.
	Conn4 Connectivity = iota
	// Conn8 also links the four diagonal neighbours.
	Conn8
)

// ParseConnectivity accepts 4 or 8.
func ParseConnectivity(n int) (Connectivity, error) {
	switch n {
	case 4:
		return Conn4, nil
	case 8:
		return Conn8, nil
	default:
		return Conn4, fmt.Errorf("connectivity must be 4 or 8, got %d", n)
	}
}

// String returns "4" or "8".
func (c Connectivity) String() string {
	if c == Conn8 {
		return "8"
	}
	return "4"
}

// offsets returns the (dx, dy) steps to every neighbour.
func (c Connectivity) offsets() [][2]int {
	if c == Conn8 {
		return [][2]int{{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}}
	}
	return [][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}
}

// forward returns the neighbour steps that come later in raster order, so
// visiting each pixel once touches each neighbouring pair exactly once.
func (c Connectivity) forward() [][2]int {
	if c == Conn8 {
		return [][2]int{{1, 0}, {-1, 1}, {0, 1}, {1, 1}}
	}
	return [][2]int{{1, 0}, {0, 1}}
}

// Labeler assigns a grain ID to every pixel of a slice.
type Labeler interface {
	Label(img models.Image) (Grid, error)
}

// packedChannels is the widest colour tuple that ColorID encodes losslessly.
const packedChannels = 4

// ColorID maps a colour tuple to a grain ID. Tuples of up to four channels
// are packed 16 bits per channel, so distinct colours never share an ID;
// wider tuples fall back to 64-bit FNV-1a.
func ColorID(c []uint16) ID {
	if len(c) <= packedChannels {
		var id uint64
		for _, v := range c {
			id = id<<16 | uint64(v)
		}
		return ID(id)
	}
	h := fnv.New64a()
	var buf [2]byte
	for _, v := range c {
		binary.LittleEndian.PutUint16(buf[:], v)
		h.Write(buf[:])
	}
	return ID(h.Sum64())
}

// ColorLabeler labels each pixel by its colour alone.
type ColorLabeler struct{}

// Label implements Labeler.
func (ColorLabeler) Label(img models.Image) (Grid, error) {
	if err := Validate(img); err != nil {
		return Grid{}, err
	}
	grid := Grid{Width: img.Width, Height: img.Height, IDs: make([]ID, img.Len())}
	for i := range grid.IDs {
		off := i * img.Channels
		grid.IDs[i] = ColorID(img.Pix[off : off+img.Channels])
	}
	return grid, nil
}

// ComponentLabeler labels each connected region of equal colour separately.
// IDs are dense, starting at 1, in raster order of each region's first pixel.
type ComponentLabeler struct {
	Connectivity Connectivity
}

// Label implements Labeler.
func (l ComponentLabeler) Label(img models.Image) (Grid, error) {
	colors, err := ColorLabeler{}.Label(img)
	if err != nil {
		return Grid{}, err
	}
	w, h := img.Width, img.Height
	grid := Grid{Width: w, Height: h, IDs: make([]ID, w*h)}
	offsets := l.Connectivity.offsets()

	var next ID
	var stack []int
	for start := range grid.IDs {
		if grid.IDs[start] != 0 {
			continue
		}
		next++
		color := colors.IDs[start]
		grid.IDs[start] = next
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := p%w, p/w
			for _, d := range offsets {
				nx, ny := px+d[0], py+d[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				q := ny*w + nx
				if grid.IDs[q] == 0 && colors.IDs[q] == color {
					grid.IDs[q] = next
					stack = append(stack, q)
				}
			}
		}
	}
	return grid, nil
}

// Validate checks that img has a usable shape.
func Validate(img models.Image) error {
	if img.Width <= 0 || img.Height <= 0 || img.Channels <= 0 {
		return fmt.Errorf("%w: %dx%d with %d channels", ErrInvalidShape, img.Width, img.Height, img.Channels)
	}
	if want := img.Width * img.Height * img.Channels; len(img.Pix) != want {
		return fmt.Errorf("%w: %d values for a %dx%dx%d image", ErrInvalidShape, len(img.Pix), img.Width, img.Height, img.Channels)
	}
	return nil
}

// Distinct returns the grain IDs present in grid in ascending order.
func Distinct(grid Grid) []ID {
	ids := make([]ID, len(grid.IDs))
	copy(ids, grid.IDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	unique.Slice(&ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

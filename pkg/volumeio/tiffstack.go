package volumeio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/image/tiff"

	"grainmetrics/internal/models"
)

// maxTIFFPages bounds the IFD chain walked by tiffPages.
const maxTIFFPages = 1 << 16

// tiffStack reads a multi-page TIFF: every page (IFD) is one z slice.
type tiffStack struct{}

var tiffReader tiffStack

// ReadSlice implements Reader. It decodes the first page.
func (tiffStack) ReadSlice(in io.Reader) (models.Image, error) {
	img, err := tiff.Decode(in)
	if err != nil {
		return models.Image{}, err
	}
	return FromImage(img), nil
}

// ReadVolume implements Reader. Pages are stacked in file order and must
// share one shape.
func (tiffStack) ReadVolume(in io.Reader) (models.Volume, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return models.Volume{}, err
	}
	pages, err := tiffPages(data)
	if err != nil {
		return models.Volume{}, err
	}

	slices := make([]models.Image, 0, len(pages))
	for i, ifd := range pages {
		img, err := tiff.Decode(newTIFFPage(data, ifd))
		if err != nil {
			return models.Volume{}, fmt.Errorf("page %d: %w", i, err)
		}
		slices = append(slices, FromImage(img))
	}
	return models.VolumeFromSlices(slices)
}

// tiffPages walks the IFD chain of a classic TIFF and returns the offset of
// every page.
func tiffPages(data []byte) ([]uint32, error) {
	if len(data) < 8 {
		return nil, tiff.FormatError("truncated header")
	}
	var bo binary.ByteOrder
	switch string(data[:4]) {
	case "II\x2A\x00":
		bo = binary.LittleEndian
	case "MM\x00\x2A":
		bo = binary.BigEndian
	default:
		return nil, tiff.FormatError("malformed header")
	}

	var pages []uint32
	seen := make(map[uint32]bool)
	for off := bo.Uint32(data[4:8]); off != 0; {
		if seen[off] {
			return nil, tiff.FormatError("IFD chain loops")
		}
		if len(pages) == maxTIFFPages {
			return nil, tiff.FormatError("too many pages")
		}
		seen[off] = true

		pos := int64(off)
		if pos+2 > int64(len(data)) {
			return nil, tiff.FormatError("IFD offset out of range")
		}
		next := pos + 2 + 12*int64(bo.Uint16(data[pos:pos+2]))
		if next+4 > int64(len(data)) {
			return nil, tiff.FormatError("IFD runs past end of file")
		}
		pages = append(pages, off)
		off = bo.Uint32(data[next : next+4])
	}
	if len(pages) == 0 {
		return nil, tiff.FormatError("no pages")
	}
	return pages, nil
}

// tiffPage presents data with the header's first-IFD offset replaced, so a
// single-page decoder reads the chosen page.
type tiffPage struct {
	data   []byte
	header [8]byte
	pos    int64
}

func newTIFFPage(data []byte, ifd uint32) *tiffPage {
	p := &tiffPage{data: data}
	copy(p.header[:], data[:8])
	if data[0] == 'I' {
		binary.LittleEndian.PutUint32(p.header[4:], ifd)
	} else {
		binary.BigEndian.PutUint32(p.header[4:], ifd)
	}
	return p
}

// ReadAt implements io.ReaderAt.
func (p *tiffPage) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("tiff page: negative offset")
	}
	if off >= int64(len(p.data)) {
		return 0, io.EOF
	}
	n := copy(b, p.data[off:])
	for i := off; i < int64(len(p.header)) && i < off+int64(n); i++ {
		b[i-off] = p.header[i]
	}
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

// Read implements io.Reader.
func (p *tiffPage) Read(b []byte) (int, error) {
	n, err := p.ReadAt(b, p.pos)
	p.pos += int64(n)
	return n, err
}

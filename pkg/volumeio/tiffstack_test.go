package volumeio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

// grayTIFFStack encodes uncompressed 8-bit grey pages as one little-endian
// TIFF and returns the file with the offset of each page's IFD.
func grayTIFFStack(w, h int, pages ...[]uint8) ([]byte, []uint32) {
	le := binary.LittleEndian
	buf := []byte("II\x2A\x00\x00\x00\x00\x00")
	link := 4
	var ifds []uint32

	for _, px := range pages {
		dataPos := uint32(len(buf))
		buf = append(buf, px...)
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
		ifd := uint32(len(buf))
		ifds = append(ifds, ifd)
		le.PutUint32(buf[link:], ifd)

		entries := [][3]uint32{
			{256, 3, uint32(w)},       // ImageWidth
			{257, 3, uint32(h)},       // ImageLength
			{258, 3, 8},               // BitsPerSample
			{259, 3, 1},               // Compression: none
			{262, 3, 1},               // Photometric: black is zero
			{273, 4, dataPos},         // StripOffsets
			{277, 3, 1},               // SamplesPerPixel
			{278, 3, uint32(h)},       // RowsPerStrip
			{279, 4, uint32(len(px))}, // StripByteCounts
		}
		buf = le.AppendUint16(buf, uint16(len(entries)))
		for _, e := range entries {
			buf = le.AppendUint16(buf, uint16(e[0]))
			buf = le.AppendUint16(buf, uint16(e[1]))
			buf = le.AppendUint32(buf, 1)
			buf = le.AppendUint32(buf, e[2])
		}
		link = len(buf)
		buf = le.AppendUint32(buf, 0)
	}
	return buf, ifds
}

func filled(n int, v uint8) []uint8 {
	px := make([]uint8, n)
	for i := range px {
		px[i] = v
	}
	return px
}

func TestTIFFStackVolume(t *testing.T) {
	const w, h = 4, 2
	pages := [][]uint8{filled(w*h, 10), filled(w*h, 20), filled(w*h, 30)}
	pages[2][w+3] = 99
	data, _ := grayTIFFStack(w, h, pages...)

	vol, err := tiffReader.ReadVolume(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, vol.Validate())
	assert.Equal(t, w, vol.Width)
	assert.Equal(t, h, vol.Height)
	assert.Equal(t, 3, vol.Depth)
	assert.Equal(t, 1, vol.Channels)

	for z, want := range []uint16{10, 20, 30} {
		assert.Equal(t, []uint16{want}, vol.Slice(z).Pixel(0, 0), "page %d", z)
	}
	assert.Equal(t, []uint16{99}, vol.Slice(2).Pixel(3, 1))

	first, err := tiffReader.ReadSlice(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, vol.Slice(0), first)
}

func TestTIFFStackFile(t *testing.T) {
	data, _ := grayTIFFStack(2, 2, filled(4, 1), filled(4, 2))
	path := filepath.Join(t.TempDir(), "RGB.tif")
	require.NoError(t, os.WriteFile(path, data, 0644))

	f, err := FormatForPath(path)
	require.NoError(t, err)
	vol, err := ReadVolumeFile(path, f)
	require.NoError(t, err)
	assert.Equal(t, 2, vol.Depth)
}

func TestTIFFStackMismatchedPages(t *testing.T) {
	small, _ := grayTIFFStack(2, 2, filled(4, 1))
	pages, err := tiffPages(small)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	// A second page of another shape cannot be stacked.
	data, ifds := grayTIFFStack(2, 2, filled(4, 1), filled(4, 2))
	binary.LittleEndian.PutUint16(data[ifds[1]+2+8:], 3)
	_, err = tiffReader.ReadVolume(bytes.NewReader(data))
	assert.Error(t, err)
}

func TestTIFFPagesMalformed(t *testing.T) {
	_, err := tiffPages([]byte("II"))
	assert.Error(t, err)

	_, err = tiffPages([]byte("GIF89a\x00\x00"))
	assert.Error(t, err)

	data, ifds := grayTIFFStack(2, 2, filled(4, 1))
	next := ifds[0] + 2 + 12*9
	binary.LittleEndian.PutUint32(data[next:], ifds[0])
	_, err = tiffPages(data)
	var fe tiff.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "loops")

	binary.LittleEndian.PutUint32(data[next:], uint32(len(data)+100))
	_, err = tiffPages(data)
	assert.ErrorContains(t, err, "out of range")
}

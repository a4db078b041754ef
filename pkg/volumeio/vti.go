package volumeio

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"grainmetrics/internal/models"
)

// VTK XML ImageData container. Only uncompressed inline data arrays are
// supported, in ascii or base64 binary encoding.
type vtkFile struct {
	XMLName    xml.Name `xml:"VTKFile"`
	Type       string   `xml:"type,attr"`
	ByteOrder  string   `xml:"byte_order,attr"`
	HeaderType string   `xml:"header_type,attr"`
	Compressor string   `xml:"compressor,attr"`
	ImageData  struct {
		WholeExtent string `xml:"WholeExtent,attr"`
		Spacing     string `xml:"Spacing,attr"`
		Piece       struct {
			Extent    string `xml:"Extent,attr"`
			PointData struct {
				Scalars string         `xml:"Scalars,attr"`
				Arrays  []vtkDataArray `xml:"DataArray"`
			} `xml:"PointData"`
		} `xml:"Piece"`
	} `xml:"ImageData"`
}

type vtkDataArray struct {
	Type       string `xml:"type,attr"`
	Name       string `xml:"Name,attr"`
	Components int    `xml:"NumberOfComponents,attr"`
	Format     string `xml:"format,attr"`
	Text       string `xml:",chardata"`
}

type vtiReader struct{}

// ReadSlice implements Reader. The volume must be one voxel deep.
func (vtiReader) ReadSlice(in io.Reader) (models.Image, error) {
	vol, err := ReadVTI(in)
	if err != nil {
		return models.Image{}, err
	}
	if vol.Depth != 1 {
		return models.Image{}, fmt.Errorf("vti volume has depth %d, expected a single slice", vol.Depth)
	}
	return vol.Slice(0), nil
}

// ReadVolume implements Reader.
func (vtiReader) ReadVolume(in io.Reader) (models.Volume, error) {
	return ReadVTI(in)
}

// ReadVTI decodes a VTK XML ImageData file. The point-data scalars become
// the volume channels; the layout matches VTK's x-fastest order.
func ReadVTI(in io.Reader) (models.Volume, error) {
	var doc vtkFile
	if err := xml.NewDecoder(in).Decode(&doc); err != nil {
		return models.Volume{}, fmt.Errorf("failed to parse vti: %w", err)
	}
	if doc.Type != "ImageData" {
		return models.Volume{}, fmt.Errorf("%w: vtk file type %q", ErrUnsupportedFormat, doc.Type)
	}
	if doc.Compressor != "" {
		return models.Volume{}, fmt.Errorf("%w: compressed vti (%s)", ErrUnsupportedFormat, doc.Compressor)
	}

	extent := doc.ImageData.Piece.Extent
	if extent == "" {
		extent = doc.ImageData.WholeExtent
	}
	dims, err := parseExtent(extent)
	if err != nil {
		return models.Volume{}, err
	}

	array, err := selectArray(doc.ImageData.Piece.PointData.Arrays, doc.ImageData.Piece.PointData.Scalars)
	if err != nil {
		return models.Volume{}, err
	}
	components := array.Components
	if components <= 0 {
		components = 1
	}

	var values []float64
	switch array.Format {
	case "ascii":
		values, err = parseASCII(array.Text)
	case "binary":
		values, err = parseBinary(array, doc.HeaderType, doc.ByteOrder)
	default:
		err = fmt.Errorf("%w: data array format %q", ErrUnsupportedFormat, array.Format)
	}
	if err != nil {
		return models.Volume{}, err
	}

	vol := models.NewVolume(dims[0], dims[1], dims[2], components)
	if len(values) != len(vol.Data) {
		return models.Volume{}, fmt.Errorf("vti data array %q has %d values, extent %v with %d components needs %d",
			array.Name, len(values), dims, components, len(vol.Data))
	}
	vol.Data = values

	if sp := strings.Fields(doc.ImageData.Spacing); len(sp) == 3 {
		for i, dst := range []*float64{&vol.Spacing.X, &vol.Spacing.Y, &vol.Spacing.Z} {
			if v, err := strconv.ParseFloat(sp[i], 64); err == nil {
				*dst = v
			}
		}
	}
	return vol, nil
}

func parseExtent(s string) ([3]int, error) {
	var dims [3]int
	f := strings.Fields(s)
	if len(f) != 6 {
		return dims, fmt.Errorf("invalid vti extent %q", s)
	}
	for i := 0; i < 3; i++ {
		lo, err1 := strconv.Atoi(f[2*i])
		hi, err2 := strconv.Atoi(f[2*i+1])
		if err1 != nil || err2 != nil || hi < lo {
			return dims, fmt.Errorf("invalid vti extent %q", s)
		}
		dims[i] = hi - lo + 1
	}
	return dims, nil
}

func selectArray(arrays []vtkDataArray, scalars string) (vtkDataArray, error) {
	if len(arrays) == 0 {
		return vtkDataArray{}, fmt.Errorf("vti has no point data arrays")
	}
	for _, a := range arrays {
		if scalars != "" && a.Name == scalars {
			return a, nil
		}
	}
	return arrays[0], nil
}

func parseASCII(text string) ([]float64, error) {
	fields := strings.Fields(text)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vti ascii value %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

func byteOrder(name string) binary.ByteOrder {
	if name == "BigEndian" {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// scalarSize returns the byte width of a VTK scalar type.
func scalarSize(t string) (int, error) {
	switch t {
	case "Int8", "UInt8":
		return 1, nil
	case "Int16", "UInt16":
		return 2, nil
	case "Int32", "UInt32", "Float32":
		return 4, nil
	case "Int64", "UInt64", "Float64":
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: vtk scalar type %q", ErrUnsupportedFormat, t)
	}
}

func parseBinary(array vtkDataArray, headerType, order string) ([]float64, error) {
	size, err := scalarSize(array.Type)
	if err != nil {
		return nil, err
	}
	headerSize := 4
	if headerType == "UInt64" {
		headerSize = 8
	}
	bo := byteOrder(order)
	raw, err := decodeInline(array.Text, headerSize, bo)
	if err != nil {
		return nil, err
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("vti binary block of %d bytes is not a multiple of %s", len(raw), array.Type)
	}

	out := make([]float64, len(raw)/size)
	for i := range out {
		b := raw[i*size : (i+1)*size]
		switch array.Type {
		case "Int8":
			out[i] = float64(int8(b[0]))
		case "UInt8":
			out[i] = float64(b[0])
		case "Int16":
			out[i] = float64(int16(bo.Uint16(b)))
		case "UInt16":
			out[i] = float64(bo.Uint16(b))
		case "Int32":
			out[i] = float64(int32(bo.Uint32(b)))
		case "UInt32":
			out[i] = float64(bo.Uint32(b))
		case "Float32":
			out[i] = float64(math.Float32frombits(bo.Uint32(b)))
		case "Int64":
			out[i] = float64(int64(bo.Uint64(b)))
		case "UInt64":
			out[i] = float64(bo.Uint64(b))
		case "Float64":
			out[i] = math.Float64frombits(bo.Uint64(b))
		}
	}
	return out, nil
}

// decodeInline returns the payload of an inline binary data array: a byte
// count header followed by the data, base64 encoded either as one stream or
// as two separately padded blocks.
func decodeInline(text string, headerSize int, bo binary.ByteOrder) ([]byte, error) {
	s := strings.Join(strings.Fields(text), "")

	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) >= headerSize {
		n := readHeader(raw[:headerSize], bo)
		if uint64(len(raw)-headerSize) >= n {
			return raw[headerSize : uint64(headerSize)+n], nil
		}
	}

	hlen := base64.StdEncoding.EncodedLen(headerSize)
	if len(s) < hlen {
		return nil, fmt.Errorf("vti binary block too short for its header")
	}
	hdr, err := base64.StdEncoding.DecodeString(s[:hlen])
	if err != nil {
		return nil, fmt.Errorf("invalid vti binary header: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(s[hlen:])
	if err != nil {
		return nil, fmt.Errorf("invalid vti binary data: %w", err)
	}
	n := readHeader(hdr, bo)
	if uint64(len(data)) < n {
		return nil, fmt.Errorf("vti binary block holds %d bytes, header declares %d", len(data), n)
	}
	return data[:n], nil
}

func readHeader(b []byte, bo binary.ByteOrder) uint64 {
	if len(b) == 8 {
		return bo.Uint64(b)
	}
	return uint64(bo.Uint32(b))
}

// VTIOptions controls WriteVTI.
type VTIOptions struct {
	// Binary writes base64 Float32 data instead of ascii
	Binary bool
}

// WriteVTI encodes vol as a VTK XML ImageData file with a Float32 scalar
// array named "scalars".
func WriteVTI(w io.Writer, vol models.Volume, opts VTIOptions) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	extent := fmt.Sprintf("0 %d 0 %d 0 %d", vol.Width-1, vol.Height-1, vol.Depth-1)
	format := "ascii"
	if opts.Binary {
		format = "binary"
	}

	fmt.Fprintln(bw, `<?xml version="1.0"?>`)
	fmt.Fprintln(bw, `<VTKFile type="ImageData" version="1.0" byte_order="LittleEndian" header_type="UInt64">`)
	fmt.Fprintf(bw, "  <ImageData WholeExtent=\"%s\" Origin=\"0 0 0\" Spacing=\"%g %g %g\">\n",
		extent, vol.Spacing.X, vol.Spacing.Y, vol.Spacing.Z)
	fmt.Fprintf(bw, "    <Piece Extent=\"%s\">\n", extent)
	fmt.Fprintln(bw, `      <PointData Scalars="scalars">`)
	fmt.Fprintf(bw, "        <DataArray type=\"Float32\" Name=\"scalars\" NumberOfComponents=\"%d\" format=\"%s\">\n",
		vol.Channels, format)

	if opts.Binary {
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, uint64(4*len(vol.Data)))
		for _, v := range vol.Data {
			binary.Write(&buf, binary.LittleEndian, float32(v))
		}
		fmt.Fprintf(bw, "          %s\n", base64.StdEncoding.EncodeToString(buf.Bytes()))
	} else {
		for i, v := range vol.Data {
			if i%vol.Width == 0 {
				if i > 0 {
					bw.WriteByte('\n')
				}
				bw.WriteString("         ")
			}
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatFloat(float64(float32(v)), 'g', -1, 32))
		}
		bw.WriteByte('\n')
	}

	fmt.Fprintln(bw, `        </DataArray>`)
	fmt.Fprintln(bw, `      </PointData>`)
	fmt.Fprintln(bw, `      <CellData>`)
	fmt.Fprintln(bw, `      </CellData>`)
	fmt.Fprintln(bw, `    </Piece>`)
	fmt.Fprintln(bw, `  </ImageData>`)
	fmt.Fprintln(bw, `</VTKFile>`)
	return bw.Flush()
}

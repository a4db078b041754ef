// Package volumeio reads and writes microstructure slices and volumes.
// Every reader is selected by an explicit Format; file extensions are only
// consulted when scanning a directory of slices.
package volumeio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"grainmetrics/internal/models"
)

// ErrUnsupportedFormat reports a format tag or container feature this
// package cannot read.
var ErrUnsupportedFormat = errors.New("volumeio: unsupported format")

// Format tags a file container.
type Format int

const (
	FormatUnknown Format = iota
	FormatTIFF
	FormatPNG
	FormatJPEG
	FormatVTI
)

var formatNames = map[Format]string{
	FormatTIFF: "tiff",
	FormatPNG:  "png",
	FormatJPEG: "jpeg",
	FormatVTI:  "vti",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseFormat maps a format name such as "tiff", "tif", "png", "jpg",
// "jpeg" or "vti" to its tag.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "tif", "tiff":
		return FormatTIFF, nil
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "vti":
		return FormatVTI, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// FormatForPath derives the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Reader decodes one container format into slices and volumes.
type Reader interface {
	// ReadSlice decodes a single 2D slice.
	ReadSlice(r io.Reader) (models.Image, error)

	// ReadVolume decodes a 3D volume. TIFF pages become z slices; PNG and
	// JPEG yield a volume of depth 1.
	ReadVolume(r io.Reader) (models.Volume, error)
}

// ReaderFor returns the Reader for a format tag.
func ReaderFor(f Format) (Reader, error) {
	switch f {
	case FormatTIFF:
		return tiffReader, nil
	case FormatPNG:
		return pngReader, nil
	case FormatJPEG:
		return jpegReader, nil
	case FormatVTI:
		return vtiReader{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// ReadVolumeFile opens path and decodes it as a volume in format f.
func ReadVolumeFile(path string, f Format) (models.Volume, error) {
	reader, err := ReaderFor(f)
	if err != nil {
		return models.Volume{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return models.Volume{}, err
	}
	defer file.Close()

	vol, err := reader.ReadVolume(file)
	if err != nil {
		return models.Volume{}, fmt.Errorf("failed to read %s volume %s: %w", f, path, err)
	}
	return vol, nil
}

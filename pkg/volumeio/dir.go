package volumeio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"grainmetrics/internal/models"
)

// ReadSliceDir loads every TIFF, PNG and JPEG slice in dir. Slices are
// ordered by the number embedded in their file name, then by name, and must
// all share the same shape. A directory without slices yields no images and
// no error.
func ReadSliceDir(dir string) ([]models.Image, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := FormatForPath(e.Name())
		if err != nil || f == FormatVTI {
			continue
		}
		names = append(names, e.Name())
	}

	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	slices := make([]models.Image, 0, len(names))
	for _, name := range names {
		img, err := ReadSliceFile(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, err
		}
		if len(slices) > 0 {
			first := slices[0]
			if img.Width != first.Width || img.Height != first.Height || img.Channels != first.Channels {
				return nil, nil, fmt.Errorf("slice %s is %dx%dx%d, expected %dx%dx%d",
					name, img.Width, img.Height, img.Channels, first.Width, first.Height, first.Channels)
			}
		}
		slices = append(slices, img)
	}
	return slices, names, nil
}

// ReadSliceFile decodes one slice, choosing the reader from the extension.
func ReadSliceFile(path string) (models.Image, error) {
	f, err := FormatForPath(path)
	if err != nil {
		return models.Image{}, err
	}
	reader, err := ReaderFor(f)
	if err != nil {
		return models.Image{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return models.Image{}, err
	}
	defer file.Close()

	img, err := reader.ReadSlice(file)
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to load slice %s: %w", path, err)
	}
	return img, nil
}

// WritePNGFile encodes a slice to path.
func WritePNGFile(path string, m models.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePNG(file, m); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// extractNumber returns the digits of a file name read as one integer, or
// -1 when there are none.
func extractNumber(filename string) int {
	numStr := ""
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}
	if numStr == "" {
		return -1
	}
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return -1
	}
	return num
}

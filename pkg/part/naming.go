// Package part implements the segment store: one append-only data file
// per part plus a small metadata sidecar, written by a single queue
// writer and read concurrently by any number of consumers. Parts are
// numbered monotonically; only the newest part of a queue accepts
// appends, older parts are sealed and immutable.
package part

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	// DataExtension is the extension of part data files.
	DataExtension = ".log"
	// MetaExtension is the extension of part sidecar files.
	MetaExtension = ".meta"

	filePrefix = "part_"

	// nameWidth zero-pads part numbers so lexicographic file ordering
	// matches numeric creation order.
	nameWidth = 20
)

// FormatDataName returns the data file name for a part number,
// e.g. "part_00000000000000000003.log".
func FormatDataName(num uint64) string {
	return fmt.Sprintf("%s%0*d%s", filePrefix, nameWidth, num, DataExtension)
}

// FormatMetaName returns the sidecar file name for a part number.
func FormatMetaName(num uint64) string {
	return fmt.Sprintf("%s%0*d%s", filePrefix, nameWidth, num, MetaExtension)
}

// ParseDataName extracts the part number from a data file name.
func ParseDataName(filename string) (uint64, error) {
	if !strings.HasPrefix(filename, filePrefix) || !strings.HasSuffix(filename, DataExtension) {
		return 0, fmt.Errorf("not a part data file: %s", filename)
	}
	base := strings.TrimSuffix(strings.TrimPrefix(filename, filePrefix), DataExtension)
	num, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid part number in %s: %w", filename, err)
	}
	return num, nil
}

// Info describes one discovered part.
type Info struct {
	Number   uint64
	Path     string
	MetaPath string
	Size     int64
}

// Discover lists the parts of a queue directory sorted by part number.
// Files that do not match the naming convention (swept parts renamed to
// *.deleted, archives, cursor state) are skipped. A missing directory is
// reported as an empty queue, not an error.
func Discover(dir string) ([]*Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue directory %s: %w", dir, err)
	}

	var parts []*Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		num, err := ParseDataName(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		parts = append(parts, &Info{
			Number:   num,
			Path:     filepath.Join(dir, entry.Name()),
			MetaPath: filepath.Join(dir, FormatMetaName(num)),
			Size:     info.Size(),
		})
	}

	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Number < parts[j].Number
	})
	return parts, nil
}

// Latest returns the newest part of a queue directory, or nil when the
// queue has none.
func Latest(dir string) (*Info, error) {
	parts, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return parts[len(parts)-1], nil
}

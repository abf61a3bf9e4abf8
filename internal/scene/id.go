// Package scene holds the scene naming scheme and the scene index: the
// ordered scene names with their Keep/Drop state, labels, thumbnails and the
// operator's cursor.
package scene

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadName is returned when a scene name does not encode a frame range.
var ErrBadName = errors.New("invalid scene name")

// ID is the in-memory form of a scene name: an inclusive frame range plus the
// zero-padding width used when the name is written to disk.
type ID struct {
	First int
	Last  int
	Width int
}

// NewID builds an ID, validating the range.
func NewID(width, first, last int) (ID, error) {
	if first < 0 || last < first {
		return ID{}, fmt.Errorf("%w: range %d-%d", ErrBadName, first, last)
	}
	return ID{First: first, Last: last, Width: width}, nil
}

// Count is the number of frames in the range.
func (id ID) Count() int {
	return id.Last - id.First + 1
}

// String encodes the ID as FFFF-LLLL.
func (id ID) String() string {
	return Encode(id.Width, id.First, id.Last, 0, 0)
}

// Adjacent reports whether next starts right after id.
func (id ID) Adjacent(next ID) bool {
	return id.Last+1 == next.First
}

// Parse decodes a scene name into an ID.
func Parse(name string) (ID, error) {
	a, b, ok := strings.Cut(name, "-")
	if !ok || a == "" || b == "" || len(a) != len(b) {
		return ID{}, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	first, err := strconv.Atoi(a)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	last, err := strconv.Atoi(b)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	if first < 0 || last < first {
		return ID{}, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return ID{First: first, Last: last, Width: len(a)}, nil
}

// MustParse is Parse for names known to be valid (tests, literals).
func MustParse(name string) ID {
	id, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return id
}

// Decode returns the first and last frame and the frame count of a name.
func Decode(name string) (first, last, count int, err error) {
	id, err := Parse(name)
	if err != nil {
		return 0, 0, 0, err
	}
	return id.First, id.Last, id.Count(), nil
}

// Encode builds a scene name from a range, shifting first by df and last by dl.
func Encode(width, first, last, df, dl int) string {
	return fmt.Sprintf("%0*d-%0*d", width, first+df, width, last+dl)
}

// ParseAll decodes a list of names, failing on the first bad one.
func ParseAll(names []string) ([]ID, error) {
	ids := make([]ID, 0, len(names))
	for _, n := range names {
		id, err := Parse(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Names encodes a list of IDs.
func Names(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Ranges converts sorted boundary frames (first frame of each new scene) into
// contiguous IDs covering [0, frameCount). Boundaries outside (0, frameCount)
// and duplicates are ignored.
func Ranges(width, frameCount int, boundaries []int) []ID {
	if frameCount <= 0 {
		return nil
	}
	var ids []ID
	start := 0
	for _, b := range boundaries {
		if b <= start || b >= frameCount {
			continue
		}
		ids = append(ids, ID{First: start, Last: b - 1, Width: width})
		start = b
	}
	ids = append(ids, ID{First: start, Last: frameCount - 1, Width: width})
	return ids
}

// DefaultMinWidth is the narrowest index width a project uses.
const DefaultMinWidth = 8

// IndexWidth is the padding width for frameCount frames, never below min.
func IndexWidth(frameCount, minWidth int) int {
	w := len(strconv.Itoa(max(frameCount-1, 0)))
	if w < minWidth {
		return minWidth
	}
	return w
}

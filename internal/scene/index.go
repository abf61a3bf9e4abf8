package scene

import (
	"errors"
	"fmt"
	"sort"
)

// State is the operator's choice for a scene.
type State string

const (
	Keep State = "Keep"
	Drop State = "Drop"
)

// ErrUnknownScene is returned by accessors given a name not in the index.
var ErrUnknownScene = errors.New("unknown scene")

// Index is the ordered scene set persisted in the project descriptor.
// Thumbnails is parallel to Names.
type Index struct {
	Names      []string          `yaml:"scene_names"`
	States     map[string]State  `yaml:"scene_states"`
	Labels     map[string]string `yaml:"scene_labels"`
	Current    int               `yaml:"current_scene"`
	Thumbnails []string          `yaml:"thumbnails"`
}

// NewIndex builds an index from IDs with every scene kept.
func NewIndex(ids []ID) Index {
	idx := Index{
		States: make(map[string]State, len(ids)),
		Labels: map[string]string{},
	}
	for _, id := range ids {
		name := id.String()
		idx.Names = append(idx.Names, name)
		idx.States[name] = Keep
		idx.Thumbnails = append(idx.Thumbnails, "")
	}
	sort.Strings(idx.Names)
	return idx
}

func (x *Index) ensureMaps() {
	if x.States == nil {
		x.States = map[string]State{}
	}
	if x.Labels == nil {
		x.Labels = map[string]string{}
	}
	for len(x.Thumbnails) < len(x.Names) {
		x.Thumbnails = append(x.Thumbnails, "")
	}
}

// Len is the number of scenes.
func (x *Index) Len() int { return len(x.Names) }

// Position returns the index of name, or -1.
func (x *Index) Position(name string) int {
	i := sort.SearchStrings(x.Names, name)
	if i < len(x.Names) && x.Names[i] == name {
		return i
	}
	return -1
}

// Has reports whether name is in the index.
func (x *Index) Has(name string) bool { return x.Position(name) >= 0 }

// Add inserts name in sorted position with its state and thumbnail.
func (x *Index) Add(name string, state State, thumbnail string) error {
	if _, err := Parse(name); err != nil {
		return err
	}
	x.ensureMaps()
	if x.Has(name) {
		return fmt.Errorf("scene %s already exists", name)
	}
	i := sort.SearchStrings(x.Names, name)
	x.Names = append(x.Names, "")
	copy(x.Names[i+1:], x.Names[i:])
	x.Names[i] = name
	x.Thumbnails = append(x.Thumbnails, "")
	copy(x.Thumbnails[i+1:], x.Thumbnails[i:])
	x.Thumbnails[i] = thumbnail
	x.States[name] = state
	return nil
}

// Remove deletes name with its state, label and thumbnail entry.
func (x *Index) Remove(name string) error {
	i := x.Position(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownScene, name)
	}
	x.ensureMaps()
	x.Names = append(x.Names[:i], x.Names[i+1:]...)
	x.Thumbnails = append(x.Thumbnails[:i], x.Thumbnails[i+1:]...)
	delete(x.States, name)
	delete(x.Labels, name)
	x.clampCursor()
	return nil
}

// Rename replaces old with name, carrying state and label, and re-sorts.
func (x *Index) Rename(old, name, thumbnail string) error {
	if old == name {
		return x.SetThumbnail(name, thumbnail)
	}
	i := x.Position(old)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownScene, old)
	}
	state := x.States[old]
	label, hasLabel := x.Labels[old]
	if err := x.Remove(old); err != nil {
		return err
	}
	if err := x.Add(name, state, thumbnail); err != nil {
		return err
	}
	if hasLabel {
		x.Labels[name] = label
	}
	return nil
}

// State returns the state of name.
func (x *Index) State(name string) State {
	return x.States[name]
}

// SetState sets the state of name.
func (x *Index) SetState(name string, s State) error {
	if !x.Has(name) {
		return fmt.Errorf("%w: %s", ErrUnknownScene, name)
	}
	x.ensureMaps()
	x.States[name] = s
	return nil
}

// SetAll sets every scene to s.
func (x *Index) SetAll(s State) {
	x.ensureMaps()
	for _, n := range x.Names {
		x.States[n] = s
	}
}

// Label returns the label of name ("" if none).
func (x *Index) Label(name string) string {
	return x.Labels[name]
}

// SetLabel sets or, when label is empty, clears the label of name.
func (x *Index) SetLabel(name, label string) error {
	if !x.Has(name) {
		return fmt.Errorf("%w: %s", ErrUnknownScene, name)
	}
	x.ensureMaps()
	if label == "" {
		delete(x.Labels, name)
		return nil
	}
	x.Labels[name] = label
	return nil
}

// ClearLabel removes the label of name.
func (x *Index) ClearLabel(name string) error {
	return x.SetLabel(name, "")
}

// Thumbnail returns the thumbnail recorded for name.
func (x *Index) Thumbnail(name string) string {
	i := x.Position(name)
	if i < 0 || i >= len(x.Thumbnails) {
		return ""
	}
	return x.Thumbnails[i]
}

// SetThumbnail records the thumbnail path for name.
func (x *Index) SetThumbnail(name, path string) error {
	i := x.Position(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownScene, name)
	}
	x.ensureMaps()
	x.Thumbnails[i] = path
	return nil
}

// Kept returns the kept scene names in order.
func (x *Index) Kept() []string { return x.withState(Keep) }

// Dropped returns the dropped scene names in order.
func (x *Index) Dropped() []string { return x.withState(Drop) }

func (x *Index) withState(s State) []string {
	var out []string
	for _, n := range x.Names {
		if x.States[n] == s {
			out = append(out, n)
		}
	}
	return out
}

// CurrentName is the scene under the cursor ("" for an empty index).
func (x *Index) CurrentName() string {
	if len(x.Names) == 0 {
		return ""
	}
	x.clampCursor()
	return x.Names[x.Current]
}

// Jump moves the cursor to i, clamped to the valid range.
func (x *Index) Jump(i int) int {
	x.Current = i
	x.clampCursor()
	return x.Current
}

func (x *Index) First() int { return x.Jump(0) }
func (x *Index) Last() int  { return x.Jump(len(x.Names) - 1) }
func (x *Index) Next() int  { return x.Jump(x.Current + 1) }
func (x *Index) Prev() int  { return x.Jump(x.Current - 1) }

// NextKept moves to the next kept scene after the cursor, staying put if none.
func (x *Index) NextKept() int {
	for i := x.Current + 1; i < len(x.Names); i++ {
		if x.States[x.Names[i]] == Keep {
			x.Current = i
			break
		}
	}
	return x.Current
}

// PrevKept moves to the previous kept scene before the cursor, staying put if none.
func (x *Index) PrevKept() int {
	for i := x.Current - 1; i >= 0; i-- {
		if x.States[x.Names[i]] == Keep {
			x.Current = i
			break
		}
	}
	return x.Current
}

func (x *Index) clampCursor() {
	if x.Current >= len(x.Names) {
		x.Current = len(x.Names) - 1
	}
	if x.Current < 0 {
		x.Current = 0
	}
}

// Validate checks the index invariants: sorted unique names, non-overlapping
// ranges, a state per scene, one thumbnail slot per scene and a valid cursor.
func (x *Index) Validate() error {
	var prev *ID
	for i, n := range x.Names {
		id, err := Parse(n)
		if err != nil {
			return err
		}
		if i > 0 && x.Names[i-1] >= n {
			return fmt.Errorf("scene names out of order at %s", n)
		}
		if prev != nil && id.First <= prev.Last {
			return fmt.Errorf("scene %s overlaps %s", n, prev.String())
		}
		if _, ok := x.States[n]; !ok {
			return fmt.Errorf("scene %s has no state", n)
		}
		p := id
		prev = &p
	}
	if len(x.Thumbnails) != len(x.Names) {
		return fmt.Errorf("%d thumbnails for %d scenes", len(x.Thumbnails), len(x.Names))
	}
	if len(x.Names) > 0 && (x.Current < 0 || x.Current >= len(x.Names)) {
		return fmt.Errorf("current scene %d out of range", x.Current)
	}
	return nil
}

// Contiguous reports whether all names form one unbroken run of frames.
func Contiguous(names []string) (bool, error) {
	ids, err := ParseAll(names)
	if err != nil {
		return false, err
	}
	for i := 1; i < len(ids); i++ {
		if !ids[i-1].Adjacent(ids[i]) {
			return false, nil
		}
	}
	return true, nil
}

package splitter

import (
	"os"
	"path/filepath"

	"remixer/internal/framestore"
	"remixer/internal/scene"
)

// Group is a scene range with its state.
type Group struct {
	ID    scene.ID
	State scene.State
}

// Ops applies consolidation to storage. Move transfers the frames of from
// into the directory of into; Remove deletes what is left of from; Rename
// renames into's directory to its merged name.
type Ops struct {
	Move   func(from, into scene.ID) error
	Remove func(id scene.ID) error
	Rename func(old, merged scene.ID) error
}

// DirOps returns Ops working on scene directories under dir.
func DirOps(dir string) Ops {
	path := func(id scene.ID) string { return filepath.Join(dir, id.String()) }
	return Ops{
		Move: func(from, into scene.ID) error {
			return framestore.MoveFrames(path(from), path(into))
		},
		Remove: func(id scene.ID) error {
			return os.RemoveAll(path(id))
		},
		Rename: func(old, merged scene.ID) error {
			if old == merged {
				return nil
			}
			return os.Rename(path(old), path(merged))
		},
	}
}

// Consolidate merges every group shorter than minFrames into a neighbor
// until none is left or a single group remains. The smaller neighbor
// absorbs the short group, the previous one on a tie; the merged group
// keeps the absorbing neighbor's state.
func Consolidate(groups []Group, minFrames int, ops Ops) ([]Group, error) {
	out := append([]Group(nil), groups...)
	for len(out) > 1 {
		i := firstShort(out, minFrames)
		if i < 0 {
			break
		}
		j := absorber(out, i)
		into := out[j]
		merged := into
		merged.ID.First = min(out[i].ID.First, into.ID.First)
		merged.ID.Last = max(out[i].ID.Last, into.ID.Last)

		if ops.Move != nil {
			if err := ops.Move(out[i].ID, into.ID); err != nil {
				return nil, err
			}
		}
		if ops.Remove != nil {
			if err := ops.Remove(out[i].ID); err != nil {
				return nil, err
			}
		}
		if ops.Rename != nil {
			if err := ops.Rename(into.ID, merged.ID); err != nil {
				return nil, err
			}
		}
		out[j] = merged
		out = append(out[:i], out[i+1:]...)
	}
	return out, nil
}

func firstShort(groups []Group, minFrames int) int {
	for i, g := range groups {
		if g.ID.Count() < minFrames {
			return i
		}
	}
	return -1
}

func absorber(groups []Group, i int) int {
	switch {
	case i == 0:
		return 1
	case i == len(groups)-1:
		return i - 1
	}
	if groups[i+1].ID.Count() < groups[i-1].ID.Count() {
		return i + 1
	}
	return i - 1
}

package project

import (
	"fmt"
	"path/filepath"
	"sort"

	"remixer/internal/scene"
	"remixer/internal/util"
)

// IntegrityWarning describes drift between the descriptor and the disk.
// Warnings are informational; nothing is ever removed because of one.
type IntegrityWarning struct {
	Path     string
	Expected int
	Found    int
	Detail   string
}

func (w IntegrityWarning) String() string {
	if w.Detail != "" {
		return fmt.Sprintf("%s: %s", w.Path, w.Detail)
	}
	return fmt.Sprintf("%s: expected %d entries, found %d", w.Path, w.Expected, w.Found)
}

func countNonEmpty(list []string) int {
	n := 0
	for _, s := range list {
		if s != "" {
			n++
		}
	}
	return n
}

// IntegrityCheck creates every referenced directory that is missing and
// reports directories whose content differs from the descriptor's lists.
func IntegrityCheck(d *Descriptor) ([]IntegrityWarning, error) {
	l := d.Layout()
	var warnings []IntegrityWarning

	dirs := []string{l.Scenes, l.Dropped, l.Thumbnails, l.Clips, l.AudioClips, l.VideoClips}
	if !d.SourceFramesInvalid {
		dirs = append(dirs, l.Source)
	}
	for _, dir := range dirs {
		if err := util.EnsureDir(dir); err != nil {
			return warnings, err
		}
	}

	fileCount := func(dir string) int {
		files, _ := util.ListFiles(dir, "")
		return len(files)
	}
	compare := func(dir string, expected int) {
		if found := fileCount(dir); found != expected {
			warnings = append(warnings, IntegrityWarning{Path: dir, Expected: expected, Found: found})
		}
	}
	compare(l.Thumbnails, countNonEmpty(d.Thumbnails))
	compare(l.AudioClips, len(d.AudioClips))
	compare(l.VideoClips, len(d.VideoClips))
	compare(l.Clips, len(d.Clips))

	for i, th := range d.Thumbnails {
		if th != "" && !util.Exists(th) && i < len(d.Names) {
			warnings = append(warnings, IntegrityWarning{Path: th, Detail: "thumbnail of " + d.Names[i] + " missing"})
		}
	}

	onDisk := map[string]bool{}
	for _, dir := range []string{l.Scenes, l.Dropped} {
		subs, err := util.ListSubdirs(dir)
		if err != nil {
			return warnings, err
		}
		for _, s := range subs {
			onDisk[s] = true
		}
	}
	for _, n := range d.Names {
		if !onDisk[n] {
			warnings = append(warnings, IntegrityWarning{Path: filepath.Join(l.Scenes, n), Detail: "scene directory missing"})
		}
		delete(onDisk, n)
	}
	extras := make([]string, 0, len(onDisk))
	for n := range onDisk {
		extras = append(extras, n)
	}
	sort.Strings(extras)
	for _, n := range extras {
		warnings = append(warnings, IntegrityWarning{Path: n, Detail: "scene directory not in descriptor, ignored"})
	}

	kept := len(d.Kept())
	for _, st := range []struct {
		dir      string
		selected bool
	}{
		{l.Resize, d.Resize}, {l.Resynth, d.Resynthesize}, {l.Inflate, d.Inflate}, {l.Upscale, d.Upscale},
	} {
		subs, _ := util.ListSubdirs(st.dir)
		if len(subs) > 0 && len(subs) != kept {
			warnings = append(warnings, IntegrityWarning{Path: st.dir, Expected: kept, Found: len(subs)})
		}
	}
	return warnings, nil
}

// KeptSet returns the kept scene names as a set.
func KeptSet(d *Descriptor) map[string]bool {
	out := map[string]bool{}
	for _, n := range d.Names {
		if d.States[n] == scene.Keep {
			out[n] = true
		}
	}
	return out
}

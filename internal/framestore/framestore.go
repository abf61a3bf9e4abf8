// Package framestore owns the on-disk layout of a project: the rendered
// source frames, one directory per scene, the parallel stage outputs and
// the PURGED_<n> directories that invalidated content is moved into.
package framestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"remixer/internal/logging"
	"remixer/internal/util"
)

// Directory names under the project root.
const (
	SourceDir        = "SOURCE"
	ScenesDir        = "SCENES"
	DroppedScenesDir = "DROPPED_SCENES"
	ThumbnailsDir    = "THUMBNAILS"
	ResizeDir        = "RESIZE"
	ResynthDir       = "RESYNTH"
	InflateDir       = "INFLATE"
	UpscaleDir       = "UPSCALE"
	ClipsDir         = "CLIPS"
	AudioClipsDir    = "AUDIO_CLIPS"
	VideoClipsDir    = "VIDEO_CLIPS"
	PurgedPrefix     = "PURGED_"
	PortedDir        = "ported_project_files"
)

// FrameExt is the extension of every frame file the project writes.
const FrameExt = ".png"

// Layout is the set of absolute paths for a project rooted at Root.
type Layout struct {
	Root       string
	Source     string
	Scenes     string
	Dropped    string
	Thumbnails string
	Resize     string
	Resynth    string
	Inflate    string
	Upscale    string
	Clips      string
	AudioClips string
	VideoClips string
}

// NewLayout computes the default layout under root.
func NewLayout(root string) Layout {
	clips := filepath.Join(root, ClipsDir)
	return Layout{
		Root:       root,
		Source:     filepath.Join(root, SourceDir),
		Scenes:     filepath.Join(root, ScenesDir),
		Dropped:    filepath.Join(root, DroppedScenesDir),
		Thumbnails: filepath.Join(root, ThumbnailsDir),
		Resize:     filepath.Join(root, ResizeDir),
		Resynth:    filepath.Join(root, ResynthDir),
		Inflate:    filepath.Join(root, InflateDir),
		Upscale:    filepath.Join(root, UpscaleDir),
		Clips:      clips,
		AudioClips: filepath.Join(clips, AudioClipsDir),
		VideoClips: filepath.Join(clips, VideoClipsDir),
	}
}

// Stages returns the stage output directories in pipeline order.
func (l Layout) Stages() []string {
	return []string{l.Resize, l.Resynth, l.Inflate, l.Upscale}
}

// SourceFrameName is the file name of source frame idx.
func SourceFrameName(width, idx int) string {
	return fmt.Sprintf("source%0*d%s", width, idx, FrameExt)
}

// SourceFrameIndex parses the index out of a source frame file name.
func SourceFrameIndex(name string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(name), FrameExt)
	if !strings.HasPrefix(base, "source") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, "source"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// StageFrameName is the file name of the seq-th output frame of a scene.
func StageFrameName(scene string, width, seq int) string {
	return fmt.Sprintf("%s_%0*d%s", scene, width, seq, FrameExt)
}

// Frames lists the frame files of dir in order.
func Frames(dir string) ([]string, error) {
	return util.ListFiles(dir, FrameExt)
}

// FrameCount counts the frame files of dir (0 when missing).
func FrameCount(dir string) int {
	files, err := Frames(dir)
	if err != nil {
		return 0
	}
	return len(files)
}

// ClipName is the file name of a scene's clip with extension ext.
func ClipName(scene, ext string) string {
	return scene + "." + strings.TrimPrefix(ext, ".")
}

// SceneFiles returns the files of dir named after scene, whatever their
// extension.
func SceneFiles(dir, scene string) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, scene+".*"))
	var out []string
	for _, m := range matches {
		if !util.IsDir(m) {
			out = append(out, m)
		}
	}
	return out
}

// SceneDirs lists the scene subdirectory names of dir.
func SceneDirs(dir string) ([]string, error) {
	return util.ListSubdirs(dir)
}

// Store performs the filesystem side of scene operations for one project.
type Store struct {
	Layout Layout
	// Descriptor is the project file copied into every purge directory.
	Descriptor string
	Log        *log.Logger
}

// New creates a Store for root.
func New(root, descriptor string, logger *log.Logger) *Store {
	return &Store{
		Layout:     NewLayout(root),
		Descriptor: descriptor,
		Log:        logging.WithComponent(logger, "framestore"),
	}
}

// EnsureLayout creates every layout directory that does not exist yet.
func (s *Store) EnsureLayout() error {
	l := s.Layout
	for _, d := range []string{l.Source, l.Scenes, l.Dropped, l.Thumbnails, l.Clips, l.AudioClips, l.VideoClips} {
		if err := util.EnsureDir(d); err != nil {
			return err
		}
	}
	return nil
}

// MoveSourceRange moves source frames [first,last] into dst.
func (s *Store) MoveSourceRange(width, first, last int, dst string) error {
	return s.transferSourceRange(width, first, last, dst, util.MovePath)
}

// CopySourceRange copies source frames [first,last] into dst.
func (s *Store) CopySourceRange(width, first, last int, dst string) error {
	return s.transferSourceRange(width, first, last, dst, util.CopyFile)
}

func (s *Store) transferSourceRange(width, first, last int, dst string, op func(src, dst string) error) error {
	if err := util.EnsureDir(dst); err != nil {
		return err
	}
	for i := first; i <= last; i++ {
		name := SourceFrameName(width, i)
		src := filepath.Join(s.Layout.Source, name)
		if !util.Exists(src) {
			return fmt.Errorf("source frame %s missing", name)
		}
		if err := op(src, filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

// MoveFrames moves every frame of src into dst and removes src.
func MoveFrames(src, dst string) error {
	files, err := Frames(src)
	if err != nil {
		return err
	}
	if err := util.EnsureDir(dst); err != nil {
		return err
	}
	for _, f := range files {
		if err := util.MovePath(f, filepath.Join(dst, filepath.Base(f))); err != nil {
			return err
		}
	}
	return os.RemoveAll(src)
}

// Resequence renames the frames of dir to <prefix>_<seq> in their current
// order so every stage input starts at 0 without gaps.
func Resequence(dir, prefix string, width int) error {
	files, err := Frames(dir)
	if err != nil {
		return err
	}
	tmp := make([]string, len(files))
	for i, f := range files {
		tmp[i] = filepath.Join(dir, fmt.Sprintf(".reseq%08d%s", i, FrameExt))
		if err := os.Rename(f, tmp[i]); err != nil {
			return err
		}
	}
	for i, f := range tmp {
		if err := os.Rename(f, filepath.Join(dir, StageFrameName(prefix, width, i))); err != nil {
			return err
		}
	}
	return nil
}

// Purge moves each existing path into a new PURGED_<n> directory under the
// root, keeping its path relative to the root, and drops a copy of the
// descriptor alongside. Paths that do not exist are skipped; when none
// exist no purge directory is created and "" is returned.
func (s *Store) Purge(paths ...string) (string, error) {
	var existing []string
	for _, p := range paths {
		if p != "" && util.Exists(p) {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return "", nil
	}
	dir, err := s.nextPurgeDir()
	if err != nil {
		return "", err
	}
	for _, p := range existing {
		if !util.Exists(p) {
			continue
		}
		rel, err := filepath.Rel(s.Layout.Root, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(p)
		}
		dst := filepath.Join(dir, rel)
		if err := util.EnsureDir(filepath.Dir(dst)); err != nil {
			return dir, err
		}
		if err := util.MovePath(p, dst); err != nil {
			return dir, fmt.Errorf("purge %s: %w", p, err)
		}
		s.Log.Warn("purged", "path", p, "into", dir)
	}
	if s.Descriptor != "" && util.Exists(s.Descriptor) {
		if err := util.CopyFile(s.Descriptor, filepath.Join(dir, filepath.Base(s.Descriptor))); err != nil {
			return dir, err
		}
	}
	return dir, nil
}

// PurgeScene purges the given scene's subdirectory from every listed stage directory.
func (s *Store) PurgeScene(scene string, stageDirs ...string) (string, error) {
	var paths []string
	for _, d := range stageDirs {
		if d != "" {
			paths = append(paths, filepath.Join(d, scene))
		}
	}
	return s.Purge(paths...)
}

// PurgeDirs returns the existing PURGED_<n> directories sorted by n.
func (s *Store) PurgeDirs() ([]string, error) {
	entries, err := os.ReadDir(s.Layout.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type numbered struct {
		n    int
		path string
	}
	var out []numbered
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), PurgedPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), PurgedPrefix))
		if err != nil {
			continue
		}
		out = append(out, numbered{n, filepath.Join(s.Layout.Root, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	paths := make([]string, len(out))
	for i, o := range out {
		paths[i] = o.path
	}
	return paths, nil
}

func (s *Store) nextPurgeDir() (string, error) {
	dirs, err := s.PurgeDirs()
	if err != nil {
		return "", err
	}
	next := 1
	if len(dirs) > 0 {
		last := strings.TrimPrefix(filepath.Base(dirs[len(dirs)-1]), PurgedPrefix)
		n, _ := strconv.Atoi(last)
		next = n + 1
	}
	dir := filepath.Join(s.Layout.Root, fmt.Sprintf("%s%d", PurgedPrefix, next))
	return dir, util.EnsureDir(dir)
}

// RemovePurged permanently deletes every purge directory and returns how
// many were removed.
func (s *Store) RemovePurged() (int, error) {
	dirs, err := s.PurgeDirs()
	if err != nil {
		return 0, err
	}
	for i, d := range dirs {
		if err := os.RemoveAll(d); err != nil {
			return i, err
		}
		s.Log.Info("removed purged content", "path", d)
	}
	return len(dirs), nil
}

// Package sceneops changes scene boundaries and states after the split:
// splitting a scene at a percentage, merging contiguous scenes, coalescing
// runs of kept scenes and force-dropping processed scenes. Every operation
// keeps the scene directories, stage outputs, thumbnails and the scene
// index in step and saves the descriptor before returning.
package sceneops

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"remixer/internal/framestore"
	"remixer/internal/logging"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/util"
)

var (
	ErrNonContiguousMerge = errors.New("scenes are not contiguous")
	ErrOutOfRangeScene    = errors.New("scene index out of range")
	ErrEmptyScene         = errors.New("scene would have no frames")
	ErrSingleSceneMerge   = errors.New("merge needs at least two scenes")
)

// Thumbnailer renders the thumbnail of a scene directory and returns its path.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, name, sceneDir string) (string, error)
}

// Ops applies scene operations to one project.
type Ops struct {
	D      *project.Descriptor
	Store  *framestore.Store
	Thumbs Thumbnailer
	Log    *log.Logger
}

// New creates Ops for d.
func New(d *project.Descriptor, thumbs Thumbnailer, logger *log.Logger) *Ops {
	return &Ops{
		D:      d,
		Store:  d.Store(logger),
		Thumbs: thumbs,
		Log:    logging.WithComponent(logger, "sceneops"),
	}
}

func (o *Ops) save() error {
	if o.D.ProjectPath == "" {
		return nil
	}
	return project.Save(o.D)
}

func (o *Ops) nameAt(i int) (string, error) {
	if i < 0 || i >= o.D.Len() {
		return "", fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRangeScene, i, o.D.Len())
	}
	return o.D.Names[i], nil
}

func (o *Ops) stageDirs() []string {
	l := o.D.Layout()
	return []string{l.Resize, l.Resynth, l.Inflate, l.Upscale}
}

// SplitFrame is where a scene of n frames is cut at percent, leaving at
// least one frame on each side.
func SplitFrame(n int, percent float64) int {
	f := int(math.Ceil(float64(n) * percent / 100))
	return min(max(f, 1), n-1)
}

// Split cuts scene i at percent into a lower and an upper scene. Both halves
// keep the scene's state and start without a label. Stage directories
// holding the scene are cut by the same percent of their own frame count.
func (o *Ops) Split(ctx context.Context, i int, percent float64) (lower, upper string, err error) {
	name, err := o.nameAt(i)
	if err != nil {
		return "", "", err
	}
	if percent <= 0 || percent >= 100 {
		return "", "", &project.ConfigError{Field: "percent", Reason: "must be in (0, 100)"}
	}
	id, err := scene.Parse(name)
	if err != nil {
		return "", "", err
	}
	if id.Count() < 2 {
		return "", "", fmt.Errorf("%w: %s has a single frame", ErrEmptyScene, name)
	}
	sf := SplitFrame(id.Count(), percent)
	lowID := scene.ID{First: id.First, Last: id.First + sf - 1, Width: id.Width}
	upID := scene.ID{First: id.First + sf, Last: id.Last, Width: id.Width}
	lower, upper = lowID.String(), upID.String()

	dir := o.D.ScenePath(name)
	if framestore.FrameCount(dir) < 2 {
		return "", "", fmt.Errorf("%w: %s holds fewer than two frames", ErrEmptyScene, dir)
	}
	if err := splitDir(dir, percent, filepath.Dir(dir), lower, upper); err != nil {
		return "", "", fmt.Errorf("split %s: %w", name, err)
	}
	for _, sd := range o.stageDirs() {
		src := filepath.Join(sd, name)
		if !util.IsDir(src) {
			continue
		}
		if framestore.FrameCount(src) < 2 {
			if _, err := o.Store.Purge(src); err != nil {
				return "", "", err
			}
			continue
		}
		if err := splitDir(src, percent, sd, lower, upper); err != nil {
			return "", "", fmt.Errorf("split %s: %w", src, err)
		}
		if err := framestore.Resequence(filepath.Join(sd, lower), lower, o.D.IndexWidth); err != nil {
			return "", "", err
		}
		if err := framestore.Resequence(filepath.Join(sd, upper), upper, o.D.IndexWidth); err != nil {
			return "", "", err
		}
	}
	if err := o.purgeClips(name); err != nil {
		return "", "", err
	}
	if err := o.purgeThumbnail(name); err != nil {
		return "", "", err
	}

	x := o.D.SceneIndex()
	state := x.State(name)
	if err := x.Rename(name, lower, ""); err != nil {
		return "", "", err
	}
	_ = x.ClearLabel(lower)
	if err := x.Add(upper, state, ""); err != nil {
		return "", "", err
	}
	o.renameProcessedHint(name, lower, upper)
	o.thumbnail(ctx, lower)
	o.thumbnail(ctx, upper)
	o.Log.Info("split scene", "scene", name, "percent", percent, "lower", lower, "upper", upper)
	return lower, upper, o.save()
}

// splitDir moves the frames of src past the split point into parent/upper
// and renames src to parent/lower.
func splitDir(src string, percent float64, parent, lower, upper string) error {
	frames, err := framestore.Frames(src)
	if err != nil {
		return err
	}
	sf := SplitFrame(len(frames), percent)
	upDir := filepath.Join(parent, upper)
	if err := util.EnsureDir(upDir); err != nil {
		return err
	}
	for _, f := range frames[sf:] {
		if err := util.MovePath(f, filepath.Join(upDir, filepath.Base(f))); err != nil {
			return err
		}
	}
	lowDir := filepath.Join(parent, lower)
	if lowDir == src {
		return nil
	}
	return os.Rename(src, lowDir)
}

// Merge joins scenes i..j into one scene named after the combined range.
// The merged scene takes the state of scene i and starts without a label;
// stage outputs and clips of every merged scene are purged.
func (o *Ops) Merge(ctx context.Context, i, j int) (string, error) {
	if i == j {
		return "", ErrSingleSceneMerge
	}
	if i > j {
		i, j = j, i
	}
	if _, err := o.nameAt(i); err != nil {
		return "", err
	}
	if _, err := o.nameAt(j); err != nil {
		return "", err
	}
	names := append([]string(nil), o.D.Names[i:j+1]...)
	ok, err := scene.Contiguous(names)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s..%s", ErrNonContiguousMerge, names[0], names[len(names)-1])
	}
	first := scene.MustParse(names[0])
	last := scene.MustParse(names[len(names)-1])
	merged := scene.ID{First: first.First, Last: last.Last, Width: first.Width}.String()

	target := o.D.ScenePath(names[0])
	if err := util.EnsureDir(target); err != nil {
		return "", err
	}
	for _, n := range names[1:] {
		if err := framestore.MoveFrames(o.D.ScenePath(n), target); err != nil {
			return "", fmt.Errorf("merge %s: %w", n, err)
		}
	}
	mergedDir := filepath.Join(filepath.Dir(target), merged)
	if mergedDir != target {
		if err := os.Rename(target, mergedDir); err != nil {
			return "", err
		}
	}

	var purge []string
	for _, n := range names {
		for _, sd := range o.stageDirs() {
			purge = append(purge, filepath.Join(sd, n))
		}
		purge = append(purge, o.clipFiles(n)...)
		if th := o.D.Thumbnail(n); th != "" {
			purge = append(purge, th)
		}
	}
	if _, err := o.Store.Purge(purge...); err != nil {
		return "", err
	}

	x := o.D.SceneIndex()
	for _, n := range names {
		o.D.DropClipEntries(n)
		delete(o.D.ProcessedHints, n)
	}
	for _, n := range names[1:] {
		if err := x.Remove(n); err != nil {
			return "", err
		}
	}
	if err := x.Rename(names[0], merged, ""); err != nil {
		return "", err
	}
	_ = x.ClearLabel(merged)
	x.Jump(x.Position(merged))
	o.thumbnail(ctx, merged)
	o.Log.Info("merged scenes", "from", names[0], "to", names[len(names)-1], "scene", merged)
	return merged, o.save()
}

// Runs returns the maximal runs of two or more kept scenes whose ranges are
// contiguous.
func (o *Ops) Runs() [][]string {
	kept := o.D.Kept()
	var runs [][]string
	var cur []string
	flush := func() {
		if len(cur) > 1 {
			runs = append(runs, cur)
		}
		cur = nil
	}
	var prev scene.ID
	for _, n := range kept {
		id, err := scene.Parse(n)
		if err != nil {
			flush()
			continue
		}
		if len(cur) > 0 && prev.Adjacent(id) {
			cur = append(cur, n)
		} else {
			flush()
			cur = []string{n}
		}
		prev = id
	}
	flush()
	return runs
}

// Coalesce merges every run reported by Runs and returns the merged names.
// With dryRun set nothing changes and the names the runs would get are
// returned.
func (o *Ops) Coalesce(ctx context.Context, dryRun bool) ([]string, error) {
	runs := o.Runs()
	out := make([]string, 0, len(runs))
	for _, run := range runs {
		first := scene.MustParse(run[0])
		last := scene.MustParse(run[len(run)-1])
		out = append(out, scene.ID{First: first.First, Last: last.Last, Width: first.Width}.String())
	}
	if dryRun {
		return out, nil
	}
	for r := len(runs) - 1; r >= 0; r-- {
		run := runs[r]
		x := o.D.SceneIndex()
		if _, err := o.Merge(ctx, x.Position(run[0]), x.Position(run[len(run)-1])); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ForceDrop drops a scene after compilation: its frames move to
// DROPPED_SCENES, its stage outputs and clips are purged and the audio
// clips are invalidated because the kept timeline changed.
func (o *Ops) ForceDrop(name string) error {
	x := o.D.SceneIndex()
	if !x.Has(name) {
		return fmt.Errorf("%w: %s", scene.ErrUnknownScene, name)
	}
	l := o.D.Layout()
	src := filepath.Join(l.Scenes, name)
	if util.IsDir(src) {
		if err := util.MovePath(src, filepath.Join(l.Dropped, name)); err != nil {
			return fmt.Errorf("force drop %s: %w", name, err)
		}
	}
	if err := x.SetState(name, scene.Drop); err != nil {
		return err
	}

	var purge []string
	for _, sd := range o.stageDirs() {
		purge = append(purge, filepath.Join(sd, name))
	}
	purge = append(purge, o.clipFiles(name)...)
	audio, _ := util.ListFiles(l.AudioClips, "")
	purge = append(purge, audio...)
	if _, err := o.Store.Purge(purge...); err != nil {
		return err
	}
	o.D.DropClipEntries(name)
	o.D.AudioClips = nil
	delete(o.D.ProcessedHints, name)
	o.Log.Warn("force dropped scene", "scene", name)
	return o.save()
}

func (o *Ops) clipFiles(name string) []string {
	l := o.D.Layout()
	var out []string
	for _, dir := range []string{l.AudioClips, l.VideoClips, l.Clips} {
		out = append(out, framestore.SceneFiles(dir, name)...)
	}
	return out
}

func (o *Ops) purgeClips(name string) error {
	files := o.clipFiles(name)
	o.D.DropClipEntries(name)
	_, err := o.Store.Purge(files...)
	return err
}

func (o *Ops) purgeThumbnail(name string) error {
	th := o.D.Thumbnail(name)
	if th == "" {
		return nil
	}
	_, err := o.Store.Purge(th)
	return err
}

func (o *Ops) renameProcessedHint(old string, names ...string) {
	sig, ok := o.D.ProcessedHints[old]
	if !ok {
		return
	}
	delete(o.D.ProcessedHints, old)
	for _, n := range names {
		o.D.ProcessedHints[n] = sig
	}
}

// thumbnail regenerates the thumbnail of a scene; a failure only leaves the
// scene without one.
func (o *Ops) thumbnail(ctx context.Context, name string) {
	if o.Thumbs == nil {
		return
	}
	path, err := o.Thumbs.Thumbnail(ctx, name, o.D.ScenePath(name))
	if err != nil {
		o.Log.Warn("thumbnail failed", "scene", name, "err", err)
		return
	}
	_ = o.D.SetThumbnail(name, path)
}

// RefreshThumbnails regenerates the thumbnail of every scene.
func (o *Ops) RefreshThumbnails(ctx context.Context, rep progress.Reporter) error {
	rep = progress.OrNop(rep)
	names := append([]string(nil), o.D.Names...)
	for i, n := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.thumbnail(ctx, n)
		rep.Update(progress.Update{Stage: progress.StageThumbnails, Current: i + 1, Total: len(names), Message: n})
	}
	return o.save()
}

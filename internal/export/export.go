// Package export moves scenes between projects: it writes the kept scenes
// of a project out as a new independent project, rebuilds a project's
// frames from its source video, and imports the scenes of a sibling project
// cut from the same source.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"remixer/internal/framestore"
	"remixer/internal/logging"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/sceneops"
	"remixer/internal/util"
)

var (
	ErrTargetNotEmpty  = errors.New("export target is not empty")
	ErrNothingKept     = errors.New("no kept scenes to export")
	ErrSourceMissing   = errors.New("source video is missing")
	ErrDifferentSource = errors.New("projects do not share a source video")
	ErrOverlap         = errors.New("scene ranges overlap")
)

// Renderer renders the source video into numbered frames.
type Renderer interface {
	RenderSourceFrames(ctx context.Context, video string, fps float64, outDir string, deinterlace bool, frameCount, minWidth int) (int, error)
}

// Exporter works on one open project.
type Exporter struct {
	D        *project.Descriptor
	Store    *framestore.Store
	Thumbs   sceneops.Thumbnailer
	Log      *log.Logger
	Reporter progress.Reporter
}

// New creates an Exporter for d. thumbs may be nil, which skips thumbnail
// regeneration on recovery.
func New(d *project.Descriptor, thumbs sceneops.Thumbnailer, logger *log.Logger, rep progress.Reporter) *Exporter {
	return &Exporter{
		D:        d,
		Store:    d.Store(logger),
		Thumbs:   thumbs,
		Log:      logging.WithComponent(logger, "export"),
		Reporter: progress.OrNop(rep),
	}
}

// Export writes the kept scenes into a new project at dst and returns its
// descriptor. The new project starts at the choose step with every scene
// kept and no processed material.
func (e *Exporter) Export(ctx context.Context, dst string) (*project.Descriptor, error) {
	dst, err := filepath.Abs(dst)
	if err != nil {
		return nil, err
	}
	if util.HasContent(dst) {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotEmpty, dst)
	}
	kept := e.D.Kept()
	if len(kept) == 0 {
		return nil, ErrNothingKept
	}
	if err := util.EnsureDir(dst); err != nil {
		return nil, err
	}
	e.Log.Info("exporting kept scenes", "to", dst, "scenes", len(kept))

	if err := project.SaveTo(e.D, filepath.Join(dst, project.DescriptorName)); err != nil {
		return nil, err
	}
	nd, err := project.Port(e.D.ProjectPath, dst)
	if err != nil {
		return nil, err
	}
	nd.ProjectPath = dst
	nd.ApplyLayout(framestore.NewLayout(dst))
	store := nd.Store(e.Log)
	if err := store.EnsureLayout(); err != nil {
		return nil, err
	}

	if err := e.copySources(nd, dst); err != nil {
		return nil, err
	}

	idx := scene.Index{}
	l := nd.Layout()
	for i, name := range kept {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := util.CopyDir(e.D.ScenePath(name), filepath.Join(l.Scenes, name)); err != nil {
			return nil, fmt.Errorf("copy scene %s: %w", name, err)
		}
		thumb := ""
		if src := e.D.Thumbnail(name); src != "" && util.Exists(src) {
			thumb = filepath.Join(l.Thumbnails, filepath.Base(src))
			if err := util.CopyFile(src, thumb); err != nil {
				return nil, fmt.Errorf("copy thumbnail %s: %w", name, err)
			}
		}
		if err := idx.Add(name, scene.Keep, thumb); err != nil {
			return nil, err
		}
		if label := e.D.Label(name); label != "" {
			_ = idx.SetLabel(name, label)
		}
		e.Reporter.Update(progress.Update{Stage: progress.StageExport, Current: i + 1, Total: len(kept), Message: name})
	}
	nd.Index = idx
	resetProcessed(nd)
	nd.Progress = project.ProgressChoose
	nd.SourceFramesInvalid = true
	if err := project.Save(nd); err != nil {
		return nil, err
	}
	return nd, nil
}

// copySources copies the source video, and the source audio when it is a
// separate file, into dst and points nd at the copies.
func (e *Exporter) copySources(nd *project.Descriptor, dst string) error {
	if !util.Exists(e.D.SourceVideo) {
		return fmt.Errorf("%w: %s", ErrSourceMissing, e.D.SourceVideo)
	}
	video := filepath.Join(dst, filepath.Base(e.D.SourceVideo))
	if err := util.CopyFile(e.D.SourceVideo, video); err != nil {
		return fmt.Errorf("copy source video: %w", err)
	}
	audio := video
	if e.D.SourceAudio != "" && e.D.SourceAudio != e.D.SourceVideo && util.Exists(e.D.SourceAudio) {
		audio = filepath.Join(dst, filepath.Base(e.D.SourceAudio))
		if audio == video {
			audio = filepath.Join(dst, "audio-"+filepath.Base(e.D.SourceAudio))
		}
		if err := util.CopyFile(e.D.SourceAudio, audio); err != nil {
			return fmt.Errorf("copy source audio: %w", err)
		}
	}
	nd.SourceVideo = video
	nd.SourceAudio = audio
	return nil
}

func resetProcessed(d *project.Descriptor) {
	d.AudioClips = nil
	d.VideoClips = nil
	d.Clips = nil
	d.ProcessedWith = nil
	d.ProcessedHints = nil
	d.ProcessedContentInvalid = false
	d.OutputFilepath = ""
}

// Recover rebuilds the project's frames from its source video. Generated
// directories are purged, the source is rendered again and every scene
// directory is refilled from the frame range its name records. A project
// past compile comes back at compile so its stages are rebuilt.
func (e *Exporter) Recover(ctx context.Context, r Renderer) error {
	d := e.D
	if !util.Exists(d.SourceVideo) {
		return fmt.Errorf("%w: %s", ErrSourceMissing, d.SourceVideo)
	}
	ids, err := scene.ParseAll(d.Names)
	if err != nil {
		return err
	}
	l := d.Layout()
	dirs := append([]string{l.Source, l.Scenes, l.Dropped, l.Thumbnails}, l.Stages()...)
	dirs = append(dirs, l.Clips, l.AudioClips, l.VideoClips)
	if _, err := e.Store.Purge(dirs...); err != nil {
		return err
	}
	if err := e.Store.EnsureLayout(); err != nil {
		return err
	}

	e.Reporter.Update(progress.Update{Stage: progress.StageRecover, Message: "rendering source frames"})
	width, err := r.RenderSourceFrames(ctx, d.SourceVideo, d.ProjectFPS, l.Source, d.Deinterlace, d.FrameCount, d.IndexWidth)
	if err != nil {
		return err
	}
	if d.IndexWidth != 0 && width != d.IndexWidth {
		return fmt.Errorf("recover: rendered index width %d, scenes use %d", width, d.IndexWidth)
	}

	resetProcessed(d)
	if d.Progress.AtLeast(project.ProgressCompile) {
		d.Progress = project.ProgressCompile
	}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := id.String()
		if err := e.Store.CopySourceRange(width, id.First, id.Last, d.ScenePath(name)); err != nil {
			return fmt.Errorf("rebuild scene %s: %w", name, err)
		}
		_ = d.SetThumbnail(name, "")
		e.Reporter.Update(progress.Update{Stage: progress.StageRecover, Current: i + 1, Total: len(ids), Message: name})
	}
	d.SourceFramesInvalid = false

	ops := sceneops.New(d, e.Thumbs, e.Log)
	if err := ops.RefreshThumbnails(ctx, e.Reporter); err != nil {
		return err
	}
	e.Log.Info("project recovered", "scenes", len(ids))
	return nil
}

// Import merges the scenes of the project at otherRoot into this one and
// returns the imported scene names. Both projects must be cut from the
// same source at the same index width and their ranges may not overlap;
// scenes present in both are left as they are. The current descriptor is
// backed up first.
func (e *Exporter) Import(ctx context.Context, otherRoot string) ([]string, error) {
	d := e.D
	od, err := project.Load(filepath.Join(otherRoot, project.DescriptorName))
	if err != nil {
		return nil, err
	}
	if !sameSource(d, od) {
		return nil, fmt.Errorf("%w: %s and %s", ErrDifferentSource, d.SourceVideo, od.SourceVideo)
	}
	if d.IndexWidth != od.IndexWidth {
		return nil, fmt.Errorf("%w: index width %d and %d", ErrDifferentSource, d.IndexWidth, od.IndexWidth)
	}
	incoming, err := newScenes(d, od)
	if err != nil {
		return nil, err
	}
	if util.Exists(d.Path()) {
		if _, err := project.Backup(d.ProjectPath); err != nil {
			return nil, err
		}
	}

	l := d.Layout()
	anyKept := false
	for i, name := range incoming {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state := od.State(name)
		thumb := ""
		if src := od.Thumbnail(name); src != "" && util.Exists(src) {
			thumb = filepath.Join(l.Thumbnails, filepath.Base(src))
			if err := util.CopyFile(src, thumb); err != nil {
				return nil, fmt.Errorf("copy thumbnail %s: %w", name, err)
			}
		}
		if err := d.Add(name, state, thumb); err != nil {
			return nil, err
		}
		if err := util.CopyDir(od.ScenePath(name), d.ScenePath(name)); err != nil {
			return nil, fmt.Errorf("copy scene %s: %w", name, err)
		}
		if label := od.Label(name); label != "" {
			_ = d.SetLabel(name, label)
		}
		anyKept = anyKept || state == scene.Keep
		e.Reporter.Update(progress.Update{Stage: progress.StageExport, Current: i + 1, Total: len(incoming), Message: name})
	}
	for _, name := range od.Names {
		if d.Has(name) && d.Label(name) == "" && od.Label(name) != "" {
			_ = d.SetLabel(name, od.Label(name))
		}
	}
	if anyKept && d.Progress.AtLeast(project.ProgressCompile) {
		d.ProcessedContentInvalid = true
	}
	e.Log.Info("imported scenes", "from", otherRoot, "scenes", len(incoming))
	if err := project.Save(d); err != nil {
		return nil, err
	}
	return incoming, nil
}

func sameSource(a, b *project.Descriptor) bool {
	if filepath.Clean(a.SourceVideo) == filepath.Clean(b.SourceVideo) {
		return true
	}
	if filepath.Base(a.SourceVideo) != filepath.Base(b.SourceVideo) {
		return false
	}
	return a.FrameCount == b.FrameCount && sameSize(a.SourceVideo, b.SourceVideo)
}

func sameSize(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return sa.Size() == sb.Size()
}

// newScenes lists the scenes of od missing from d, failing if any of them
// overlaps a scene d already has.
func newScenes(d, od *project.Descriptor) ([]string, error) {
	have, err := scene.ParseAll(d.Names)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range od.Names {
		if d.Has(name) {
			continue
		}
		id, err := scene.Parse(name)
		if err != nil {
			return nil, err
		}
		for _, h := range have {
			if id.First <= h.Last && h.First <= id.Last {
				return nil, fmt.Errorf("%w: %s and %s", ErrOverlap, name, h.String())
			}
		}
		out = append(out, name)
	}
	return out, nil
}

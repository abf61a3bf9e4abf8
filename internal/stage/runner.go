package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"remixer/internal/adapter"
	"remixer/internal/framestore"
	"remixer/internal/hint"
	"remixer/internal/imaging"
	"remixer/internal/logging"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/util"
	"remixer/internal/zoom"
)

// DefaultTilingOver is the crop area in pixels above which the upscaler
// works in tiles.
const DefaultTilingOver = 1920 * 1080

// UpscaleFactor is the factor the external upscaler always runs at; lower
// targets are reached by downscaling its output.
const UpscaleFactor = 4

// StageFailedError reports a stage that failed for one scene. The scene is
// left with an empty output directory and the run goes on.
type StageFailedError struct {
	Stage Kind
	Scene string
	Err   error
}

func (e *StageFailedError) Error() string {
	return fmt.Sprintf("%s of scene %s failed: %v", e.Stage, e.Scene, e.Err)
}

func (e *StageFailedError) Unwrap() error { return e.Err }

// Runner processes the kept scenes of a project through the enabled stages.
type Runner struct {
	D            *project.Descriptor
	Store        *framestore.Store
	Interpolator adapter.Interpolator
	Upscaler     adapter.Upscaler
	TilingOver   int
	Separator    string
	Log          *log.Logger
	Reporter     progress.Reporter
}

// New creates a Runner for d.
func New(d *project.Descriptor, ip adapter.Interpolator, up adapter.Upscaler, logger *log.Logger, rep progress.Reporter) *Runner {
	return &Runner{
		D:            d,
		Store:        d.Store(logger),
		Interpolator: ip,
		Upscaler:     up,
		TilingOver:   DefaultTilingOver,
		Separator:    scene.DefaultSeparator,
		Log:          logging.WithComponent(logger, "stage"),
		Reporter:     progress.OrNop(rep),
	}
}

// Report summarizes a processing run.
type Report struct {
	Graph    Graph
	Purged   []Kind
	Produced map[Kind][]string
	Failures []*StageFailedError
}

// Hints parses the hints of every kept scene.
func (r *Runner) Hints() (map[string]hint.Hints, error) {
	out := map[string]hint.Hints{}
	for _, n := range r.D.Kept() {
		h, err := hint.ForScene(r.D.SceneIndex(), n, r.Separator)
		if err != nil {
			return nil, err
		}
		if !h.Empty() {
			out[n] = h
		}
	}
	return out, nil
}

// Plan returns the stage graph the next run would use.
func (r *Runner) Plan() (Graph, error) {
	hints, err := r.Hints()
	if err != nil {
		return Graph{}, err
	}
	return Build(r.D, hints), nil
}

// Baseline is the project's whole-scene view, defaulting resize and crop to
// the display size of the source.
func Baseline(d *project.Descriptor) zoom.Baseline {
	b := zoom.Baseline{
		ResizeW: d.ResizeW,
		ResizeH: d.ResizeH,
		CropW:   d.CropW,
		CropH:   d.CropH,
		OffsetX: d.CropOffsetX,
		OffsetY: d.CropOffsetY,
	}
	if b.ResizeW <= 0 || b.ResizeH <= 0 {
		b.ResizeW, b.ResizeH = d.VideoDetails.DisplayWidth, d.VideoDetails.DisplayHeight
	}
	if b.CropW <= 0 || b.CropH <= 0 {
		b.CropW, b.CropH = b.ResizeW, b.ResizeH
	}
	return b
}

// Views resolves the resize view of each scene in order. Scenes that are
// not resized are left out. An animated hint without a from or to view uses
// the view the previous animated hint ended on.
func Views(base zoom.Baseline, selected bool, names []string, hints map[string]hint.Hints, frames func(name string) int) map[string]zoom.Result {
	out := map[string]zoom.Result{}
	saved := base.Default()
	for _, n := range names {
		h := hints[n]
		if !selected && h.Resize == nil {
			continue
		}
		res := zoom.Resolve(h.Resize, base, saved, frames(n))
		saved = res.Saved
		out[n] = res
	}
	return out
}

// Process brings the stage outputs in line with the current selection and
// hints: invalid, stale and incomplete output is purged, then every enabled
// stage produces the scenes it is missing. Per-scene failures are collected
// in the report; only cancellation and storage errors abort the run.
func (r *Runner) Process(ctx context.Context) (*Report, error) {
	kept := r.D.Kept()
	hints, err := r.Hints()
	if err != nil {
		return nil, err
	}
	g := Build(r.D, hints)
	rep := &Report{Graph: g, Produced: map[Kind][]string{}}

	if r.D.ProcessedContentInvalid {
		purged, err := PurgeAll(r.Store, g)
		if err != nil {
			return rep, err
		}
		rep.Purged = append(rep.Purged, purged...)
		r.D.ProcessedContentInvalid = false
		r.D.ProcessedHints = nil
	}
	purged, err := PurgeStale(r.Store, g, ChangesSince(r.D.ProcessedWith, r.D.StageOptions))
	if err != nil {
		return rep, err
	}
	rep.Purged = append(rep.Purged, purged...)
	if purged, err = PurgeIncomplete(r.Store, g, kept); err != nil {
		return rep, err
	}
	rep.Purged = append(rep.Purged, purged...)
	if err := r.purgeChangedHints(g, kept, hints); err != nil {
		return rep, err
	}

	produced := map[string]bool{}
	resynthesized := map[string]bool{}
	for _, s := range g.Stages {
		if !s.Enabled() {
			continue
		}
		if err := r.runStage(ctx, g, s, kept, hints, rep); err != nil {
			return rep, err
		}
		for _, n := range rep.Produced[s.Kind] {
			produced[n] = true
			if s.Kind == Resynth {
				resynthesized[n] = true
			}
		}
	}
	if err := r.purgeClips(produced, resynthesized); err != nil {
		return rep, err
	}

	opts := r.D.StageOptions
	r.D.ProcessedWith = &opts
	r.D.ProcessedHints = map[string]string{}
	for _, n := range kept {
		if sig := hints[n].Signature(); sig != "" {
			r.D.ProcessedHints[n] = sig
		}
	}
	r.Reporter.Update(progress.Update{Stage: progress.StageCompleted, Message: "processing done"})
	return rep, r.save()
}

func (r *Runner) save() error {
	if r.D.ProjectPath == "" {
		return nil
	}
	return project.Save(r.D)
}

// purgeChangedHints purges the stage output of scenes whose hints differ
// from the ones they were processed with.
func (r *Runner) purgeChangedHints(g Graph, kept []string, hints map[string]hint.Hints) error {
	if r.D.ProcessedWith == nil {
		return nil
	}
	dirs := make([]string, len(g.Stages))
	for i, s := range g.Stages {
		dirs[i] = s.Dir
	}
	for _, n := range kept {
		if r.D.ProcessedHints[n] == hints[n].Signature() {
			continue
		}
		if _, err := r.Store.PurgeScene(n, dirs...); err != nil {
			return err
		}
		r.Log.Info("hints changed, reprocessing", "scene", n)
	}
	return nil
}

// purgeClips purges the video and muxed clips of scenes that got new stage
// output, and their audio clips when resynthesis changed their length.
func (r *Runner) purgeClips(produced, resynthesized map[string]bool) error {
	if len(produced) == 0 {
		return nil
	}
	l := r.D.Layout()
	names := make([]string, 0, len(produced))
	for n := range produced {
		names = append(names, n)
	}
	sort.Strings(names)
	var paths []string
	for _, n := range names {
		paths = append(paths, framestore.SceneFiles(l.VideoClips, n)...)
		paths = append(paths, framestore.SceneFiles(l.Clips, n)...)
		if resynthesized[n] {
			paths = append(paths, framestore.SceneFiles(l.AudioClips, n)...)
		}
	}
	if _, err := r.Store.Purge(paths...); err != nil {
		return err
	}
	audio := r.D.AudioClips
	r.D.DropClipEntries(names...)
	r.D.AudioClips = nil
	for _, a := range audio {
		if !resynthesized[project.ClipScene(a)] {
			r.D.AudioClips = append(r.D.AudioClips, a)
		}
	}
	return nil
}

func (r *Runner) runStage(ctx context.Context, g Graph, s Stage, kept []string, hints map[string]hint.Hints, rep *Report) error {
	if err := util.EnsureDir(s.Dir); err != nil {
		return err
	}
	in := g.Input(s.Kind)
	var views map[string]zoom.Result
	if s.Kind == Resize {
		views = Views(Baseline(r.D), s.Selected, kept, hints, func(name string) int {
			return framestore.FrameCount(filepath.Join(in, name))
		})
	}
	for i, name := range kept {
		if err := ctx.Err(); err != nil {
			return err
		}
		frames, err := framestore.Frames(filepath.Join(in, name))
		if err != nil {
			return err
		}
		h := hints[name]
		var view *zoom.Result
		if v, ok := views[name]; ok {
			view = &v
		}
		out := filepath.Join(s.Dir, name)
		if util.IsDir(out) {
			continue
		}
		if view != nil {
			for _, w := range view.Warnings {
				r.Log.Warn("resize hint", "scene", name, "warning", w)
				r.Reporter.Log(progress.Log{Stage: s.Kind.Progress(), Warn: true, Line: name + ": " + w})
			}
		}
		r.Reporter.Update(progress.Update{Stage: s.Kind.Progress(), Current: i, Total: len(kept), Message: name})
		if err := r.runScene(ctx, s, name, frames, h, view); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fail := &StageFailedError{Stage: s.Kind, Scene: name, Err: err}
			rep.Failures = append(rep.Failures, fail)
			r.Log.Warn("stage failed", "stage", s.Kind, "scene", name, "err", err)
			r.Reporter.Log(progress.Log{Stage: s.Kind.Progress(), Warn: true, Line: fail.Error()})
			if err := util.EnsureDir(out); err != nil {
				return err
			}
		}
		rep.Produced[s.Kind] = append(rep.Produced[s.Kind], name)
	}
	r.Reporter.Update(progress.Update{Stage: s.Kind.Progress(), Current: len(kept), Total: len(kept)})
	return nil
}

// runScene writes the scene's output into a hidden directory and renames it
// into place once complete, so an interrupted run never leaves a partial
// scene directory behind.
func (r *Runner) runScene(ctx context.Context, s Stage, name string, frames []string, h hint.Hints, view *zoom.Result) error {
	tmp := filepath.Join(s.Dir, "."+name)
	work := filepath.Join(s.Dir, ".work-"+name)
	_ = os.RemoveAll(tmp)
	_ = os.RemoveAll(work)
	defer os.RemoveAll(work)
	if err := util.EnsureDir(tmp); err != nil {
		return err
	}
	if err := r.transform(ctx, s, name, frames, h, view, tmp, work); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(s.Dir, name))
}

func (r *Runner) transform(ctx context.Context, s Stage, name string, frames []string, h hint.Hints, view *zoom.Result, out, work string) error {
	sr := &series{ip: r.Interpolator, work: work}
	switch s.Kind {
	case Resize:
		if view == nil {
			return r.emit(frames, out, name)
		}
		return r.resize(s, name, frames, view.Params, out)
	case Resynth:
		opt, on := h.ResolveResynth(s.Selected, r.D.ResynthOption)
		if !on {
			return r.emit(frames, out, name)
		}
		if r.Interpolator == nil {
			return fmt.Errorf("no interpolator configured")
		}
		res, err := sr.resynthesize(ctx, opt, frames)
		if err != nil {
			return err
		}
		return r.emit(res, out, name)
	case Inflate:
		inf, err := h.ResolveInflation(s.Selected, r.D.InflateBy, r.D.InflateSlow)
		if err != nil {
			return err
		}
		if inf.Factor <= 1 {
			return r.emit(frames, out, name)
		}
		if r.Interpolator == nil {
			return fmt.Errorf("no interpolator configured")
		}
		res, err := sr.inflate(ctx, frames, inf.Splits())
		if err != nil {
			return err
		}
		return r.emit(res, out, name)
	case Upscale:
		factor, on := h.ResolveUpscale(s.Selected, r.D.UpscaleOption)
		if !on {
			return r.emit(frames, out, name)
		}
		return r.upscale(ctx, name, frames, factor, out, work)
	}
	return fmt.Errorf("unknown stage %d", s.Kind)
}

func (r *Runner) width() int {
	if r.D.IndexWidth > 0 {
		return r.D.IndexWidth
	}
	return scene.DefaultMinWidth
}

// emit links files into out as the scene's numbered stage frames.
func (r *Runner) emit(files []string, out, name string) error {
	for i, f := range files {
		if err := util.LinkOrCopy(f, filepath.Join(out, framestore.StageFrameName(name, r.width(), i))); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) resize(s Stage, name string, frames []string, params zoom.ParamFunc, out string) error {
	for i, f := range frames {
		p := params(i)
		dst := filepath.Join(out, framestore.StageFrameName(name, r.width(), i))
		if err := imaging.ResizeCropFile(f, dst, p.ResizeW, p.ResizeH, p.CropW, p.CropH, p.OffsetX, p.OffsetY); err != nil {
			return fmt.Errorf("frame %s: %w", filepath.Base(f), err)
		}
		r.Reporter.Update(progress.Update{Stage: s.Kind.Progress(), Level: 1, Current: i + 1, Total: len(frames)})
	}
	return nil
}

// Tiling reports whether the upscaler should tile frames of the project.
func (r *Runner) Tiling() bool {
	b := Baseline(r.D)
	return r.TilingOver > 0 && b.CropW*b.CropH > r.TilingOver
}

func (r *Runner) upscale(ctx context.Context, name string, frames []string, factor int, out, work string) error {
	if r.Upscaler == nil {
		return fmt.Errorf("no upscaler configured")
	}
	if len(frames) == 0 {
		return nil
	}
	ups, err := r.Upscaler.Upscale(ctx, frames, work, UpscaleFactor, r.Tiling())
	if err != nil {
		return err
	}
	if len(ups) != len(frames) {
		return fmt.Errorf("upscaler returned %d of %d frames", len(ups), len(frames))
	}
	if factor == UpscaleFactor {
		return r.emit(ups, out, name)
	}
	for i, u := range ups {
		w, h, err := imaging.Size(frames[i])
		if err != nil {
			return err
		}
		dst := filepath.Join(out, framestore.StageFrameName(name, r.width(), i))
		if err := imaging.ScaleFile(u, dst, w*factor, h*factor); err != nil {
			return fmt.Errorf("frame %s: %w", filepath.Base(u), err)
		}
	}
	return nil
}

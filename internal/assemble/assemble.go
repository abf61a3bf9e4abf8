// Package assemble turns the processed scenes into the remix: one audio and
// one video clip per kept scene, muxed into scene clips and concatenated in
// label order, optionally with a second render that captions every scene.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"remixer/internal/encoder"
	"remixer/internal/framestore"
	"remixer/internal/hint"
	"remixer/internal/logging"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/sceneops"
	"remixer/internal/stage"
	"remixer/internal/util"
)

// ErrNothingToSave is returned when no kept scene has frames to render.
var ErrNothingToSave = errors.New("no kept scenes with frames to save")

// DefaultSampleRate is used for silent tracks when the source has no audio.
const DefaultSampleRate = 48000

// Settings are the tool-wide output settings.
type Settings struct {
	AudioFormat string
	VideoExt    string
	FontFactor  int
	Label       encoder.LabelStyle
	Separator   string
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		AudioFormat: "wav",
		VideoExt:    "mp4",
		FontFactor:  16,
		Label:       encoder.LabelStyle{Position: "bottom", Border: 4},
		Separator:   scene.DefaultSeparator,
	}
}

// Options select the output of one save.
type Options struct {
	Output  string
	Quality int
	Labeled bool
}

// Result describes a finished save.
type Result struct {
	Output   string
	Labeled  string
	Dropped  []string
	Reused   []string
	Skipped  []string
	Warnings []string
}

// Assembler saves the remix of one project.
type Assembler struct {
	D        *project.Descriptor
	Store    *framestore.Store
	Encoder  *encoder.Encoder
	Settings Settings
	Log      *log.Logger
	Reporter progress.Reporter
	drop     *sceneops.Ops
}

// New creates an Assembler for d.
func New(d *project.Descriptor, enc *encoder.Encoder, st Settings, logger *log.Logger, rep progress.Reporter) *Assembler {
	return &Assembler{
		D:        d,
		Store:    d.Store(logger),
		Encoder:  enc,
		Settings: st,
		Log:      logging.WithComponent(logger, "assemble"),
		Reporter: progress.OrNop(rep),
		drop:     sceneops.New(d, nil, logger),
	}
}

// plan is everything the save needs to know about one kept scene.
type plan struct {
	name    string
	frames  string
	id      scene.ID
	trim    float64
	inflate hint.Inflation
}

// OutputPath is the remix path for opts, falling back to the last output
// and then to remix.<ext> in the project directory.
func (a *Assembler) OutputPath(opts Options) string {
	switch {
	case opts.Output != "":
		return opts.Output
	case a.D.OutputFilepath != "":
		return a.D.OutputFilepath
	}
	return filepath.Join(a.D.ProjectPath, "remix."+a.ext())
}

// LabeledPath is the path of the captioned render of output.
func LabeledPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "-labeled" + ext
}

func (a *Assembler) ext() string {
	if a.Settings.VideoExt == "" {
		return "mp4"
	}
	return strings.TrimPrefix(a.Settings.VideoExt, ".")
}

func (a *Assembler) audioFormat() string {
	if a.Settings.AudioFormat == "" {
		return "wav"
	}
	return a.Settings.AudioFormat
}

// Save renders the remix. Kept scenes whose processed frames are missing
// are dropped first; audio clips are rebuilt when they no longer match the
// kept scenes, video clips are reused when present.
func (a *Assembler) Save(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{Output: a.OutputPath(opts)}
	if opts.Quality <= 0 {
		opts.Quality = a.D.OutputQuality
	}
	hints, err := a.hints()
	if err != nil {
		return nil, err
	}
	g := stage.Build(a.D, hints)
	if err := a.autoDrop(g, res); err != nil {
		return res, err
	}
	plans, err := a.plans(g, hints)
	if err != nil {
		return res, err
	}
	if len(plans) == 0 {
		return res, ErrNothingToSave
	}

	remux := map[string]bool{}
	if !a.audioValid(plans) {
		if err := a.rebuildAudio(ctx, plans, res); err != nil {
			return res, err
		}
		for _, p := range plans {
			remux[p.name] = true
		}
	}
	if err := a.videoClips(ctx, plans, opts.Quality, remux, res); err != nil {
		return res, err
	}
	clips, err := a.sceneClips(ctx, plans, remux, res)
	if err != nil {
		return res, err
	}
	if len(clips) == 0 {
		return res, ErrNothingToSave
	}

	order := scene.SaveOrder(a.D.SceneIndex(), names(clips), a.Settings.Separator)
	paths := make([]string, len(order))
	for i, o := range order {
		paths[i] = clips[o.Name]
	}
	a.Reporter.Update(progress.Update{Stage: progress.StageConcat, Message: filepath.Base(res.Output)})
	if _, err := a.Encoder.ConcatVideos(ctx, paths, res.Output); err != nil {
		return res, fmt.Errorf("concatenate: %w", err)
	}
	if opts.Labeled {
		labeled, err := a.labeled(ctx, order, clips, opts.Quality, LabeledPath(res.Output))
		if err != nil {
			return res, err
		}
		res.Labeled = labeled
	}

	a.D.OutputFilepath = res.Output
	a.D.OutputQuality = opts.Quality
	a.D.Progress = project.ProgressSave
	var size int64
	if fi, err := os.Stat(res.Output); err == nil {
		size = fi.Size()
	}
	a.Reporter.Result(progress.Result{OutputPath: res.Output, Bytes: size})
	a.Log.Info("saved remix", "output", res.Output, "scenes", len(paths))
	return res, a.save()
}

func (a *Assembler) save() error {
	if a.D.ProjectPath == "" {
		return nil
	}
	return project.Save(a.D)
}

func (a *Assembler) hints() (map[string]hint.Hints, error) {
	out := map[string]hint.Hints{}
	for _, n := range a.D.Kept() {
		h, err := hint.ForScene(a.D.SceneIndex(), n, a.Settings.Separator)
		if err != nil {
			return nil, err
		}
		out[n] = h
	}
	return out, nil
}

// autoDrop force-drops kept scenes whose finished frame directory is empty.
func (a *Assembler) autoDrop(g stage.Graph, res *Result) error {
	final := g.Final()
	for _, n := range a.D.Kept() {
		if framestore.FrameCount(filepath.Join(final, n)) > 0 {
			continue
		}
		if err := a.drop.ForceDrop(n); err != nil {
			return fmt.Errorf("auto drop %s: %w", n, err)
		}
		res.Dropped = append(res.Dropped, n)
		msg := "scene " + n + " has no processed frames, dropped"
		res.Warnings = append(res.Warnings, msg)
		a.Reporter.Log(progress.Log{Stage: progress.StageClips, Warn: true, Line: msg})
	}
	return nil
}

func (a *Assembler) plans(g stage.Graph, hints map[string]hint.Hints) ([]plan, error) {
	final := g.Final()
	resynth := g.Stage(stage.Resynth)
	inflate := g.Stage(stage.Inflate)
	var out []plan
	for _, n := range a.D.Kept() {
		h := hints[n]
		id, err := scene.Parse(n)
		if err != nil {
			return nil, err
		}
		p := plan{name: n, frames: filepath.Join(final, n), id: id}
		if resynth.Enabled() {
			if opt, on := h.ResolveResynth(resynth.Selected, a.D.ResynthOption); on {
				p.trim = float64(id.Count()-stage.ResynthCount(opt, id.Count())) / 2
			}
		}
		p.inflate = hint.Inflation{Factor: 1, Realtime: 1, Slowdown: 1, Mode: project.SlowNo}
		if inflate.Enabled() {
			if p.inflate, err = h.ResolveInflation(inflate.Selected, a.D.InflateBy, a.D.InflateSlow); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// audioValid reports whether the recorded audio clips cover exactly the
// scenes being saved and are all on disk.
func (a *Assembler) audioValid(plans []plan) bool {
	if len(a.D.AudioClips) != len(plans) {
		return false
	}
	have := map[string]bool{}
	for _, p := range a.D.AudioClips {
		if !util.Exists(p) {
			return false
		}
		have[project.ClipScene(p)] = true
	}
	for _, p := range plans {
		if !have[p.name] {
			return false
		}
	}
	return true
}

// Span is the source time range of a scene in seconds, trimmed by trim
// frames at each edge.
func Span(id scene.ID, fps, trim float64) (start, end float64) {
	return (float64(id.First) + trim) / fps, (float64(id.Last+1) - trim) / fps
}

func (a *Assembler) rebuildAudio(ctx context.Context, plans []plan, res *Result) error {
	l := a.D.Layout()
	old, _ := util.ListFiles(l.AudioClips, "")
	if _, err := a.Store.Purge(old...); err != nil {
		return err
	}
	a.D.AudioClips = nil
	for i, p := range plans {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.Reporter.Update(progress.Update{Stage: progress.StageAudio, Current: i, Total: len(plans), Message: p.name})
		out, err := a.audioClip(ctx, p, res)
		if err != nil {
			return fmt.Errorf("audio clip %s: %w", p.name, err)
		}
		a.D.AudioClips = append(a.D.AudioClips, out)
	}
	a.Reporter.Update(progress.Update{Stage: progress.StageAudio, Current: len(plans), Total: len(plans)})
	return nil
}

func (a *Assembler) audioClip(ctx context.Context, p plan, res *Result) (string, error) {
	format := a.audioFormat()
	out := filepath.Join(a.D.Layout().AudioClips, framestore.ClipName(p.name, format))
	fps := a.D.ProjectFPS
	start, end := Span(p.id, fps, p.trim)
	slowdown := float64(max(p.inflate.Slowdown, 1))
	rate := a.D.VideoDetails.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	silent := func() (string, error) {
		return a.Encoder.SilentAudio(ctx, rate, (end-start)*slowdown, format, out)
	}
	if !a.D.VideoDetails.HasAudio || (p.inflate.Mode == project.SlowSilent && slowdown > 1) {
		return silent()
	}
	if slowdown == 1 {
		return a.Encoder.SliceAudio(ctx, a.D.SourceAudio, start, end, format, out)
	}
	if _, ok := encoder.AtempoChain(p.inflate.Tempo()); !ok {
		msg := fmt.Sprintf("scene %s: tempo %g unsupported, using a silent track", p.name, p.inflate.Tempo())
		res.Warnings = append(res.Warnings, msg)
		a.Log.Warn("unsupported audio tempo", "scene", p.name, "tempo", p.inflate.Tempo())
		a.Reporter.Log(progress.Log{Stage: progress.StageAudio, Warn: true, Line: msg})
		return silent()
	}
	raw := filepath.Join(filepath.Dir(out), "."+framestore.ClipName(p.name+"-raw", format))
	defer os.Remove(raw)
	if _, err := a.Encoder.SliceAudio(ctx, a.D.SourceAudio, start, end, format, raw); err != nil {
		return "", err
	}
	return a.Encoder.ChangeTempo(ctx, raw, p.inflate.Tempo(), format, out)
}

// videoClips encodes the video clip of every scene that has none. Scenes
// whose clip fails are reported and left out of the remix.
func (a *Assembler) videoClips(ctx context.Context, plans []plan, quality int, remux map[string]bool, res *Result) error {
	l := a.D.Layout()
	have := map[string]string{}
	for _, p := range a.D.VideoClips {
		if util.Exists(p) {
			have[project.ClipScene(p)] = p
		}
	}
	a.D.VideoClips = nil
	for i, p := range plans {
		if err := ctx.Err(); err != nil {
			return err
		}
		if clip, ok := have[p.name]; ok {
			a.D.VideoClips = append(a.D.VideoClips, clip)
			res.Reused = append(res.Reused, p.name)
			continue
		}
		a.Reporter.Update(progress.Update{Stage: progress.StageVideo, Current: i, Total: len(plans), Message: p.name})
		out := filepath.Join(l.VideoClips, framestore.ClipName(p.name, a.ext()))
		if _, err := a.Encoder.EncodeFrames(ctx, p.frames, p.inflate.FPS(a.D.ProjectFPS), quality, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.skip(p.name, err, res)
			continue
		}
		a.D.VideoClips = append(a.D.VideoClips, out)
		remux[p.name] = true
	}
	var unused []string
	for _, p := range plans {
		delete(have, p.name)
	}
	for _, clip := range have {
		unused = append(unused, clip)
	}
	sort.Strings(unused)
	if _, err := a.Store.Purge(unused...); err != nil {
		return err
	}
	return nil
}

// sceneClips muxes audio and video of every scene and returns the clip of
// each scene that made it.
func (a *Assembler) sceneClips(ctx context.Context, plans []plan, remux map[string]bool, res *Result) (map[string]string, error) {
	l := a.D.Layout()
	video := byScene(a.D.VideoClips)
	audio := byScene(a.D.AudioClips)
	muxed := byScene(a.D.Clips)
	var stale []string
	planned := map[string]bool{}
	for _, p := range plans {
		planned[p.name] = true
		if c, ok := muxed[p.name]; ok && (remux[p.name] || video[p.name] == "") {
			stale = append(stale, c)
			delete(muxed, p.name)
		}
	}
	for name, c := range muxed {
		if !planned[name] {
			stale = append(stale, c)
		}
	}
	sort.Strings(stale)
	if _, err := a.Store.Purge(stale...); err != nil {
		return nil, err
	}

	out := map[string]string{}
	a.D.Clips = nil
	for i, p := range plans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, au := video[p.name], audio[p.name]
		if v == "" {
			continue
		}
		if c, ok := muxed[p.name]; ok && util.Exists(c) {
			out[p.name] = c
			a.D.Clips = append(a.D.Clips, c)
			continue
		}
		a.Reporter.Update(progress.Update{Stage: progress.StageClips, Current: i, Total: len(plans), Message: p.name})
		dst := filepath.Join(l.Clips, framestore.ClipName(p.name, a.ext()))
		if _, err := a.Encoder.ComposeAudioVideo(ctx, v, au, dst, nil); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.skip(p.name, err, res)
			continue
		}
		out[p.name] = dst
		a.D.Clips = append(a.D.Clips, dst)
	}
	return out, nil
}

func (a *Assembler) skip(name string, err error, res *Result) {
	res.Skipped = append(res.Skipped, name)
	msg := fmt.Sprintf("scene %s left out: %v", name, err)
	res.Warnings = append(res.Warnings, msg)
	a.Log.Warn("scene left out of remix", "scene", name, "err", err)
	a.Reporter.Log(progress.Log{Stage: progress.StageClips, Warn: true, Line: msg})
}

// LabelText is the caption of a scene in the labeled render: its title, or
// its name when untitled.
func LabelText(o scene.Ordered) string {
	if o.Label.Title != "" {
		return o.Label.Title
	}
	return o.Name
}

func (a *Assembler) labeled(ctx context.Context, order []scene.Ordered, clips map[string]string, quality int, out string) (string, error) {
	work := filepath.Join(a.D.Layout().Clips, ".labeled")
	if err := util.EnsureDir(work); err != nil {
		return "", err
	}
	defer os.RemoveAll(work)
	style := a.Settings.Label
	if a.Settings.FontFactor > 0 {
		style.Size = stage.Baseline(a.D).CropW / a.Settings.FontFactor
	}
	paths := make([]string, 0, len(order))
	for i, o := range order {
		a.Reporter.Update(progress.Update{Stage: progress.StageClips, Current: i, Total: len(order), Message: "label " + o.Name})
		dst := filepath.Join(work, filepath.Base(clips[o.Name]))
		if _, err := a.Encoder.DrawLabel(ctx, clips[o.Name], LabelText(o), style, quality, dst); err != nil {
			return "", fmt.Errorf("label %s: %w", o.Name, err)
		}
		paths = append(paths, dst)
	}
	a.Reporter.Update(progress.Update{Stage: progress.StageConcat, Message: filepath.Base(out)})
	return a.Encoder.ConcatVideos(ctx, paths, out)
}

func byScene(paths []string) map[string]string {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		out[project.ClipScene(p)] = p
	}
	return out
}

func names(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	return out
}

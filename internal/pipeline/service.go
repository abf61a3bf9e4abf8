// Package pipeline orchestrates the remix workflow over one project
// directory: ingest → settings → setup → choose → compile → process → save.
// Every step saves the project descriptor before it returns, so any step can
// be resumed from what is on disk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"remixer/internal/adapter"
	"remixer/internal/assemble"
	"remixer/internal/encoder"
	"remixer/internal/export"
	"remixer/internal/framestore"
	"remixer/internal/hint"
	"remixer/internal/logging"
	"remixer/internal/media"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/sceneops"
	"remixer/internal/splitter"
	"remixer/internal/stage"
	"remixer/internal/util"
	"remixer/internal/util/format"
)

var (
	ErrProjectExists = errors.New("a project already exists there")
	ErrNothingKept   = errors.New("no scenes are kept")
	ErrNoSourceVideo = errors.New("source video not found")
)

// Tools are the tool-level settings shared by every project.
type Tools struct {
	Interpolator   string
	Upscaler       string
	TileSize       int
	TilingOver     int
	VideoCodec     string
	ThumbnailScale float64
	GIFFPS         int
	IndexWidthMin  int
}

// DefaultTools returns the tool settings used when nothing is configured.
func DefaultTools() Tools {
	return Tools{
		Interpolator:   adapter.DefaultInterpolator,
		Upscaler:       adapter.DefaultUpscaler,
		TileSize:       512,
		TilingOver:     stage.DefaultTilingOver,
		VideoCodec:     "libx264",
		ThumbnailScale: 0.5,
		GIFFPS:         5,
		IndexWidthMin:  scene.DefaultMinWidth,
	}
}

// Service runs workflow steps against project descriptors.
type Service struct {
	ffmpegPath   string
	ffprobePath  string
	runner       util.CmdRunner
	reporter     progress.Reporter
	logger       *log.Logger
	tools        Tools
	assemble     assemble.Settings
	interpolator adapter.Interpolator
	upscaler     adapter.Upscaler
}

// Option configures a Service.
type Option func(*Service)

// WithFFmpegPath sets the ffmpeg binary path.
func WithFFmpegPath(p string) Option {
	return func(s *Service) {
		s.ffmpegPath = p
	}
}

// WithFFprobePath sets the ffprobe binary path.
func WithFFprobePath(p string) Option {
	return func(s *Service) {
		s.ffprobePath = p
	}
}

// WithRunner injects a custom command runner (useful for testing).
func WithRunner(r util.CmdRunner) Option {
	return func(s *Service) {
		s.runner = r
	}
}

// WithReporter attaches a progress reporter.
func WithReporter(rp progress.Reporter) Option {
	return func(s *Service) {
		s.reporter = rp
	}
}

// WithLogger sets the logger every step logs through.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithTools overrides the tool settings.
func WithTools(t Tools) Option {
	return func(s *Service) {
		s.tools = t
	}
}

// WithAssembleSettings sets how clips are encoded and labeled on save.
func WithAssembleSettings(a assemble.Settings) Option {
	return func(s *Service) {
		s.assemble = a
	}
}

// WithInterpolator replaces the command-backed frame interpolator.
func WithInterpolator(ip adapter.Interpolator) Option {
	return func(s *Service) {
		s.interpolator = ip
	}
}

// WithUpscaler replaces the command-backed upscaler.
func WithUpscaler(up adapter.Upscaler) Option {
	return func(s *Service) {
		s.upscaler = up
	}
}

// NewService constructs a Service, filling in defaults for anything not set.
func NewService(opts ...Option) *Service {
	s := &Service{
		tools:    DefaultTools(),
		assemble: assemble.DefaultSettings(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.runner == nil {
		s.runner = util.NewDefaultRunner()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.reporter = progress.OrNop(s.reporter)
	if s.interpolator == nil {
		s.interpolator = adapter.NewCommandInterpolator(s.runner, s.tools.Interpolator, s.logger)
	}
	if s.upscaler == nil {
		s.upscaler = adapter.NewCommandUpscaler(s.runner, s.tools.Upscaler, s.tools.TileSize, s.logger)
	}
	return s
}

func (s *Service) encoder() *encoder.Encoder {
	e := encoder.New(s.runner, s.ffmpegPath, s.logger, s.reporter)
	if s.tools.VideoCodec != "" {
		e.Codec = s.tools.VideoCodec
	}
	return e
}

func (s *Service) media() *media.Tool {
	return media.NewTool(s.runner, s.ffprobePath, s.encoder(), s.logger)
}

func (s *Service) thumbnails(d *project.Descriptor) *sceneops.Thumbnails {
	return sceneops.NewThumbnails(d, s.encoder(), s.tools.GIFFPS, s.tools.ThumbnailScale)
}

func (s *Service) separator() string {
	if s.assemble.Separator == "" {
		return scene.DefaultSeparator
	}
	return s.assemble.Separator
}

// IngestRequest names the source of a new project.
type IngestRequest struct {
	Video       string
	Audio       string
	ProjectPath string
	FPS         float64
	Deinterlace bool
}

// Ingest probes the source and creates the project at req.ProjectPath.
// Nothing is written when the probe fails.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*project.Descriptor, error) {
	video, err := filepath.Abs(req.Video)
	if err != nil {
		return nil, err
	}
	if !util.Exists(video) || util.IsDir(video) {
		return nil, fmt.Errorf("%w: %s", ErrNoSourceVideo, video)
	}
	root, err := filepath.Abs(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	if util.Exists(filepath.Join(root, project.DescriptorName)) {
		return nil, fmt.Errorf("%w: %s", ErrProjectExists, root)
	}

	s.reporter.Update(progress.Update{Stage: progress.StageIngest, Message: "probing " + filepath.Base(video)})
	details, err := s.media().Probe(ctx, video)
	if err != nil {
		return nil, err
	}

	d := project.New(root, video, details)
	if req.Audio != "" {
		audio, err := filepath.Abs(req.Audio)
		if err != nil {
			return nil, err
		}
		if !util.Exists(audio) {
			return nil, fmt.Errorf("source audio not found: %s", audio)
		}
		d.SourceAudio = audio
	}
	if req.FPS > 0 {
		d.ProjectFPS = req.FPS
	}
	d.Deinterlace = req.Deinterlace
	d.FrameCount = ExpectedFrames(details, d.ProjectFPS)
	d.IndexWidth = scene.IndexWidth(d.FrameCount, s.tools.IndexWidthMin)
	d.SourceFramesInvalid = true
	if err := d.Store(s.logger).EnsureLayout(); err != nil {
		return nil, err
	}
	if err := project.Save(d); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project", root, "frames", d.FrameCount, "fps", d.ProjectFPS)
	return d, nil
}

// ExpectedFrames is the frame count the source yields at fps.
func ExpectedFrames(v media.Details, fps float64) int {
	if v.FrameCount > 0 && (fps <= 0 || math.Abs(fps-v.FrameRate) < 1e-6) {
		return v.FrameCount
	}
	return int(math.Round(v.DurationSeconds * fps))
}

// Open loads the project at projectPath and checks it against the disk.
// Integrity warnings are logged and returned; they never fail the open.
func (s *Service) Open(projectPath string) (*project.Descriptor, []project.IntegrityWarning, error) {
	d, err := project.Load(filepath.Join(projectPath, project.DescriptorName))
	if err != nil {
		return nil, nil, err
	}
	warnings, err := s.Check(d)
	if err != nil {
		return nil, nil, err
	}
	return d, warnings, nil
}

// Check runs the integrity check and logs every warning.
func (s *Service) Check(d *project.Descriptor) ([]project.IntegrityWarning, error) {
	warnings, err := project.IntegrityCheck(d)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.logger.Warn("integrity", "detail", w.String())
		s.reporter.Log(progress.Log{Warn: true, Line: w.String()})
	}
	return warnings, nil
}

// ApplySettings validates the settings already written into d and saves.
func (s *Service) ApplySettings(d *project.Descriptor) error {
	if err := project.ValidateSettings(d); err != nil {
		return err
	}
	advance(d, project.ProgressSettings)
	return project.Save(d)
}

// Setup renders the source frames when needed, splits them into scenes and
// renders thumbnails. Running it on a project that already has scenes
// purges them and starts over from the source.
func (s *Service) Setup(ctx context.Context, d *project.Descriptor) error {
	if err := project.ValidateSettings(d); err != nil {
		return err
	}
	store := d.Store(s.logger)
	l := store.Layout
	if d.Len() > 0 {
		s.logger.Info("resetting scenes", "scenes", d.Len())
		paths := append([]string{l.Scenes, l.Dropped, l.Thumbnails, l.Clips}, l.Stages()...)
		if _, err := store.Purge(paths...); err != nil {
			return err
		}
		d.Index = scene.NewIndex(nil)
		d.AudioClips, d.VideoClips, d.Clips = nil, nil, nil
		d.ProcessedWith, d.ProcessedHints = nil, nil
		d.ProcessedContentInvalid = false
		d.Progress = project.ProgressSettings
	}
	if err := store.EnsureLayout(); err != nil {
		return err
	}

	if d.SourceFramesInvalid || framestore.FrameCount(l.Source) == 0 {
		if err := s.renderSource(ctx, d, store); err != nil {
			return err
		}
	}

	sp := splitter.New(s.media(), store, s.logger, s.reporter)
	ids, err := sp.Split(ctx, splitter.SettingsFrom(d))
	if err != nil {
		return err
	}
	d.Index = scene.NewIndex(ids)
	d.SourceFramesInvalid = true
	if err := project.Save(d); err != nil {
		return err
	}

	if err := sceneops.New(d, s.thumbnails(d), s.logger).RefreshThumbnails(ctx, s.reporter); err != nil {
		return err
	}
	advance(d, project.ProgressSetup)
	s.logger.Info("setup done", "scenes", d.Len())
	return project.Save(d)
}

func (s *Service) renderSource(ctx context.Context, d *project.Descriptor, store *framestore.Store) error {
	if !util.Exists(d.SourceVideo) {
		return fmt.Errorf("%w: %s", ErrNoSourceVideo, d.SourceVideo)
	}
	if util.HasContent(store.Layout.Source) {
		if _, err := store.Purge(store.Layout.Source); err != nil {
			return err
		}
		if err := util.EnsureDir(store.Layout.Source); err != nil {
			return err
		}
	}
	width, err := s.media().RenderSourceFrames(ctx, d.SourceVideo, d.ProjectFPS, store.Layout.Source, d.Deinterlace, d.FrameCount, s.tools.IndexWidthMin)
	if err != nil {
		return err
	}
	n := framestore.FrameCount(store.Layout.Source)
	if n == 0 {
		return fmt.Errorf("render source frames: no frames written to %s", store.Layout.Source)
	}
	if n != d.FrameCount {
		s.logger.Warn("rendered frame count differs from probe", "rendered", n, "expected", d.FrameCount)
	}
	d.FrameCount = n
	d.IndexWidth = width
	d.SourceFramesInvalid = false
	return project.Save(d)
}

// Ops returns the scene operations for d with thumbnail regeneration wired.
func (s *Service) Ops(d *project.Descriptor) *sceneops.Ops {
	return sceneops.New(d, s.thumbnails(d), s.logger)
}

// SetState marks a scene Keep or Drop. On a compiled project the scene
// directory moves at once, audio clips are invalidated and the project
// returns to the compile step.
func (s *Service) SetState(d *project.Descriptor, name string, st scene.State) error {
	if d.State(name) == st && d.Has(name) {
		return nil
	}
	if err := d.SetState(name, st); err != nil {
		return err
	}
	if d.Progress.AtLeast(project.ProgressCompile) {
		if _, err := place(d, name); err != nil {
			return err
		}
		if err := invalidateAudio(d.Store(s.logger), d); err != nil {
			return err
		}
		d.Progress = project.ProgressCompile
	}
	return project.Save(d)
}

// SetLabel labels a scene after checking its hints parse.
func (s *Service) SetLabel(d *project.Descriptor, name, label string) error {
	if _, err := hint.Parse(label, s.separator()); err != nil {
		return fmt.Errorf("label %s: %w", name, err)
	}
	if label == "" {
		if err := d.ClearLabel(name); err != nil {
			return err
		}
	} else if err := d.SetLabel(name, label); err != nil {
		return err
	}
	return project.Save(d)
}

// Compile separates the scene directories by state: kept scenes under
// SCENES, dropped ones under DROPPED_SCENES. A changed selection
// invalidates the audio clips.
func (s *Service) Compile(ctx context.Context, d *project.Descriptor) error {
	if err := requireStep(d, project.ProgressSetup, "compile"); err != nil {
		return err
	}
	if len(d.Kept()) == 0 {
		return ErrNothingKept
	}
	if d.Progress.Rank() < project.ProgressCompile.Rank() {
		d.Progress = project.ProgressCompile
	}
	moved := 0
	for i, name := range d.Names {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := place(d, name)
		if err != nil {
			return err
		}
		if ok {
			moved++
		}
		s.reporter.Update(progress.Update{Stage: progress.StageCompile, Current: i + 1, Total: d.Len(), Message: name})
	}
	store := d.Store(s.logger)
	if moved > 0 {
		if err := invalidateAudio(store, d); err != nil {
			return err
		}
		if d.Progress.AtLeast(project.ProgressProcess) {
			d.Progress = project.ProgressCompile
		}
	}
	if err := purgeDroppedClips(store, d); err != nil {
		return err
	}
	if stagesDiffer(d) {
		d.ProcessedContentInvalid = true
	}
	s.logger.Info("compiled", "kept", len(d.Kept()), "dropped", len(d.Dropped()), "moved", moved)
	return project.Save(d)
}

// place moves a scene directory to where its state says it belongs and
// reports whether it moved.
func place(d *project.Descriptor, name string) (bool, error) {
	want := d.ScenePath(name)
	l := d.Layout()
	other := filepath.Join(l.Scenes, name)
	if other == want {
		other = filepath.Join(l.Dropped, name)
	}
	if util.Exists(want) || !util.Exists(other) {
		return false, nil
	}
	if err := util.MovePath(other, want); err != nil {
		return false, fmt.Errorf("move scene %s: %w", name, err)
	}
	return true, nil
}

// invalidateAudio purges the audio clips; save slices them again.
func invalidateAudio(store *framestore.Store, d *project.Descriptor) error {
	if _, err := store.Purge(d.AudioClips...); err != nil {
		return err
	}
	d.AudioClips = nil
	return nil
}

// purgeDroppedClips purges the video and muxed clips of dropped scenes.
func purgeDroppedClips(store *framestore.Store, d *project.Descriptor) error {
	dropped := d.Dropped()
	if len(dropped) == 0 {
		return nil
	}
	isDropped := make(map[string]bool, len(dropped))
	for _, n := range dropped {
		isDropped[n] = true
	}
	var stale []string
	for _, list := range [][]string{d.VideoClips, d.Clips} {
		for _, p := range list {
			if isDropped[project.ClipScene(p)] {
				stale = append(stale, p)
			}
		}
	}
	if _, err := store.Purge(stale...); err != nil {
		return err
	}
	d.DropClipEntries(dropped...)
	return nil
}

// stagesDiffer reports whether any stage directory with content holds a
// scene set other than the kept scenes.
func stagesDiffer(d *project.Descriptor) bool {
	kept := project.KeptSet(d)
	for _, dir := range d.Layout().Stages() {
		subs, _ := framestore.SceneDirs(dir)
		if len(subs) == 0 {
			continue
		}
		if len(subs) != len(kept) {
			return true
		}
		for _, n := range subs {
			if !kept[n] {
				return true
			}
		}
	}
	return false
}

// Plan returns the stage graph the next process run uses.
func (s *Service) Plan(d *project.Descriptor) (stage.Graph, error) {
	r := stage.New(d, nil, nil, s.logger, nil)
	r.Separator = s.separator()
	return r.Plan()
}

// Process runs the enabled stages over the kept scenes. Per-scene failures
// are reported in the returned report and do not fail the step.
func (s *Service) Process(ctx context.Context, d *project.Descriptor) (*stage.Report, error) {
	if err := requireStep(d, project.ProgressCompile, "process"); err != nil {
		return nil, err
	}
	if err := project.ValidateSettings(d); err != nil {
		return nil, err
	}
	r := stage.New(d, s.interpolator, s.upscaler, s.logger, s.reporter)
	r.TilingOver = s.tools.TilingOver
	r.Separator = s.separator()
	rep, err := r.Process(ctx)
	if err != nil {
		return rep, err
	}
	for _, f := range rep.Failures {
		s.logger.Warn("stage failed", "stage", f.Stage, "scene", f.Scene, "err", f.Err)
	}
	d.Progress = project.ProgressProcess
	return rep, project.Save(d)
}

// Save assembles the remix. Projects with enabled stages must be processed
// first.
func (s *Service) Save(ctx context.Context, d *project.Descriptor, opts assemble.Options) (*assemble.Result, error) {
	if err := requireStep(d, project.ProgressCompile, "save"); err != nil {
		return nil, err
	}
	g, err := s.Plan(d)
	if err != nil {
		return nil, err
	}
	if len(g.Enabled()) > 0 {
		if err := requireStep(d, project.ProgressProcess, "save"); err != nil {
			return nil, err
		}
	}
	st := s.assemble
	st.Separator = s.separator()
	res, err := assemble.New(d, s.encoder(), st, s.logger, s.reporter).Save(ctx, opts)
	if err != nil {
		s.reporter.Result(progress.Result{Err: err})
		return res, err
	}
	s.emitSaved(res.Output)
	return res, nil
}

// emitSaved sends a final "saved" update for the UI.
func (s *Service) emitSaved(out string) {
	var size int64
	if fi, err := os.Stat(out); err == nil {
		size = fi.Size()
	}
	s.reporter.Update(progress.Update{
		Stage:   progress.StageCompleted,
		Current: 1,
		Total:   1,
		Message: fmt.Sprintf("Saved: %s (%s)", filepath.Base(out), format.HumanizeBytes(size)),
	})
}

func (s *Service) exporter(d *project.Descriptor) *export.Exporter {
	return export.New(d, s.thumbnails(d), s.logger, s.reporter)
}

// Export writes the kept scenes of d into a new project at dst.
func (s *Service) Export(ctx context.Context, d *project.Descriptor, dst string) (*project.Descriptor, error) {
	return s.exporter(d).Export(ctx, dst)
}

// Recover rebuilds the frames of d from its source video.
func (s *Service) Recover(ctx context.Context, d *project.Descriptor) error {
	return s.exporter(d).Recover(ctx, s.media())
}

// Import merges the scenes of the project at other into d.
func (s *Service) Import(ctx context.Context, d *project.Descriptor, other string) ([]string, error) {
	return s.exporter(d).Import(ctx, other)
}

// Port rewrites a moved project's paths from oldRoot to newRoot.
func (s *Service) Port(oldRoot, newRoot string) (*project.Descriptor, error) {
	d, err := project.Port(oldRoot, newRoot)
	if err != nil {
		return nil, err
	}
	s.logger.Info("project ported", "from", oldRoot, "to", newRoot)
	return d, nil
}

// PurgeClean permanently removes the purge directories of d.
func (s *Service) PurgeClean(d *project.Descriptor) (int, error) {
	n, err := d.Store(s.logger).RemovePurged()
	if err != nil {
		return n, err
	}
	s.logger.Info("removed purge directories", "count", n)
	return n, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"remixer/internal/assemble"
	"remixer/internal/framestore"
	"remixer/internal/media"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/util"
)

type recordingReporter struct {
	updates []progress.Update
	results []progress.Result
	logs    []progress.Log
}

func (r *recordingReporter) Update(u progress.Update) {
	r.updates = append(r.updates, u)
}
func (r *recordingReporter) Log(l progress.Log) {
	r.logs = append(r.logs, l)
}
func (r *recordingReporter) Result(res progress.Result) {
	r.results = append(r.results, res)
}

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 64, "height": 32, "r_frame_rate": "30/1", "nb_frames": "120"},
    {"codec_type": "audio", "codec_name": "aac", "sample_rate": "48000"}
  ],
  "format": {"duration": "4.0", "size": "2048"}
}`

// fakeRunner emulates ffprobe and ffmpeg. ffmpeg writes its last argument;
// a printf pattern output renders frames source frames.
type fakeRunner struct {
	t           *testing.T
	ffmpegPath  string
	ffprobePath string
	probeJSON   string
	probeErr    error
	frames      int
	calls       [][]string
}

func (f *fakeRunner) Run(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	f.calls = append(f.calls, append([]string{spec.Path}, spec.Args...))
	switch spec.Path {
	case f.ffprobePath:
		if f.probeErr != nil {
			return util.CmdResult{Code: 1, Stderr: []byte("invalid data")}, f.probeErr
		}
		return util.CmdResult{Stdout: []byte(f.probeJSON)}, nil
	case f.ffmpegPath:
		if len(spec.Args) == 0 {
			return util.CmdResult{}, errors.New("no args")
		}
		out := spec.Args[len(spec.Args)-1]
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return util.CmdResult{}, err
		}
		if strings.Contains(out, "%0") {
			for i := 0; i < f.frames; i++ {
				if err := os.WriteFile(fmt.Sprintf(out, i), []byte("frame"), 0o644); err != nil {
					return util.CmdResult{}, err
				}
			}
			return util.CmdResult{}, nil
		}
		if spec.StdoutLine != nil {
			spec.StdoutLine("frame=10")
			spec.StdoutLine("progress=end")
		}
		return util.CmdResult{}, os.WriteFile(out, []byte("media"), 0o644)
	}
	return util.CmdResult{}, errors.New("unexpected tool path: " + spec.Path)
}

func (f *fakeRunner) ffmpegCalls() int {
	n := 0
	for _, c := range f.calls {
		if c[0] == f.ffmpegPath {
			n++
		}
	}
	return n
}

func newService(t *testing.T) (*Service, *fakeRunner, *recordingReporter) {
	t.Helper()
	fr := &fakeRunner{t: t, ffmpegPath: "/bin/ffmpeg", ffprobePath: "/bin/ffprobe", probeJSON: probeJSON, frames: 120}
	rep := &recordingReporter{}
	s := NewService(
		WithFFmpegPath(fr.ffmpegPath),
		WithFFprobePath(fr.ffprobePath),
		WithRunner(fr),
		WithReporter(rep),
	)
	return s, fr, rep
}

func ingest(t *testing.T, s *Service) *project.Descriptor {
	t.Helper()
	tmp := t.TempDir()
	video := filepath.Join(tmp, "in.mp4")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := s.Ingest(context.Background(), IngestRequest{Video: video, ProjectPath: filepath.Join(tmp, "proj")})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestNewServiceDefaults(t *testing.T) {
	s := NewService()
	if s.runner == nil || s.logger == nil || s.reporter == nil {
		t.Fatalf("defaults not filled: %+v", s)
	}
	if s.interpolator == nil || s.upscaler == nil {
		t.Fatalf("command adapters not created")
	}
	if !reflect.DeepEqual(s.tools, DefaultTools()) {
		t.Errorf("tools = %+v", s.tools)
	}
	if s.separator() != scene.DefaultSeparator {
		t.Errorf("separator = %q", s.separator())
	}
}

func TestExpectedFrames(t *testing.T) {
	tests := []struct {
		name string
		v    media.Details
		fps  float64
		want int
	}{
		{"native rate uses container count", media.Details{FrameCount: 120, FrameRate: 30, DurationSeconds: 4}, 30, 120},
		{"other rate uses duration", media.Details{FrameCount: 120, FrameRate: 30, DurationSeconds: 4}, 24, 96},
		{"no count", media.Details{FrameRate: 25, DurationSeconds: 2}, 25, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpectedFrames(tt.v, tt.fps); got != tt.want {
				t.Errorf("ExpectedFrames = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIngestCreatesProject(t *testing.T) {
	s, _, _ := newService(t)
	d := ingest(t, s)
	if d.FrameCount != 120 || d.IndexWidth != 8 || d.ProjectFPS != 30 {
		t.Fatalf("descriptor = frames %d width %d fps %v", d.FrameCount, d.IndexWidth, d.ProjectFPS)
	}
	if !d.VideoDetails.HasAudio || d.SourceAudio != d.SourceVideo {
		t.Fatalf("audio = %+v %s", d.VideoDetails, d.SourceAudio)
	}
	loaded, err := project.Load(d.Path())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SourceVideo != d.SourceVideo || loaded.Progress != project.ProgressHome {
		t.Fatalf("saved descriptor = %s %s", loaded.SourceVideo, loaded.Progress)
	}

	_, err = s.Ingest(context.Background(), IngestRequest{Video: d.SourceVideo, ProjectPath: d.ProjectPath})
	if !errors.Is(err, ErrProjectExists) {
		t.Fatalf("second ingest err = %v, want ErrProjectExists", err)
	}
}

func TestIngestProbeFailureWritesNothing(t *testing.T) {
	s, fr, _ := newService(t)
	fr.probeErr = errors.New("exit status 1")
	tmp := t.TempDir()
	video := filepath.Join(tmp, "in.mp4")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(tmp, "proj")
	_, err := s.Ingest(context.Background(), IngestRequest{Video: video, ProjectPath: root})
	if !errors.Is(err, media.ErrProbeFailed) {
		t.Fatalf("err = %v, want ErrProbeFailed", err)
	}
	if util.Exists(filepath.Join(root, project.DescriptorName)) {
		t.Fatalf("descriptor written after failed probe")
	}
}

func TestSetupRejectsInvalidSettingsFirst(t *testing.T) {
	s, fr, _ := newService(t)
	d := ingest(t, s)
	d.SplitType = project.SplitTime
	d.SplitTime = 0
	err := s.Setup(context.Background(), d)
	var ce *project.ConfigError
	if !errors.As(err, &ce) || ce.Field != "split_time" {
		t.Fatalf("err = %v, want split_time ConfigError", err)
	}
	if fr.ffmpegCalls() != 0 {
		t.Fatalf("ffmpeg ran before settings were validated")
	}
}

func TestWorkflowTimeSplitToSave(t *testing.T) {
	ctx := context.Background()
	s, _, rep := newService(t)
	d := ingest(t, s)

	d.SplitType = project.SplitTime
	d.SplitTime = 2
	if err := s.ApplySettings(d); err != nil {
		t.Fatal(err)
	}
	if err := s.Setup(ctx, d); err != nil {
		t.Fatal(err)
	}
	want := []string{"00000000-00000059", "00000060-00000119"}
	if !reflect.DeepEqual(d.Names, want) {
		t.Fatalf("scenes = %v, want %v", d.Names, want)
	}
	if n := framestore.FrameCount(filepath.Join(d.ScenesPath, want[1])); n != 60 {
		t.Fatalf("scene frames = %d", n)
	}
	if !d.SourceFramesInvalid || framestore.FrameCount(d.FramesPath) != 0 {
		t.Fatalf("split must move the source frames out")
	}
	for _, name := range want {
		if th := d.Thumbnail(name); th == "" || !util.Exists(th) {
			t.Fatalf("thumbnail of %s = %q", name, th)
		}
	}
	if d.Progress != project.ProgressSetup {
		t.Fatalf("progress = %s", d.Progress)
	}

	if err := s.SetState(d, want[1], scene.Drop); err != nil {
		t.Fatal(err)
	}
	if err := s.Compile(ctx, d); err != nil {
		t.Fatal(err)
	}
	if !util.IsDir(filepath.Join(d.DroppedScenesPath, want[1])) || util.Exists(filepath.Join(d.ScenesPath, want[1])) {
		t.Fatalf("dropped scene not moved out of SCENES")
	}

	if _, err := s.Process(ctx, d); err != nil {
		t.Fatal(err)
	}
	res, err := s.Save(ctx, d, assemble.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !util.Exists(res.Output) || d.Progress != project.ProgressSave {
		t.Fatalf("output %s progress %s", res.Output, d.Progress)
	}
	last := rep.updates[len(rep.updates)-1]
	if last.Stage != progress.StageCompleted || !strings.Contains(last.Message, "Saved: remix.mp4") {
		t.Fatalf("final update = %+v", last)
	}
	if len(d.AudioClips) != 1 {
		t.Fatalf("audio clips = %v", d.AudioClips)
	}

	if err := s.SetState(d, want[1], scene.Keep); err != nil {
		t.Fatal(err)
	}
	if !util.IsDir(filepath.Join(d.ScenesPath, want[1])) {
		t.Fatalf("re-kept scene not moved back")
	}
	if d.Progress != project.ProgressCompile || d.AudioClips != nil {
		t.Fatalf("selection change must invalidate audio: %s %v", d.Progress, d.AudioClips)
	}
}

func TestCompileAfterSavePurgesDroppedClips(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)
	d := ingest(t, s)
	d.SplitType = project.SplitTime
	d.SplitTime = 2
	if err := s.Setup(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := s.Compile(ctx, d); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Process(ctx, d); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, d, assemble.Options{}); err != nil {
		t.Fatal(err)
	}
	l := d.Layout()
	if len(d.VideoClips) != 2 || len(d.Clips) != 2 {
		t.Fatalf("clips after save = %v %v", d.VideoClips, d.Clips)
	}
	for _, name := range d.Names {
		if err := os.MkdirAll(filepath.Join(l.Resize, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if d.ProcessedContentInvalid {
		t.Fatal("processed content invalid before the selection changed")
	}

	dropped := d.Names[1]
	if err := s.SetState(d, dropped, scene.Drop); err != nil {
		t.Fatal(err)
	}
	if err := s.Compile(ctx, d); err != nil {
		t.Fatal(err)
	}
	for _, list := range [][]string{d.AudioClips, d.VideoClips, d.Clips} {
		for _, c := range list {
			if project.ClipScene(c) == dropped {
				t.Fatalf("clip of dropped scene still listed: %s", c)
			}
		}
	}
	if util.Exists(filepath.Join(l.VideoClips, framestore.ClipName(dropped, "mp4"))) {
		t.Fatal("dropped scene video clip left in place")
	}
	if !d.ProcessedContentInvalid {
		t.Fatal("stage directory holding a dropped scene did not invalidate processed content")
	}
	warnings, err := project.IntegrityCheck(d)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range warnings {
		switch w.Path {
		case l.Clips, l.VideoClips, l.AudioClips:
			t.Errorf("integrity warning after compile: %s", w)
		}
	}
	purged, _ := d.Store(nil).PurgeDirs()
	if len(purged) == 0 {
		t.Fatal("dropped clips were deleted instead of purged")
	}
}

func TestSaveNeedsProcessWhenStagesEnabled(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)
	d := ingest(t, s)
	d.SplitType = project.SplitNone
	if err := s.Setup(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := s.Compile(ctx, d); err != nil {
		t.Fatal(err)
	}
	d.Resize = true
	_, err := s.Save(ctx, d, assemble.Options{})
	var se *StepError
	if !errors.As(err, &se) || se.Need != project.ProgressProcess {
		t.Fatalf("err = %v, want StepError needing process", err)
	}
}

func TestCompileBeforeSetup(t *testing.T) {
	s, _, _ := newService(t)
	d := ingest(t, s)
	var se *StepError
	if err := s.Compile(context.Background(), d); !errors.As(err, &se) {
		t.Fatalf("err = %v, want StepError", err)
	}
}

func TestSetLabelRejectsBadHint(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService(t)
	d := ingest(t, s)
	d.SplitType = project.SplitNone
	if err := s.Setup(ctx, d); err != nil {
		t.Fatal(err)
	}
	name := d.Names[0]
	if err := s.SetLabel(d, name, "{I 3Q} nope"); err == nil {
		t.Fatalf("invalid inflation hint accepted")
	}
	if d.Label(name) != "" {
		t.Fatalf("label set despite error")
	}
	if err := s.SetLabel(d, name, "(1) {R 2/4} intro"); err != nil {
		t.Fatal(err)
	}
	if d.Label(name) != "(1) {R 2/4} intro" {
		t.Fatalf("label = %q", d.Label(name))
	}
}

func TestNext(t *testing.T) {
	d := project.Defaults()
	tests := map[project.Progress]string{
		project.ProgressHome:    "settings",
		project.ProgressCompile: "process",
		project.ProgressSave:    "done",
	}
	for p, want := range tests {
		d.Progress = p
		if got := Next(d); got != want {
			t.Errorf("Next(%s) = %q, want %q", p, got, want)
		}
	}
}

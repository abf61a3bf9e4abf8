package assemble

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"remixer/internal/encoder"
	"remixer/internal/framestore"
	"remixer/internal/logging"
	"remixer/internal/media"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/sceneops"
	"remixer/internal/util"
)

// fakeFFmpeg writes the output file of every call and keeps the concat lists.
type fakeFFmpeg struct {
	calls [][]string
	lists []string
}

func (f *fakeFFmpeg) Run(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	f.calls = append(f.calls, spec.Args)
	if len(spec.Args) == 0 {
		return util.CmdResult{}, errors.New("no args")
	}
	for i, a := range spec.Args {
		if a == "concat" {
			for j := i; j+1 < len(spec.Args); j++ {
				if spec.Args[j] == "-i" {
					b, err := os.ReadFile(spec.Args[j+1])
					if err != nil {
						return util.CmdResult{}, err
					}
					f.lists = append(f.lists, string(b))
					break
				}
			}
		}
	}
	out := spec.Args[len(spec.Args)-1]
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return util.CmdResult{}, err
	}
	return util.CmdResult{}, os.WriteFile(out, []byte("media"), 0o644)
}

func (f *fakeFFmpeg) count(sub string) int {
	n := 0
	for _, c := range f.calls {
		if strings.Contains(strings.Join(c, " "), sub) {
			n++
		}
	}
	return n
}

type recordingReporter struct {
	logs    []progress.Log
	results []progress.Result
}

func (r *recordingReporter) Update(progress.Update)   {}
func (r *recordingReporter) Log(l progress.Log)       { r.logs = append(r.logs, l) }
func (r *recordingReporter) Result(res progress.Result) { r.results = append(r.results, res) }

// newProject lays out compiled scenes of 30 frames each at 30 fps.
func newProject(t *testing.T, scenes int) *project.Descriptor {
	t.Helper()
	root := t.TempDir()
	d := project.New(root, filepath.Join(root, "in.mp4"), media.Details{
		FrameRate: 30, DisplayWidth: 640, DisplayHeight: 320, HasAudio: true, SampleRate: 44100,
	})
	var bounds []int
	for i := 1; i < scenes; i++ {
		bounds = append(bounds, i*30)
	}
	ids := scene.Ranges(8, scenes*30, bounds)
	d.Index = scene.NewIndex(ids)
	d.IndexWidth = 8
	d.FrameCount = scenes * 30
	d.Progress = project.ProgressProcess
	for _, id := range ids {
		writeFrames(t, filepath.Join(d.ScenesPath, id.String()), id.First, id.Count())
	}
	return d
}

func writeFrames(t *testing.T, dir string, first, n int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, framestore.SourceFrameName(8, first+i))
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newAssembler(d *project.Descriptor) (*Assembler, *fakeFFmpeg, *recordingReporter) {
	ff := &fakeFFmpeg{}
	rep := &recordingReporter{}
	enc := encoder.New(ff, "ffmpeg", logging.Discard(), rep)
	return New(d, enc, DefaultSettings(), logging.Discard(), rep), ff, rep
}

func TestSpan(t *testing.T) {
	start, end := Span(scene.ID{First: 60, Last: 119, Width: 8}, 30, 0)
	if start != 2 || end != 4 {
		t.Fatalf("Span = %v..%v", start, end)
	}
	start, end = Span(scene.ID{First: 60, Last: 119, Width: 8}, 30, 1)
	if math.Abs(start-61.0/30) > 1e-9 || math.Abs(end-119.0/30) > 1e-9 {
		t.Fatalf("trimmed Span = %v..%v", start, end)
	}
}

func TestLabeledPath(t *testing.T) {
	if got := LabeledPath("/out/remix.mp4"); got != "/out/remix-labeled.mp4" {
		t.Fatalf("LabeledPath = %s", got)
	}
}

func TestSaveConcatenatesInLabelOrder(t *testing.T) {
	d := newProject(t, 3)
	if err := d.SetState(d.Names[1], scene.Drop); err != nil {
		t.Fatal(err)
	}
	if err := d.SetLabel(d.Names[2], "(1) opener"); err != nil {
		t.Fatal(err)
	}
	a, ff, rep := newAssembler(d)
	res, err := a.Save(context.Background(), Options{Labeled: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != filepath.Join(d.ProjectPath, "remix.mp4") || !util.Exists(res.Output) {
		t.Fatalf("output = %s", res.Output)
	}
	if res.Labeled != filepath.Join(d.ProjectPath, "remix-labeled.mp4") || !util.Exists(res.Labeled) {
		t.Fatalf("labeled = %s", res.Labeled)
	}
	if len(d.AudioClips) != 2 || len(d.VideoClips) != 2 || len(d.Clips) != 2 {
		t.Fatalf("clips audio=%v video=%v muxed=%v", d.AudioClips, d.VideoClips, d.Clips)
	}
	if len(ff.lists) != 2 {
		t.Fatalf("concat lists = %d", len(ff.lists))
	}
	first := strings.Index(ff.lists[0], d.Names[2])
	second := strings.Index(ff.lists[0], d.Names[0])
	if first < 0 || second < 0 || first > second {
		t.Fatalf("concat order wrong:\n%s", ff.lists[0])
	}
	if strings.Contains(ff.lists[0], d.Names[1]) {
		t.Fatalf("dropped scene concatenated")
	}
	if ff.count("text='opener'") != 1 || ff.count("fontsize=40") != 2 {
		t.Fatalf("labels not drawn with crop-relative size: %v", ff.calls)
	}
	if d.Progress != project.ProgressSave || d.OutputFilepath != res.Output {
		t.Fatalf("descriptor not updated: %s %s", d.Progress, d.OutputFilepath)
	}
	if len(rep.results) != 1 || rep.results[0].OutputPath != res.Output {
		t.Fatalf("results = %+v", rep.results)
	}
	if ff.count("-ss 0.000000 -to 1.000000") != 1 {
		t.Fatalf("first scene audio not sliced at its range")
	}
}

func TestForceDropThenSaveReusesVideo(t *testing.T) {
	d := newProject(t, 3)
	a, ff, _ := newAssembler(d)
	if _, err := a.Save(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}
	if err := sceneops.New(d, nil, logging.Discard()).ForceDrop(d.Names[1]); err != nil {
		t.Fatal(err)
	}
	ff.calls = nil
	res, err := a.Save(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if n := ff.count("-framerate"); n != 0 {
		t.Fatalf("re-encoded %d video clips", n)
	}
	if n := ff.count("-vn"); n != 2 {
		t.Fatalf("sliced %d audio clips, want 2", n)
	}
	if n := ff.count("-map 1:a:0"); n != 2 {
		t.Fatalf("muxed %d clips, want 2", n)
	}
	if want := []string{d.Names[0], d.Names[2]}; !reflect.DeepEqual(res.Reused, want) {
		t.Fatalf("reused = %v, want %v", res.Reused, want)
	}
	if len(d.AudioClips) != 2 {
		t.Fatalf("audio clips = %v", d.AudioClips)
	}
}

func TestSaveAutoDropsEmptyProcessedScenes(t *testing.T) {
	d := newProject(t, 2)
	d.Inflate = true
	l := d.Layout()
	writeFrames(t, filepath.Join(l.Inflate, d.Names[0]), 0, 59)
	if err := os.MkdirAll(filepath.Join(l.Inflate, d.Names[1]), 0o755); err != nil {
		t.Fatal(err)
	}
	a, ff, rep := newAssembler(d)
	res, err := a.Save(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Dropped, []string{d.Names[1]}) || d.State(d.Names[1]) != scene.Drop {
		t.Fatalf("dropped = %v", res.Dropped)
	}
	if len(rep.logs) == 0 || !rep.logs[0].Warn {
		t.Fatalf("auto drop not reported")
	}
	if ff.count("-framerate 60") != 1 {
		t.Fatalf("inflated clip not encoded at 60 fps: %v", ff.calls)
	}
}

func TestSlowMotionAudio(t *testing.T) {
	d := newProject(t, 3)
	l := d.Layout()
	hints := []string{"2A", "2S", "16A"}
	for i, h := range hints {
		if err := d.SetLabel(d.Names[i], "{I "+h+"}"); err != nil {
			t.Fatal(err)
		}
		id := scene.MustParse(d.Names[i])
		writeFrames(t, filepath.Join(l.Inflate, d.Names[i]), id.First, 59)
	}
	a, ff, _ := newAssembler(d)
	res, err := a.Save(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if ff.count("atempo=0.5") != 1 {
		t.Fatalf("2x slow motion not tempo matched: %v", ff.calls)
	}
	if ff.count("anullsrc") != 2 {
		t.Fatalf("silent tracks = %d, want 2", ff.count("anullsrc"))
	}
	if ff.count("-framerate 30") != 3 {
		t.Fatalf("slow motion clips must play at the project rate")
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "unsupported") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestSaveWithNothingKept(t *testing.T) {
	d := newProject(t, 1)
	if err := d.SetState(d.Names[0], scene.Drop); err != nil {
		t.Fatal(err)
	}
	a, _, _ := newAssembler(d)
	if _, err := a.Save(context.Background(), Options{}); !errors.Is(err, ErrNothingToSave) {
		t.Fatalf("err = %v, want ErrNothingToSave", err)
	}
}

package stage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"remixer/internal/framestore"
	"remixer/internal/hint"
	"remixer/internal/imaging"
	"remixer/internal/logging"
	"remixer/internal/media"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/util"
	"remixer/internal/zoom"
)

var errInterp = errors.New("interpolator crashed")

// fakeInterpolator writes 2^splits-1 text frames naming their neighbors.
type fakeInterpolator struct {
	calls  int
	failOn string
}

func (f *fakeInterpolator) Interpolate(ctx context.Context, before, after string, splits int, outDir string) ([]string, error) {
	f.calls++
	if f.failOn != "" && strings.Contains(before, f.failOn) {
		return nil, errInterp
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var out []string
	for k := 1; k < 1<<splits; k++ {
		p := filepath.Join(outDir, fmt.Sprintf("interp_%05d.png", k))
		if err := os.WriteFile(p, []byte(filepath.Base(before)+"|"+filepath.Base(after)), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// fakeUpscaler enlarges real PNG frames by factor.
type fakeUpscaler struct {
	tiling bool
}

func (f *fakeUpscaler) Upscale(ctx context.Context, files []string, outDir string, factor int, tiling bool) ([]string, error) {
	f.tiling = tiling
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var out []string
	for _, src := range files {
		w, h, err := imaging.Size(src)
		if err != nil {
			return nil, err
		}
		dst := filepath.Join(outDir, filepath.Base(src))
		if err := imaging.ScaleFile(src, dst, w*factor, h*factor); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, nil
}

type recordingReporter struct {
	updates []progress.Update
	logs    []progress.Log
}

func (r *recordingReporter) Update(u progress.Update) { r.updates = append(r.updates, u) }
func (r *recordingReporter) Log(l progress.Log)       { r.logs = append(r.logs, l) }
func (r *recordingReporter) Result(progress.Result)   {}

// newProject lays out one scene directory per frame count. With images set
// the frames are 40x20 PNGs, otherwise small text files.
func newProject(t *testing.T, images bool, counts ...int) *project.Descriptor {
	t.Helper()
	root := t.TempDir()
	d := project.New(root, filepath.Join(root, "in.mp4"), media.Details{FrameRate: 30, DisplayWidth: 40, DisplayHeight: 20})
	var bounds []int
	total := 0
	for _, c := range counts[:len(counts)-1] {
		total += c
		bounds = append(bounds, total)
	}
	total += counts[len(counts)-1]
	ids := scene.Ranges(8, total, bounds)
	d.Index = scene.NewIndex(ids)
	d.IndexWidth = 8
	d.FrameCount = total
	d.Progress = project.ProgressCompile
	for _, id := range ids {
		dir := filepath.Join(d.ScenesPath, id.String())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for f := id.First; f <= id.Last; f++ {
			p := filepath.Join(dir, framestore.SourceFrameName(8, f))
			if images {
				img := image.NewRGBA(image.Rect(0, 0, 40, 20))
				img.Set(f%40, 0, color.White)
				if err := imaging.Save(p, img); err != nil {
					t.Fatal(err)
				}
				continue
			}
			if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return d
}

func newRunner(d *project.Descriptor, ip *fakeInterpolator) (*Runner, *recordingReporter) {
	rep := &recordingReporter{}
	r := New(d, ip, &fakeUpscaler{}, logging.Discard(), rep)
	return r, rep
}

func setHint(t *testing.T, d *project.Descriptor, name, tag, value string) {
	t.Helper()
	label := scene.ComposeLabel(scene.Label{Hints: map[string]string{tag: value}}, scene.DefaultSeparator)
	if err := d.SetLabel(name, label); err != nil {
		t.Fatal(err)
	}
}

func frameCount(d *project.Descriptor, dir, name string) int {
	return framestore.FrameCount(filepath.Join(dir, name))
}

func TestGraphInputs(t *testing.T) {
	d := newProject(t, false, 5)
	d.Resize = true
	d.Inflate = true
	g := Build(d, nil)
	l := d.Layout()
	tests := []struct {
		k    Kind
		want string
	}{
		{Resize, l.Scenes},
		{Resynth, l.Resize},
		{Inflate, l.Resize},
		{Upscale, l.Inflate},
	}
	for _, tt := range tests {
		if got := g.Input(tt.k); got != tt.want {
			t.Errorf("Input(%s) = %s, want %s", tt.k, got, tt.want)
		}
	}
	if g.Final() != l.Inflate {
		t.Fatalf("Final = %s", g.Final())
	}

	none := Build(newProject(t, false, 5), nil)
	if none.Final() != none.Scenes || len(none.Enabled()) != 0 {
		t.Fatalf("empty graph final = %s, enabled %v", none.Final(), none.Enabled())
	}
}

func TestHintEnablesStage(t *testing.T) {
	d := newProject(t, false, 5)
	g := Build(d, map[string]hint.Hints{
		"a": {Upscale: "2X"},
		"b": {Resynth: hint.ResynthNone},
	})
	if !g.Stage(Upscale).Enabled() || g.Stage(Upscale).Selected {
		t.Fatalf("upscale = %+v, want hinted only", g.Stage(Upscale))
	}
	if g.Stage(Resynth).Enabled() {
		t.Fatalf("resynthesis enabled by an N hint")
	}
}

func TestCompleteAndStale(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(dir, n), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if !Complete(dir, []string{"a", "b"}) {
		t.Fatalf("complete stage reported incomplete")
	}
	if Complete(dir, []string{"a", "b", "c"}) || Complete(dir, []string{"a", "c"}) {
		t.Fatalf("mismatched stage reported complete")
	}
	if !Stale(false, dir) || Stale(true, dir) || Stale(false, filepath.Join(dir, "missing")) {
		t.Fatalf("Stale misreports")
	}
}

func TestChangesSince(t *testing.T) {
	base := project.StageOptions{Resynthesize: true, ResynthOption: project.ResynthClean, InflateBy: "2X", InflateSlow: project.SlowNo, UpscaleOption: "2X"}
	tests := []struct {
		name   string
		modify func(o *project.StageOptions)
		want   Changes
	}{
		{"same", func(o *project.StageOptions) {}, Changes{}},
		{"resynth option", func(o *project.StageOptions) { o.ResynthOption = project.ResynthScrub }, Changes{Resynth: true}},
		{"resize turned on", func(o *project.StageOptions) { o.Resize = true }, Changes{Resize: true}},
		{"unselected inflate option", func(o *project.StageOptions) { o.InflateBy = "4X" }, Changes{}},
		{"upscale turned on", func(o *project.StageOptions) { o.Upscale = true }, Changes{Upscale: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := base
			tt.modify(&cur)
			prev := base
			if got := ChangesSince(&prev, cur); got != tt.want {
				t.Fatalf("ChangesSince = %+v, want %+v", got, tt.want)
			}
		})
	}
	if ChangesSince(nil, base).Any() {
		t.Fatalf("changes reported without a previous run")
	}
}

func TestPurgeStaleFromFirstInvalidStage(t *testing.T) {
	d := newProject(t, false, 5)
	d.Resize = true
	d.Upscale = true
	l := d.Layout()
	for _, dir := range []string{l.Resize, l.Resynth, l.Upscale} {
		if err := os.MkdirAll(filepath.Join(dir, d.Names[0]), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	store := d.Store(logging.Discard())
	purged, err := PurgeStale(store, Build(d, nil), Changes{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(purged, []Kind{Resynth, Upscale}) {
		t.Fatalf("purged = %v", purged)
	}
	if !util.HasContent(l.Resize) || util.Exists(l.Resynth) || util.Exists(l.Upscale) {
		t.Fatalf("resize must survive, resynthesis and upscale must go")
	}
	if dirs, _ := store.PurgeDirs(); len(dirs) != 1 {
		t.Fatalf("purge dirs = %v", dirs)
	}
}

func TestSeriesCounts(t *testing.T) {
	if got := InflateCount(4, 2); got != 7 {
		t.Fatalf("InflateCount = %d", got)
	}
	if got := ResynthCount(project.ResynthScrub, 10); got != 8 {
		t.Fatalf("ResynthCount = %d", got)
	}
	got := Interleave([]string{"a", "b", "c"}, [][]string{{"ab"}, {"bc1", "bc2"}})
	if want := []string{"a", "ab", "b", "bc1", "bc2", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Interleave = %v", got)
	}
}

func TestResynthesisCardinality(t *testing.T) {
	tests := []struct {
		opt  project.ResynthOption
		want int
	}{
		{project.ResynthClean, 5},
		{project.ResynthScrub, 4},
		{project.ResynthReplace, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.opt), func(t *testing.T) {
			d := newProject(t, false, 6)
			d.Resynthesize = true
			d.ResynthOption = tt.opt
			r, _ := newRunner(d, &fakeInterpolator{})
			rep, err := r.Process(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(rep.Failures) != 0 {
				t.Fatalf("failures = %v", rep.Failures)
			}
			if n := frameCount(d, d.ResynthPath, d.Names[0]); n != tt.want {
				t.Fatalf("frames = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestProcessChainsStages(t *testing.T) {
	d := newProject(t, false, 5, 6)
	d.Resynthesize = true
	d.ResynthOption = project.ResynthClean
	d.Inflate = true
	d.InflateBy = "2X"
	ip := &fakeInterpolator{}
	r, rec := newRunner(d, ip)
	rep, err := r.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int{InflateCount(4, 2), InflateCount(5, 2)} {
		if n := frameCount(d, d.InflatePath, d.Names[i]); n != want {
			t.Fatalf("scene %d inflated to %d frames, want %d", i, n, want)
		}
	}
	first := filepath.Join(d.InflatePath, d.Names[0], framestore.StageFrameName(d.Names[0], 8, 0))
	if !util.Exists(first) {
		t.Fatalf("stage frame %s missing", first)
	}
	if !reflect.DeepEqual(rep.Produced[Inflate], d.Names) {
		t.Fatalf("produced = %v", rep.Produced)
	}
	if d.ProcessedWith == nil || !d.ProcessedWith.Inflate {
		t.Fatalf("ProcessedWith = %+v", d.ProcessedWith)
	}
	if len(rec.updates) == 0 {
		t.Fatalf("no progress reported")
	}

	// A second run finds everything in place.
	calls := ip.calls
	rep, err = r.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ip.calls != calls || len(rep.Produced) != 0 || len(rep.Purged) != 0 {
		t.Fatalf("rerun did work: calls %d->%d produced %v purged %v", calls, ip.calls, rep.Produced, rep.Purged)
	}

	// Changing the inflation factor invalidates inflation only.
	d.InflateBy = "4X"
	rep, err = r.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rep.Purged, []Kind{Inflate}) {
		t.Fatalf("purged = %v", rep.Purged)
	}
	if n := frameCount(d, d.InflatePath, d.Names[0]); n != InflateCount(4, 4) {
		t.Fatalf("reinflated to %d frames", n)
	}
	if _, ok := rep.Produced[Resynth]; ok {
		t.Fatalf("resynthesis rerun")
	}
}

func TestProcessFailureLeavesEmptyScene(t *testing.T) {
	d := newProject(t, false, 5, 5)
	d.Resynthesize = true
	d.ResynthOption = project.ResynthClean
	failing := framestore.SourceFrameName(8, 5)
	r, rec := newRunner(d, &fakeInterpolator{failOn: failing})
	rep, err := r.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Failures) != 1 {
		t.Fatalf("failures = %v", rep.Failures)
	}
	var sf *StageFailedError
	if !errors.As(rep.Failures[0], &sf) || sf.Scene != d.Names[1] || !errors.Is(sf, errInterp) {
		t.Fatalf("failure = %v", rep.Failures[0])
	}
	if n := frameCount(d, d.ResynthPath, d.Names[1]); n != 0 || !util.IsDir(filepath.Join(d.ResynthPath, d.Names[1])) {
		t.Fatalf("failed scene should leave an empty directory, has %d frames", n)
	}
	if n := frameCount(d, d.ResynthPath, d.Names[0]); n != 4 {
		t.Fatalf("healthy scene has %d frames", n)
	}
	if !Complete(d.ResynthPath, d.Kept()) {
		t.Fatalf("stage not complete after a scene failure")
	}
	warned := false
	for _, l := range rec.logs {
		warned = warned || l.Warn
	}
	if !warned {
		t.Fatalf("failure not reported")
	}
}

func TestHintedSceneOnlyIsTransformed(t *testing.T) {
	d := newProject(t, false, 5, 5)
	setHint(t, d, d.Names[1], scene.TagInflate, "4")
	r, _ := newRunner(d, &fakeInterpolator{})
	if _, err := r.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := frameCount(d, d.InflatePath, d.Names[0]); n != 5 {
		t.Fatalf("unhinted scene copied %d frames", n)
	}
	if n := frameCount(d, d.InflatePath, d.Names[1]); n != InflateCount(5, 4) {
		t.Fatalf("hinted scene has %d frames", n)
	}
	if d.ProcessedHints[d.Names[1]] == "" {
		t.Fatalf("hint signature not recorded")
	}

	// Changing the hint reprocesses that scene alone.
	setHint(t, d, d.Names[1], scene.TagInflate, "2")
	rep, err := r.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rep.Produced[Inflate], []string{d.Names[1]}) {
		t.Fatalf("produced = %v", rep.Produced)
	}
	if n := frameCount(d, d.InflatePath, d.Names[1]); n != InflateCount(5, 2) {
		t.Fatalf("rehinted scene has %d frames", n)
	}
}

func TestInvalidHintAbortsBeforeWork(t *testing.T) {
	d := newProject(t, false, 5)
	setHint(t, d, d.Names[0], scene.TagResynth, "X")
	r, _ := newRunner(d, &fakeInterpolator{})
	if _, err := r.Process(context.Background()); !errors.Is(err, hint.ErrBadHint) {
		t.Fatalf("err = %v, want ErrBadHint", err)
	}
	if util.Exists(d.ResynthPath) {
		t.Fatalf("stage directory created for an invalid hint")
	}
}

func TestIncompleteStageIsRebuilt(t *testing.T) {
	d := newProject(t, false, 5, 6)
	d.Resynthesize = true
	d.ResynthOption = project.ResynthClean
	r, _ := newRunner(d, &fakeInterpolator{})
	if _, err := r.Process(context.Background()); err != nil {
		t.Fatal(err)
	}

	// An interrupted run leaves one scene without stage output.
	if err := os.RemoveAll(filepath.Join(d.ResynthPath, d.Names[1])); err != nil {
		t.Fatal(err)
	}
	if Complete(d.ResynthPath, d.Kept()) {
		t.Fatal("stage with a missing scene reported complete")
	}
	rep, err := r.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rep.Purged, []Kind{Resynth}) {
		t.Fatalf("purged = %v", rep.Purged)
	}
	if !reflect.DeepEqual(rep.Produced[Resynth], d.Names) {
		t.Fatalf("produced = %v", rep.Produced)
	}
	if !Complete(d.ResynthPath, d.Kept()) {
		t.Fatal("stage incomplete after rebuild")
	}
	for i, want := range []int{4, 5} {
		if n := frameCount(d, d.ResynthPath, d.Names[i]); n != want {
			t.Errorf("scene %d has %d frames, want %d", i, n, want)
		}
	}
}

func TestProcessedContentInvalidPurgesEverything(t *testing.T) {
	d := newProject(t, false, 5)
	d.Inflate = true
	r, _ := newRunner(d, &fakeInterpolator{})
	if _, err := r.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	d.ProcessedContentInvalid = true
	rep, err := r.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rep.Purged, []Kind{Inflate}) || d.ProcessedContentInvalid {
		t.Fatalf("purged = %v, invalid = %v", rep.Purged, d.ProcessedContentInvalid)
	}
	if n := frameCount(d, d.InflatePath, d.Names[0]); n != InflateCount(5, 2) {
		t.Fatalf("rebuilt scene has %d frames", n)
	}
}

func TestProducedOutputPurgesVideoClips(t *testing.T) {
	d := newProject(t, false, 5)
	l := d.Layout()
	clip := filepath.Join(l.VideoClips, framestore.ClipName(d.Names[0], "mp4"))
	audio := filepath.Join(l.AudioClips, framestore.ClipName(d.Names[0], "wav"))
	for _, p := range []string{clip, audio} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	d.VideoClips = []string{clip}
	d.AudioClips = []string{audio}
	d.Inflate = true
	r, _ := newRunner(d, &fakeInterpolator{})
	if _, err := r.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	if util.Exists(clip) || len(d.VideoClips) != 0 {
		t.Fatalf("video clip survived new stage output")
	}
	if !util.Exists(audio) || len(d.AudioClips) != 1 {
		t.Fatalf("audio clip purged without resynthesis")
	}
}

func TestResizeAppliesZoomHint(t *testing.T) {
	d := newProject(t, true, 4)
	d.ResizeW, d.ResizeH = 40, 20
	d.CropW, d.CropH = 20, 10
	setHint(t, d, d.Names[0], scene.TagResize, "1/4")
	r, _ := newRunner(d, &fakeInterpolator{})
	if _, err := r.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	frames, _ := framestore.Frames(filepath.Join(d.ResizePath, d.Names[0]))
	if len(frames) != 4 {
		t.Fatalf("resized %d frames", len(frames))
	}
	w, h, err := imaging.Size(frames[0])
	if err != nil {
		t.Fatal(err)
	}
	if w != 20 || h != 10 {
		t.Fatalf("resized frame is %dx%d, want 20x10", w, h)
	}
}

func TestViewsCarrySavedView(t *testing.T) {
	base := zoom.Baseline{ResizeW: 40, ResizeH: 20, CropW: 40, CropH: 20, OffsetX: -1, OffsetY: -1}
	hints := map[string]hint.Hints{}
	for name, text := range map[string]string{"a": "-1/4", "c": "-"} {
		e, err := zoom.Parse(text)
		if err != nil {
			t.Fatal(err)
		}
		hints[name] = hint.Hints{Resize: e, ResizeText: text}
	}
	views := Views(base, false, []string{"a", "b", "c"}, hints, func(string) int { return 3 })
	if _, ok := views["b"]; ok {
		t.Fatalf("unhinted scene resized in an unselected stage")
	}
	quad, _ := base.Resolve(zoom.Quadrant{N: 1, Total: 4})
	if got := views["a"].Params(2); got != base.Params(quad) {
		t.Fatalf("first scene ends at %+v, want %+v", got, base.Params(quad))
	}
	if got := views["c"].Params(0); got != base.Params(quad) {
		t.Fatalf("third scene starts at %+v, want the saved view %+v", got, base.Params(quad))
	}
	if got := views["c"].Params(2); got != base.Params(base.Default()) {
		t.Fatalf("third scene ends at %+v, want the default view", got)
	}
}

func TestUpscaleReachesTarget(t *testing.T) {
	d := newProject(t, true, 2)
	d.Upscale = true
	d.UpscaleOption = "2X"
	up := &fakeUpscaler{}
	r := New(d, &fakeInterpolator{}, up, logging.Discard(), nil)
	r.TilingOver = 100
	rep, err := r.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Failures) != 0 {
		t.Fatalf("failures = %v", rep.Failures)
	}
	frames, _ := framestore.Frames(filepath.Join(d.UpscalePath, d.Names[0]))
	if len(frames) != 2 {
		t.Fatalf("upscaled %d frames", len(frames))
	}
	w, h, _ := imaging.Size(frames[0])
	if w != 80 || h != 40 {
		t.Fatalf("upscaled frame is %dx%d, want 80x40", w, h)
	}
	if !up.tiling {
		t.Fatalf("tiling off for a crop over the threshold")
	}
}

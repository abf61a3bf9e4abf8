package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"remixer/internal/framestore"
	"remixer/internal/logging"
	"remixer/internal/media"
	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/util"
)

type fakeThumbs struct {
	calls []string
}

func (f *fakeThumbs) Thumbnail(ctx context.Context, name, sceneDir string) (string, error) {
	f.calls = append(f.calls, name)
	return filepath.Join(filepath.Dir(filepath.Dir(sceneDir)), framestore.ThumbnailsDir, name+".gif"), nil
}

type fakeRenderer struct {
	calls int
}

func (f *fakeRenderer) RenderSourceFrames(ctx context.Context, video string, fps float64, outDir string, deinterlace bool, frameCount, minWidth int) (int, error) {
	f.calls++
	for i := 0; i < frameCount; i++ {
		if err := os.WriteFile(filepath.Join(outDir, framestore.SourceFrameName(minWidth, i)), []byte("frame"), 0o644); err != nil {
			return 0, err
		}
	}
	return minWidth, nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newProject lays out a saved project whose scenes cover the given ranges
// of a 90 frame source.
func newProject(t *testing.T, source string, ranges ...[2]int) *project.Descriptor {
	t.Helper()
	root := t.TempDir()
	if source == "" {
		source = filepath.Join(root, "in.mp4")
		writeFile(t, source)
	}
	d := project.New(root, source, media.Details{FrameRate: 30, DisplayWidth: 64, DisplayHeight: 32})
	d.IndexWidth = 8
	d.FrameCount = 90
	d.Progress = project.ProgressChoose
	var ids []scene.ID
	for _, r := range ranges {
		id, err := scene.NewID(8, r[0], r[1])
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	d.Index = scene.NewIndex(ids)
	for _, id := range ids {
		for f := id.First; f <= id.Last; f++ {
			writeFile(t, filepath.Join(d.ScenesPath, id.String(), framestore.SourceFrameName(8, f)))
		}
		thumb := filepath.Join(d.ThumbnailPath, id.String()+".gif")
		writeFile(t, thumb)
		if err := d.SetThumbnail(id.String(), thumb); err != nil {
			t.Fatal(err)
		}
	}
	if err := project.Save(d); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestExportKeptScenes(t *testing.T) {
	d := newProject(t, "", [2]int{0, 29}, [2]int{30, 59}, [2]int{60, 89})
	if err := d.SetState(d.Names[1], scene.Drop); err != nil {
		t.Fatal(err)
	}
	if err := d.SetLabel(d.Names[2], "(1) opener"); err != nil {
		t.Fatal(err)
	}
	d.AudioClips = []string{filepath.Join(d.AudioClipsPath, d.Names[0]+".wav")}

	dst := filepath.Join(t.TempDir(), "exported")
	nd, err := New(d, nil, logging.Discard(), nil).Export(context.Background(), dst)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{d.Names[0], d.Names[2]}; !reflect.DeepEqual(nd.Names, want) {
		t.Fatalf("names = %v, want %v", nd.Names, want)
	}
	if nd.Label(d.Names[2]) != "(1) opener" {
		t.Fatalf("label lost")
	}
	if nd.Progress != project.ProgressChoose || len(nd.AudioClips) != 0 {
		t.Fatalf("exported project not reset: %s %v", nd.Progress, nd.AudioClips)
	}
	if nd.SourceVideo != filepath.Join(dst, "in.mp4") || !util.Exists(nd.SourceVideo) {
		t.Fatalf("source video = %s", nd.SourceVideo)
	}
	if n := framestore.FrameCount(filepath.Join(dst, framestore.ScenesDir, d.Names[2])); n != 30 {
		t.Fatalf("exported scene frames = %d", n)
	}
	if util.Exists(filepath.Join(dst, framestore.ScenesDir, d.Names[1])) {
		t.Fatalf("dropped scene exported")
	}
	if th := nd.Thumbnail(d.Names[0]); filepath.Dir(th) != filepath.Join(dst, framestore.ThumbnailsDir) || !util.Exists(th) {
		t.Fatalf("thumbnail = %s", th)
	}

	loaded, err := project.Load(filepath.Join(dst, project.DescriptorName))
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ProjectPath != dst || loaded.ScenesPath != filepath.Join(dst, framestore.ScenesDir) {
		t.Fatalf("saved paths not ported: %s %s", loaded.ProjectPath, loaded.ScenesPath)
	}
	if d.Len() != 3 {
		t.Fatalf("source project modified")
	}
}

func TestExportRejectsNonEmptyTarget(t *testing.T) {
	d := newProject(t, "", [2]int{0, 89})
	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "keep.txt"))
	if _, err := New(d, nil, logging.Discard(), nil).Export(context.Background(), dst); !errors.Is(err, ErrTargetNotEmpty) {
		t.Fatalf("err = %v, want ErrTargetNotEmpty", err)
	}
}

func TestRecoverRebuildsScenes(t *testing.T) {
	d := newProject(t, "", [2]int{0, 44}, [2]int{45, 89})
	if err := d.SetState(d.Names[1], scene.Drop); err != nil {
		t.Fatal(err)
	}
	d.Progress = project.ProgressProcess
	d.SourceFramesInvalid = true
	d.ProcessedHints = map[string]string{d.Names[0]: "{R 1/4}"}
	if err := os.RemoveAll(d.ScenesPath); err != nil {
		t.Fatal(err)
	}

	thumbs := &fakeThumbs{}
	r := &fakeRenderer{}
	e := New(d, thumbs, logging.Discard(), nil)
	if err := e.Recover(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if r.calls != 1 {
		t.Fatalf("render calls = %d", r.calls)
	}
	if n := framestore.FrameCount(filepath.Join(d.ScenesPath, d.Names[0])); n != 45 {
		t.Fatalf("kept scene frames = %d", n)
	}
	if n := framestore.FrameCount(filepath.Join(d.DroppedScenesPath, d.Names[1])); n != 45 {
		t.Fatalf("dropped scene frames = %d", n)
	}
	if d.SourceFramesInvalid || d.Progress != project.ProgressCompile || d.ProcessedHints != nil {
		t.Fatalf("descriptor not reset: invalid=%v progress=%s", d.SourceFramesInvalid, d.Progress)
	}
	if !reflect.DeepEqual(thumbs.calls, d.Names) {
		t.Fatalf("thumbnails = %v", thumbs.calls)
	}
	purged, err := e.Store.PurgeDirs()
	if err != nil || len(purged) != 1 {
		t.Fatalf("purge dirs = %v %v", purged, err)
	}
}

func TestRecoverNeedsSource(t *testing.T) {
	d := newProject(t, "", [2]int{0, 89})
	if err := os.Remove(d.SourceVideo); err != nil {
		t.Fatal(err)
	}
	if err := New(d, nil, logging.Discard(), nil).Recover(context.Background(), &fakeRenderer{}); !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}
}

func TestImportMergesScenes(t *testing.T) {
	d := newProject(t, "", [2]int{0, 29}, [2]int{60, 89})
	other := newProject(t, d.SourceVideo, [2]int{0, 29}, [2]int{30, 59})
	if err := other.SetLabel(other.Names[1], "(2) middle"); err != nil {
		t.Fatal(err)
	}
	if err := other.SetLabel(other.Names[0], "shared"); err != nil {
		t.Fatal(err)
	}
	if err := project.Save(other); err != nil {
		t.Fatal(err)
	}

	got, err := New(d, nil, logging.Discard(), nil).Import(context.Background(), other.ProjectPath)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{other.Names[1]}; !reflect.DeepEqual(got, want) {
		t.Fatalf("imported = %v, want %v", got, want)
	}
	if d.Len() != 3 || d.Names[1] != other.Names[1] {
		t.Fatalf("names not merged in order: %v", d.Names)
	}
	if d.Label(other.Names[1]) != "(2) middle" || d.Label(d.Names[0]) != "shared" {
		t.Fatalf("labels = %v", d.Labels)
	}
	if n := framestore.FrameCount(filepath.Join(d.ScenesPath, other.Names[1])); n != 30 {
		t.Fatalf("imported frames = %d", n)
	}
	backups, _ := filepath.Glob(filepath.Join(d.ProjectPath, framestore.PortedDir, "*.yaml"))
	if len(backups) != 1 {
		t.Fatalf("backups = %v", backups)
	}
}

func TestImportRejectsOverlap(t *testing.T) {
	d := newProject(t, "", [2]int{0, 44})
	other := newProject(t, d.SourceVideo, [2]int{30, 59})
	_, err := New(d, nil, logging.Discard(), nil).Import(context.Background(), other.ProjectPath)
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("err = %v, want ErrOverlap", err)
	}
	if d.Len() != 1 {
		t.Fatalf("project modified on rejected import")
	}
}

func TestImportRejectsDifferentSource(t *testing.T) {
	d := newProject(t, "", [2]int{0, 44})
	other := newProject(t, "", [2]int{45, 89})
	other.SourceVideo = filepath.Join(other.ProjectPath, "other.mp4")
	if err := project.Save(other); err != nil {
		t.Fatal(err)
	}
	_, err := New(d, nil, logging.Discard(), nil).Import(context.Background(), other.ProjectPath)
	if !errors.Is(err, ErrDifferentSource) {
		t.Fatalf("err = %v, want ErrDifferentSource", err)
	}
}
